package rules

import (
	"strings"
	"unicode"
)

var wordOperators = map[string]string{
	"and":   "&&",
	"or":    "||",
	"not":   "!",
	"True":  "true",
	"False": "false",
}

// TranslateCondition rewrites the word operators used by rulebase authors
// (and, or, not, True, False) into CEL syntax. String literals are left
// untouched.
func TranslateCondition(condition string) string {
	var (
		b     strings.Builder
		word  strings.Builder
		quote rune
	)

	flush := func() {
		if word.Len() == 0 {
			return
		}
		w := word.String()
		if op, ok := wordOperators[w]; ok {
			b.WriteString(op)
		} else {
			b.WriteString(w)
		}
		word.Reset()
	}

	for _, r := range condition {
		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			flush()
			quote = r
			b.WriteRune(r)
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
			b.WriteRune(r)
		}
	}
	flush()
	return b.String()
}
