package rulebase

import (
	"strings"

	"github.com/pacificclimate/impacts/internal/domain"
)

// FormatRecord joins fields into one line, quoting every field and
// doubling embedded quotes. SplitRecord(FormatRecord(f)) returns f.
func FormatRecord(fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(delimiter)
		}
		b.WriteByte(quote)
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte(quote)
	}
	return b.String()
}

// Format writes rules as a rulebase with a canonical header.
// Line breaks inside field values are not representable and are replaced
// with spaces.
func Format(rules []domain.RuleRecord) string {
	var b strings.Builder
	b.WriteString(FormatRecord(domain.RuleColumns()))
	b.WriteByte('\n')
	for _, r := range rules {
		fields := r.Fields()
		for i, f := range fields {
			fields[i] = flatten(f)
		}
		b.WriteString(FormatRecord(fields))
		b.WriteByte('\n')
	}
	return b.String()
}

func flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
