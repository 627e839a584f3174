// Package rulebase parses and formats the semicolon-delimited impacts rulebase.
package rulebase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pacificclimate/impacts/internal/domain"
)

const (
	delimiter = ';'
	quote     = '"'
)

// ErrMalformedRecord is returned when a line cannot be tokenized or does
// not fit the rulebase schema. Parsing is all-or-nothing.
var ErrMalformedRecord = errors.New("malformed record")

// RecordError describes where a rulebase failed to parse.
type RecordError struct {
	Line   int // 1-based line number in the raw text
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, ErrMalformedRecord, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return ErrMalformedRecord
}

// Rulebase is an immutable, ordered set of rules.
type Rulebase struct {
	rules []domain.RuleRecord
	index map[string]int
}

// Rules returns a copy of the rules in file order.
func (rb *Rulebase) Rules() []domain.RuleRecord {
	if rb == nil {
		return []domain.RuleRecord{}
	}
	out := make([]domain.RuleRecord, len(rb.rules))
	copy(out, rb.rules)
	return out
}

// Len returns the number of rules.
func (rb *Rulebase) Len() int {
	if rb == nil {
		return 0
	}
	return len(rb.rules)
}

// Rule looks up a rule by ID. The ID is normalized before lookup.
func (rb *Rulebase) Rule(id string) (domain.RuleRecord, bool) {
	if rb == nil {
		return domain.RuleRecord{}, false
	}
	i, ok := rb.index[domain.NormalizeRuleID(id)]
	if !ok {
		return domain.RuleRecord{}, false
	}
	return rb.rules[i], true
}

// New builds a rulebase from already-parsed records, enforcing unique IDs.
func New(rules []domain.RuleRecord) (*Rulebase, error) {
	rb := &Rulebase{
		rules: make([]domain.RuleRecord, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}
	for i, r := range rules {
		r.ID = domain.NormalizeRuleID(r.ID)
		if r.ID == "" {
			return nil, fmt.Errorf("%w: rule %d has an empty id", ErrMalformedRecord, i)
		}
		if _, dup := rb.index[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrMalformedRecord, r.ID)
		}
		rb.index[r.ID] = len(rb.rules)
		rb.rules = append(rb.rules, r)
	}
	return rb, nil
}

// Parse reads a header line followed by one rule per non-empty line.
// Header names are matched case-insensitively against the rule columns;
// unknown columns are ignored and every required column must be present.
func Parse(raw string) (*Rulebase, error) {
	var (
		columns map[string]int
		width   int
		rules   []domain.RuleRecord
		seen    = make(map[string]int)
	)

	for n, line := range splitLines(strings.TrimPrefix(raw, "\ufeff")) {
		lineNo := n + 1
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields, err := SplitRecord(line)
		if err != nil {
			return nil, &RecordError{Line: lineNo, Reason: err.Error()}
		}

		if columns == nil {
			columns, err = mapHeader(fields)
			if err != nil {
				return nil, &RecordError{Line: lineNo, Reason: err.Error()}
			}
			width = len(fields)
			continue
		}

		if len(fields) != width {
			return nil, &RecordError{
				Line:   lineNo,
				Reason: fmt.Sprintf("expected %d columns, got %d", width, len(fields)),
			}
		}

		rule := domain.RuleRecord{
			ID:        domain.NormalizeRuleID(fields[columns[domain.ColumnID]]),
			Condition: fields[columns[domain.ColumnCondition]],
			Category:  fields[columns[domain.ColumnCategory]],
			Sector:    fields[columns[domain.ColumnSector]],
			Effects:   fields[columns[domain.ColumnEffects]],
			Notes:     fields[columns[domain.ColumnNotes]],
		}
		if rule.ID == "" {
			return nil, &RecordError{Line: lineNo, Reason: "empty rule id"}
		}
		if prev, dup := seen[rule.ID]; dup {
			return nil, &RecordError{
				Line:   lineNo,
				Reason: fmt.Sprintf("duplicate rule id %q (first seen on line %d)", rule.ID, prev),
			}
		}
		seen[rule.ID] = lineNo
		rules = append(rules, rule)
	}

	return New(rules)
}

func mapHeader(fields []string) (map[string]int, error) {
	columns := make(map[string]int, len(fields))
	for i, name := range fields {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := columns[key]; dup {
			return nil, fmt.Errorf("duplicate header column %q", name)
		}
		columns[key] = i
	}
	for _, required := range domain.RuleColumns() {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing header column %q", required)
		}
	}
	return columns, nil
}

// splitLines partitions on \n, \r\n and bare \r.
func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Split(raw, "\n")
}

// SplitRecord tokenizes a single line into its field values.
//
// Fields are separated by ';' and may be wrapped in double quotes. Inside a
// quoted field '""' is a literal quote and ';' is literal. Empty positions
// (leading, trailing or adjacent delimiters) produce empty fields, so a line
// holding n delimiters always yields n+1 fields.
func SplitRecord(line string) ([]string, error) {
	const (
		fieldStart = iota
		unquoted
		quoted
		quoteInQuoted // saw '"' inside a quoted field: escape or closing quote
	)

	var (
		fields []string
		buf    strings.Builder
		state  = fieldStart
	)

	emit := func() {
		fields = append(fields, buf.String())
		buf.Reset()
	}

	col := 0
	for _, r := range line {
		col++
		switch state {
		case fieldStart:
			switch r {
			case delimiter:
				emit()
			case quote:
				state = quoted
			default:
				buf.WriteRune(r)
				state = unquoted
			}
		case unquoted:
			switch r {
			case delimiter:
				emit()
				state = fieldStart
			case quote:
				return nil, fmt.Errorf("unexpected quote at column %d in unquoted field", col)
			default:
				buf.WriteRune(r)
			}
		case quoted:
			if r == quote {
				state = quoteInQuoted
			} else {
				buf.WriteRune(r)
			}
		case quoteInQuoted:
			switch r {
			case quote:
				buf.WriteRune(quote)
				state = quoted
			case delimiter:
				emit()
				state = fieldStart
			default:
				return nil, fmt.Errorf("unexpected %q after closing quote at column %d", r, col)
			}
		}
	}

	if state == quoted {
		return nil, errors.New("unterminated quoted field")
	}
	emit()
	return fields, nil
}
