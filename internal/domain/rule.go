package domain

import (
	"strings"
	"time"
)

// RuleRecord is one row of the impacts rulebase.
// Records are immutable once parsed and keep file order.
type RuleRecord struct {
	ID        string `json:"id"`
	Condition string `json:"condition"`
	Category  string `json:"category"`
	Sector    string `json:"sector"`
	Effects   string `json:"effects"`
	Notes     string `json:"notes"` // Markdown
}

// InternalRuleEffects marks bookkeeping rules that never appear in
// user-facing aggregates.
const InternalRuleEffects = "Internal rule"

// RuleIDPrefix is stripped from rule identifiers in the rulebase and in
// activation responses so both sides key on the same ID.
const RuleIDPrefix = "rule_"

// IsInternal reports whether the rule is excluded from aggregation.
func (r RuleRecord) IsInternal() bool {
	return r.Effects == InternalRuleEffects
}

// NormalizeRuleID strips the rule prefix and surrounding whitespace.
func NormalizeRuleID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), RuleIDPrefix)
}

// Rulebase column names, in canonical order.
const (
	ColumnID        = "id"
	ColumnCondition = "condition"
	ColumnCategory  = "category"
	ColumnSector    = "sector"
	ColumnEffects   = "effects"
	ColumnNotes     = "notes"
)

// RuleColumns returns the canonical rulebase header.
func RuleColumns() []string {
	return []string{ColumnID, ColumnCondition, ColumnCategory, ColumnSector, ColumnEffects, ColumnNotes}
}

// Fields returns the record's values in canonical column order.
func (r RuleRecord) Fields() []string {
	return []string{r.ID, r.Condition, r.Category, r.Sector, r.Effects, r.Notes}
}

// RulebaseVersion records a successfully loaded rulebase.
type RulebaseVersion struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Checksum  string    `json:"checksum"` // hex sha256 of the raw text
	RuleCount int       `json:"ruleCount"`
	Raw       string    `json:"-"`
	LoadedAt  time.Time `json:"loadedAt"`
}
