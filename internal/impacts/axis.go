// Package impacts computes the aggregate views of a rulebase under a rule
// activation. Every function is pure: the same rules and activation always
// produce the same output, including ordering.
package impacts

import (
	"fmt"
	"strings"

	"github.com/pacificclimate/impacts/internal/domain"
)

// Axis selects one of the two classification dimensions of a rule.
type Axis int

const (
	Category Axis = iota
	Sector
)

// Value returns the rule's value on this axis.
func (a Axis) Value(r domain.RuleRecord) string {
	if a == Sector {
		return r.Sector
	}
	return r.Category
}

// Complement returns the other axis.
func (a Axis) Complement() Axis {
	if a == Sector {
		return Category
	}
	return Sector
}

func (a Axis) String() string {
	if a == Sector {
		return "sector"
	}
	return "category"
}

// ParseAxis accepts "category" or "sector", case-insensitively.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "category":
		return Category, nil
	case "sector":
		return Sector, nil
	default:
		return 0, fmt.Errorf("%w: unknown axis %q", domain.ErrInvalidInput, s)
	}
}
