package impacts

import (
	"fmt"
	"strings"

	"github.com/pacificclimate/impacts/internal/domain"
)

// View names an aggregate view.
type View string

const (
	ViewGrouped View = "grouped"
	ViewHeatmap View = "heatmap"
	ViewMatrix  View = "matrix"
	ViewDetail  View = "detail"
)

// ParseView accepts a view name; empty means the heatmap.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewHeatmap, nil
	case ViewGrouped, ViewHeatmap, ViewMatrix, ViewDetail:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown view %q", domain.ErrInvalidInput, s)
	}
}

// Query holds the view parameters. Group applies to the grouped view, where
// items are taken from the other axis. Category and Sector select the
// detail cell.
type Query struct {
	Group    Axis
	Category string
	Sector   string
}

// Build computes one view. The result is a []domain.Group, domain.Heatmap,
// domain.Matrix or []domain.DetailRule.
func Build(view View, rules []domain.RuleRecord, act domain.Activation, q Query) (any, error) {
	switch view {
	case ViewGrouped:
		return GroupedActiveItems(rules, act, q.Group, q.Group.Complement()), nil
	case ViewHeatmap:
		return CategorySectorHeatmap(rules, act), nil
	case ViewMatrix:
		return CategorySectorMatrix(rules, act), nil
	case ViewDetail:
		if q.Category == "" || q.Sector == "" {
			return nil, fmt.Errorf("%w: category and sector are required", domain.ErrInvalidInput)
		}
		return CellDetail(rules, act, q.Category, q.Sector), nil
	default:
		return nil, fmt.Errorf("%w: unknown view %q", domain.ErrInvalidInput, view)
	}
}
