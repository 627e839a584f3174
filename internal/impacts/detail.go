package impacts

import "github.com/pacificclimate/impacts/internal/domain"

// CellDetail lists the non-internal rules of one (category, sector) pair in
// file order, with their activation. An unknown pair yields an empty list.
func CellDetail(rules []domain.RuleRecord, act domain.Activation, category, sector string) []domain.DetailRule {
	out := []domain.DetailRule{}
	for _, r := range rules {
		if r.IsInternal() || r.Category != category || r.Sector != sector {
			continue
		}
		out = append(out, domain.DetailRule{
			ID:        r.ID,
			Condition: r.Condition,
			Effects:   r.Effects,
			Notes:     r.Notes,
			Active:    act.Active(r.ID),
			Value:     act.Value(r.ID),
		})
	}
	return out
}
