package impacts

import (
	"math"
	"sort"

	"github.com/pacificclimate/impacts/internal/domain"
)

// CategorySectorMatrix collects every non-internal rule's activation value
// per (category, sector) pair. Missing activations count as 0.
func CategorySectorMatrix(rules []domain.RuleRecord, act domain.Activation) domain.Matrix {
	byPair, order := pairs(rules)
	categories, sectors := axes(order)

	cells := make([]domain.MatrixCell, 0, len(order))
	for _, p := range order {
		cell := domain.MatrixCell{
			Category: p.category,
			Sector:   p.sector,
			Rules:    make([]domain.MatrixRule, 0, len(byPair[p])),
		}
		seen := make(map[float64]struct{})
		for _, r := range byPair[p] {
			v := act.Value(r.ID)
			cell.Rules = append(cell.Rules, domain.MatrixRule{ID: r.ID, Value: v, Effects: r.Effects})
			if v > cell.MaxValue {
				cell.MaxValue = v
			}
			seen[round2(v)] = struct{}{}
		}

		cell.UniqueValues = make([]float64, 0, len(seen))
		for v := range seen {
			cell.UniqueValues = append(cell.UniqueValues, v)
		}
		sort.Float64s(cell.UniqueValues)

		cell.Tiers = make([]domain.Tier, len(cell.UniqueValues))
		for i, v := range cell.UniqueValues {
			cell.Tiers[i] = MatrixTier(v)
		}
		cells = append(cells, cell)
	}

	return domain.Matrix{
		Categories: categories,
		Sectors:    sectors,
		Cells:      cells,
	}
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
