package impacts

import (
	"sort"

	"github.com/pacificclimate/impacts/internal/domain"
)

type pair struct {
	category string
	sector   string
}

// pairs indexes the non-internal rules by (category, sector). The returned
// order is categories first, then sectors, both sorted.
func pairs(rules []domain.RuleRecord) (map[pair][]domain.RuleRecord, []pair) {
	byPair := make(map[pair][]domain.RuleRecord)
	for _, r := range rules {
		if r.IsInternal() {
			continue
		}
		p := pair{category: r.Category, sector: r.Sector}
		byPair[p] = append(byPair[p], r)
	}

	order := make([]pair, 0, len(byPair))
	for p := range byPair {
		order = append(order, p)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].category != order[j].category {
			return order[i].category < order[j].category
		}
		return order[i].sector < order[j].sector
	})
	return byPair, order
}

// axes returns the sorted distinct categories and sectors of the pairs.
func axes(order []pair) (categories, sectors []string) {
	cats := make(map[string]struct{})
	secs := make(map[string]struct{})
	for _, p := range order {
		cats[p.category] = struct{}{}
		secs[p.sector] = struct{}{}
	}
	return sortedKeys(cats), sortedKeys(secs)
}

// CategorySectorHeatmap counts, for every (category, sector) pair of the
// non-internal rules, how many rules are active. Categories are the rows
// and sectors the columns.
func CategorySectorHeatmap(rules []domain.RuleRecord, act domain.Activation) domain.Heatmap {
	byPair, order := pairs(rules)
	categories, sectors := axes(order)

	cells := make([]domain.HeatmapCell, 0, len(order))
	for _, p := range order {
		cell := domain.HeatmapCell{
			Category: p.category,
			Sector:   p.sector,
			Effects:  []string{},
		}
		for _, r := range byPair[p] {
			cell.Total++
			if act.Active(r.ID) {
				cell.Active++
				cell.Effects = append(cell.Effects, r.Effects)
			}
		}
		cell.Proportion = float64(cell.Active) / float64(cell.Total)
		cell.Tier = HeatmapTier(cell.Proportion)
		cells = append(cells, cell)
	}

	return domain.Heatmap{
		Categories: categories,
		Sectors:    sectors,
		Cells:      cells,
	}
}
