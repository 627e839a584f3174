package domain

// Tier classifies a heatmap proportion or a matrix value for display.
type Tier string

const (
	TierHigh     Tier = "high"
	TierModerate Tier = "moderate"
	TierLow      Tier = "low"
	TierVeryLow  Tier = "very-low"
	TierZero     Tier = "zero"
)

// Group is one entry of the grouped active items view.
type Group struct {
	Key   string   `json:"key"`
	Items []string `json:"items"`
}

// HeatmapCell summarizes one (category, sector) pair.
type HeatmapCell struct {
	Category   string   `json:"category"`
	Sector     string   `json:"sector"`
	Total      int      `json:"total"`
	Active     int      `json:"active"`
	Proportion float64  `json:"proportion"`
	Effects    []string `json:"effects"`
	Tier       Tier     `json:"tier"`
}

// Heatmap is the category×sector proportion view. Categories are rows and
// sectors are columns.
type Heatmap struct {
	Categories []string      `json:"categories"`
	Sectors    []string      `json:"sectors"`
	Cells      []HeatmapCell `json:"cells"`
}

// Cell finds the cell for a pair.
func (h Heatmap) Cell(category, sector string) (HeatmapCell, bool) {
	for _, c := range h.Cells {
		if c.Category == category && c.Sector == sector {
			return c, true
		}
	}
	return HeatmapCell{}, false
}

// MatrixRule is one rule's contribution to a matrix cell.
type MatrixRule struct {
	ID      string  `json:"id"`
	Value   float64 `json:"value"`
	Effects string  `json:"effects"`
}

// MatrixCell holds the values of every rule in a (category, sector) pair.
type MatrixCell struct {
	Category     string       `json:"category"`
	Sector       string       `json:"sector"`
	MaxValue     float64      `json:"maxValue"`
	Rules        []MatrixRule `json:"rules"`
	UniqueValues []float64    `json:"uniqueValues"`
	Tiers        []Tier       `json:"tiers"` // one per unique value
}

// Matrix is the category×sector value view.
type Matrix struct {
	Categories []string     `json:"categories"`
	Sectors    []string     `json:"sectors"`
	Cells      []MatrixCell `json:"cells"`
}

// Cell finds the cell for a pair.
func (m Matrix) Cell(category, sector string) (MatrixCell, bool) {
	for _, c := range m.Cells {
		if c.Category == category && c.Sector == sector {
			return c, true
		}
	}
	return MatrixCell{}, false
}

// DetailRule is a drill-down row for a single cell.
type DetailRule struct {
	ID        string  `json:"id"`
	Condition string  `json:"condition"`
	Effects   string  `json:"effects"`
	Notes     string  `json:"notes"`
	Active    bool    `json:"active"`
	Value     float64 `json:"value"`
}
