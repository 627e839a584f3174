package impacts

import "github.com/pacificclimate/impacts/internal/domain"

// HeatmapTier classifies a proportion in [0,1].
func HeatmapTier(proportion float64) domain.Tier {
	switch {
	case proportion >= 0.75:
		return domain.TierHigh
	case proportion >= 0.5:
		return domain.TierModerate
	case proportion >= 0.25:
		return domain.TierLow
	case proportion == 0:
		return domain.TierZero
	default:
		return domain.TierVeryLow
	}
}

// MatrixTier classifies an activation percentage in [0,100].
func MatrixTier(value float64) domain.Tier {
	switch {
	case value < 1:
		return domain.TierZero
	case value >= 75:
		return domain.TierHigh
	case value >= 50:
		return domain.TierModerate
	case value >= 25:
		return domain.TierLow
	default:
		return domain.TierVeryLow
	}
}
