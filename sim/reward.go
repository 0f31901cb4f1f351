package sim

// RewardFunc maps the outcome of one cover event to a scalar reward.
// priorCoverCount is the cell's cover count before the event.
type RewardFunc func(priorCoverCount int, hazardTriggered bool) float64

// CoverageReward rewards the first cover of a cell, mildly penalizes repeat
// covers and strongly penalizes breaking.
func CoverageReward(priorCoverCount int, hazardTriggered bool) float64 {
	switch {
	case hazardTriggered:
		return -1
	case priorCoverCount == 0:
		return 1
	default:
		return -0.1
	}
}

// PathplanReward charges a small cost per step so shorter paths to the goal
// score higher, and penalizes breaking.
func PathplanReward(priorCoverCount int, hazardTriggered bool) float64 {
	switch {
	case hazardTriggered:
		return -1
	case priorCoverCount == 0:
		return -0.01
	default:
		return -0.05
	}
}
