package model

// PlanTier identifies a subscription plan.
type PlanTier string

const (
	PlanFree  PlanTier = "free"
	PlanHobby PlanTier = "hobby"
	PlanPro   PlanTier = "pro"
)

// PlanLimits holds the resource limits attached to a plan tier.
type PlanLimits struct {
	MaxStorageBytes     int64
	MaxBandwidthBytes   int64
	MaxFileSizeBytes    int64
	MaxUploadsPerPeriod int64
	MaxAPIKeys          int
}

const (
	kb = int64(1024)
	mb = 1024 * kb
	gb = 1024 * mb
)

var planLimits = map[PlanTier]PlanLimits{
	PlanFree: {
		MaxStorageBytes:     1 * gb,
		MaxBandwidthBytes:   5 * gb,
		MaxFileSizeBytes:    10 * mb,
		MaxUploadsPerPeriod: 1_000,
		MaxAPIKeys:          2,
	},
	PlanHobby: {
		MaxStorageBytes:     10 * gb,
		MaxBandwidthBytes:   50 * gb,
		MaxFileSizeBytes:    100 * mb,
		MaxUploadsPerPeriod: 50_000,
		MaxAPIKeys:          10,
	},
	PlanPro: {
		MaxStorageBytes:     100 * gb,
		MaxBandwidthBytes:   500 * gb,
		MaxFileSizeBytes:    500 * mb,
		MaxUploadsPerPeriod: 500_000,
		MaxAPIKeys:          50,
	},
}

// LimitsFor returns the limits for the given plan. Unknown plans fall back to
// the free tier so a bad value can never grant extra quota.
func LimitsFor(plan PlanTier) PlanLimits {
	if limits, ok := planLimits[plan]; ok {
		return limits
	}
	return planLimits[PlanFree]
}

var planTierOrder = map[PlanTier]int{
	PlanFree:  0,
	PlanHobby: 1,
	PlanPro:   2,
}

// TierRank returns the ordering rank of a plan (free < hobby < pro).
// Unknown plans rank as free.
func TierRank(plan PlanTier) int {
	return planTierOrder[plan]
}

// IsDowngrade reports whether moving from prev to next lowers the plan tier.
// Lateral moves (e.g. monthly to yearly billing on the same tier) and
// upgrades are not downgrades.
func IsDowngrade(prev, next PlanTier) bool {
	return TierRank(next) < TierRank(prev)
}
