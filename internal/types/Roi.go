package types

import (
	"cosmossdk.io/math"
)

// ROIResult is the projected outcome of staking Principal for Days at a fixed APR.
// Amounts are in whole tokens.
type ROIResult struct {
	Principal      math.LegacyDec `json:"principal"`
	AprBps         uint64         `json:"apr_bps"`
	Days           uint64         `json:"days"`
	TotalRewards   math.LegacyDec `json:"total_rewards"`
	TotalValue     math.LegacyDec `json:"total_value"`
	ROIPercent     math.LegacyDec `json:"roi_percent"`
	DailyRewards   math.LegacyDec `json:"daily_rewards"`
	MonthlyRewards math.LegacyDec `json:"monthly_rewards"`
}

// PoolEstimate is the reward outlook of one pool for a given amount.
type PoolEstimate struct {
	PoolID         PoolID         `json:"pool_id"`
	Label          string         `json:"label"`
	APRPercent     float64        `json:"apr_percent"`
	LockDays       uint64         `json:"lock_days"`
	DailyRewards   math.LegacyDec `json:"daily_rewards"`
	MonthlyRewards math.LegacyDec `json:"monthly_rewards"`
	YearlyRewards  math.LegacyDec `json:"yearly_rewards"`
	// LockRewards covers one full lock period; zero for flexible pools.
	LockRewards math.LegacyDec `json:"lock_rewards"`
}
