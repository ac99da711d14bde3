/*

This file contains the reward projections shown by the ROI calculator and the pool cards.

Rewards are simple interest: principal * apr * days / 365. Nothing is compounded
because the staking contract does not restake rewards.

*/

package analyzer

import (
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
)

var ErrInvalidROIInput = errors.New("invalid ROI input")

var roiLogger = logger.GetForComponent("roi_calculator")

const (
	DAYS_PER_YEAR   = 365
	DAYS_PER_MONTH  = 30
	BPS_DENOMINATOR = 10_000
	// MAX_ROI_DAYS bounds the projection horizon to ten years.
	MAX_ROI_DAYS = 3650
)

// CalculateROI projects the rewards of staking principal for days at aprBps.
func CalculateROI(principal math.LegacyDec, aprBps uint64, days uint64) (types.ROIResult, error) {
	if err := validateROIInputs(principal, aprBps, days); err != nil {
		roiLogger.Warn().
			Err(err).
			Uint64("aprBps", aprBps).
			Uint64("days", days).
			Msg("ROI input validation failed")
		return types.ROIResult{}, errors.Join(ErrInvalidROIInput, err)
	}

	yearly := yearlyRewards(principal, aprBps)
	rewards := yearly.MulInt64(int64(days)).QuoInt64(DAYS_PER_YEAR)

	roi := math.LegacyZeroDec()
	if principal.IsPositive() && rewards.IsPositive() {
		roi = rewards.Quo(principal).MulInt64(100)
	}

	result := types.ROIResult{
		Principal:      principal,
		AprBps:         aprBps,
		Days:           days,
		TotalRewards:   rewards,
		TotalValue:     principal.Add(rewards),
		ROIPercent:     roi,
		DailyRewards:   yearly.QuoInt64(DAYS_PER_YEAR),
		MonthlyRewards: yearly.MulInt64(DAYS_PER_MONTH).QuoInt64(DAYS_PER_YEAR),
	}

	roiLogger.Debug().
		Str("principal", principal.String()).
		Uint64("aprBps", aprBps).
		Uint64("days", days).
		Str("totalRewards", rewards.String()).
		Msg("ROI calculated")
	return result, nil
}

// PoolEstimates projects the rewards of amount in every pool, in pool order.
func PoolEstimates(amount math.LegacyDec, pools []types.PoolRecord) ([]types.PoolEstimate, error) {
	if amount.IsNil() || amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be zero or positive", ErrInvalidROIInput)
	}

	estimates := make([]types.PoolEstimate, 0, len(pools))
	for _, pool := range pools {
		yearly := yearlyRewards(amount, pool.AprBps)
		lockDays := pool.LockDays()
		estimates = append(estimates, types.PoolEstimate{
			PoolID:         pool.ID,
			Label:          pool.Label(),
			APRPercent:     pool.APRPercent(),
			LockDays:       lockDays,
			DailyRewards:   yearly.QuoInt64(DAYS_PER_YEAR),
			MonthlyRewards: yearly.MulInt64(DAYS_PER_MONTH).QuoInt64(DAYS_PER_YEAR),
			YearlyRewards:  yearly,
			LockRewards:    yearly.MulInt64(int64(lockDays)).QuoInt64(DAYS_PER_YEAR),
		})
	}
	return estimates, nil
}

func yearlyRewards(principal math.LegacyDec, aprBps uint64) math.LegacyDec {
	return principal.MulInt64(int64(aprBps)).QuoInt64(BPS_DENOMINATOR)
}

func validateROIInputs(principal math.LegacyDec, aprBps uint64, days uint64) error {
	if principal.IsNil() {
		return errors.New("principal is required")
	}
	if principal.IsNegative() {
		return fmt.Errorf("principal cannot be negative: %s", principal)
	}
	if aprBps > 100*BPS_DENOMINATOR {
		return fmt.Errorf("APR of %d bps exceeds 10000%%", aprBps)
	}
	if days > MAX_ROI_DAYS {
		return fmt.Errorf("days %d exceeds maximum of %d", days, MAX_ROI_DAYS)
	}
	return nil
}
