/*

Preview pools are shown while the staking contract is not deployed or cannot be reached.
They mirror the tiers the contract is deployed with so the dashboard stays usable,
and are always flagged as not live.

*/

package config

import (
	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
)

const day = 24 * 60 * 60

// PreviewHint is attached to every preview pool set.
const PreviewHint = "Preview data: staking contract not reachable"

var previewTiers = []struct {
	aprBps     uint64
	lockPeriod uint64
}{
	{aprBps: 1500, lockPeriod: 0},
	{aprBps: 2500, lockPeriod: 30 * day},
	{aprBps: 4000, lockPeriod: 60 * day},
	{aprBps: 8000, lockPeriod: 90 * day},
}

// PreviewPools returns a fresh copy of the placeholder pool set.
func PreviewPools() []types.PoolRecord {
	pools := make([]types.PoolRecord, 0, len(previewTiers))
	for i, tier := range previewTiers {
		pools = append(pools, types.PoolRecord{
			ID:                   types.PoolID(i),
			StakingToken:         TokenAddress,
			RewardsToken:         TokenAddress,
			AprBps:               tier.aprBps,
			LockPeriod:           tier.lockPeriod,
			TotalStaked:          sdkmath.ZeroInt(),
			RewardPerTokenStored: sdkmath.ZeroInt(),
		})
	}
	return pools
}
