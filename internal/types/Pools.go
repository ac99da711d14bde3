/*

Pool records as read from the staking contract. A record is an immutable snapshot:
every refresh replaces the whole set instead of patching individual fields.

*/

package types

import (
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

const secondsPerDay = 24 * 60 * 60

type PoolID uint64

type PoolRecord struct {
	ID                   PoolID         `json:"id"`
	StakingToken         common.Address `json:"staking_token"`
	RewardsToken         common.Address `json:"rewards_token"`
	AprBps               uint64         `json:"apr_bps"`             // 2500 = 25.00%
	LockPeriod           uint64         `json:"lock_period_seconds"` // 0 = flexible
	TotalStaked          math.Int       `json:"total_staked"`        // token base units
	LastUpdateTime       uint64         `json:"last_update_time"`
	RewardPerTokenStored math.Int       `json:"reward_per_token_stored"`
}

// Label is the display name used by the dashboard cards.
func (p PoolRecord) Label() string {
	if p.LockPeriod == 0 {
		return "Flexible Staking"
	}
	return fmt.Sprintf("%d-Day Lock", p.LockDays())
}

// LockDays rounds the lock period down to whole days.
func (p PoolRecord) LockDays() uint64 {
	return p.LockPeriod / secondsPerDay
}

// APRPercent converts basis points into a percentage.
func (p PoolRecord) APRPercent() float64 {
	return float64(p.AprBps) / 100
}

// PoolSet is the result of one pool read. Live is false when the records are the
// preview set shown while no staking contract is reachable. RewardReserve is nil
// when the reserve could not be read.
type PoolSet struct {
	Pools         []PoolRecord `json:"pools"`
	Live          bool         `json:"live"`
	Hint          string       `json:"hint,omitempty"`
	RewardReserve *math.Int    `json:"reward_reserve,omitempty"`
	Err           error        `json:"-"`
}

// IDs returns the pool ids in read order.
func (s PoolSet) IDs() []PoolID {
	ids := make([]PoolID, 0, len(s.Pools))
	for _, p := range s.Pools {
		ids = append(ids, p.ID)
	}
	return ids
}
