/*

Per-pool positions of the connected account. Positions only exist while a wallet is
connected and are dropped as a whole on disconnect or account change.

*/

package types

import (
	"strconv"

	sdkmath "cosmossdk.io/math"
)

type UserPosition struct {
	PoolID PoolID      `json:"pool_id"`
	Staked sdkmath.Int `json:"staked"` // token base units
	Earned sdkmath.Int `json:"earned"` // accrued, unclaimed reward in base units
}

// Positions is keyed by pool id.
type Positions map[PoolID]UserPosition

// Balances renders staked amounts as base-unit strings keyed by pool id.
func (p Positions) Balances() map[string]string {
	out := make(map[string]string, len(p))
	for id, pos := range p {
		out[strconv.FormatUint(uint64(id), 10)] = intString(pos.Staked)
	}
	return out
}

// EarnedByPool renders accrued rewards as base-unit strings keyed by pool id.
func (p Positions) EarnedByPool() map[string]string {
	out := make(map[string]string, len(p))
	for id, pos := range p {
		out[strconv.FormatUint(uint64(id), 10)] = intString(pos.Earned)
	}
	return out
}

// Clone returns an independent copy.
func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for id, pos := range p {
		out[id] = pos
	}
	return out
}

func intString(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}
