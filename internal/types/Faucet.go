package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// FaucetInfo is the fixed configuration of the test-token faucet.
type FaucetInfo struct {
	Address         common.Address `json:"address"`
	AmountPerClaim  sdkmath.Int    `json:"amount_per_claim"` // token base units
	CooldownSeconds uint64         `json:"cooldown_seconds"`
}

// FaucetStatus is the faucet as seen by one account.
type FaucetStatus struct {
	FaucetInfo
	Account               common.Address `json:"account"`
	SecondsUntilNextClaim uint64         `json:"seconds_until_next_claim"`
	CanClaim              bool           `json:"can_claim"`
}
