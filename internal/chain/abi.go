package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// StakingABIJSON is the call surface of the multi-pool staking contract.
const StakingABIJSON = `[
	{"type":"function","name":"poolCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getPoolInfo","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[
		{"name":"stakingToken","type":"address"},
		{"name":"rewardsToken","type":"address"},
		{"name":"aprBps","type":"uint256"},
		{"name":"lockPeriod","type":"uint256"},
		{"name":"totalSupply","type":"uint256"},
		{"name":"lastUpdateTime","type":"uint256"},
		{"name":"rewardPerTokenStored","type":"uint256"}
	]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"earned","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"earlyWithdraw","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getReward","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"exit","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]}
]`

// TokenABIJSON is the ERC-20 subset used by the dashboard.
const TokenABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// FaucetABIJSON is the test-token faucet: a fixed amount per claim, one claim per cooldown.
const FaucetABIJSON = `[
	{"type":"function","name":"amountPerClaim","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"cooldown","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"secondsUntilNextClaim","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

var (
	StakingABI = mustParseABI(StakingABIJSON)
	TokenABI   = mustParseABI(TokenABIJSON)
	FaucetABI  = mustParseABI(FaucetABIJSON)
)

// packCall encodes a method call. Encoding failures never reach the chain and are
// reported as ErrInvalidCall.
func packCall(contractABI abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCall, method, err)
	}
	return data, nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid embedded ABI: " + err.Error())
	}
	return parsed
}
