package datafetcher

import (
	"context"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

var positionLogger = logger.GetForComponent("position_retriever")

// PositionReader reads the stake and accrued reward of one account in every pool.
type PositionReader struct {
	reader  ContractReader
	staking common.Address
	token   common.Address
	metrics *metrics.Metrics
}

func NewPositionReader(reader ContractReader, staking, token common.Address, m *metrics.Metrics) *PositionReader {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &PositionReader{reader: reader, staking: staking, token: token, metrics: m}
}

// NewPositionReaderFromConfig uses the loaded environment configuration.
func NewPositionReaderFromConfig(reader ContractReader, m *metrics.Metrics) *PositionReader {
	return NewPositionReader(reader, config.StakingAddress, config.TokenAddress, m)
}

// LoadPositions reads balanceOf and earned for address in each pool. A zero address or
// an empty pool list yields an empty map without any chain call. Any failed read fails
// the whole load with the adapter's error; partial results are never returned.
func (r *PositionReader) LoadPositions(ctx context.Context, address common.Address, pools []types.PoolRecord) (types.Positions, error) {
	positions := make(types.Positions, len(pools))
	if address == (common.Address{}) || len(pools) == 0 {
		return positions, nil
	}

	for _, pool := range pools {
		id := new(big.Int).SetUint64(uint64(pool.ID))

		staked, err := r.readAmount(ctx, "balanceOf", id, address)
		if err != nil {
			return nil, r.fail(address, pool.ID, err)
		}
		earned, err := r.readAmount(ctx, "earned", id, address)
		if err != nil {
			return nil, r.fail(address, pool.ID, err)
		}

		positions[pool.ID] = types.UserPosition{PoolID: pool.ID, Staked: staked, Earned: earned}
	}

	positionLogger.Debug().
		Str("account", address.Hex()).
		Int("pools", len(pools)).
		Msg("Loaded positions")
	return positions, nil
}

// LoadWalletBalance reads the staking token balance held by address.
func (r *PositionReader) LoadWalletBalance(ctx context.Context, address common.Address) (sdkmath.Int, error) {
	if address == (common.Address{}) {
		return sdkmath.ZeroInt(), nil
	}
	out, err := r.reader.ReadOnlyCall(ctx, r.token, chain.TokenABI, "balanceOf", address)
	if err != nil {
		r.metrics.ReadFailures.WithLabelValues("wallet_balance").Inc()
		return sdkmath.Int{}, err
	}
	v, err := bigOutput(out, 0)
	if err != nil {
		return sdkmath.Int{}, &chain.CallError{Op: "read", Contract: r.token, Method: "balanceOf", Err: err}
	}
	return utils.BigToInt(v), nil
}

// readAmount calls a (poolId, account) -> uint256 view of the staking contract.
func (r *PositionReader) readAmount(ctx context.Context, method string, pool *big.Int, account common.Address) (sdkmath.Int, error) {
	out, err := r.reader.ReadOnlyCall(ctx, r.staking, chain.StakingABI, method, pool, account)
	if err != nil {
		return sdkmath.Int{}, err
	}
	v, err := bigOutput(out, 0)
	if err != nil {
		return sdkmath.Int{}, &chain.CallError{Op: "read", Contract: r.staking, Method: method, Err: err}
	}
	return utils.BigToInt(v), nil
}

func (r *PositionReader) fail(address common.Address, pool types.PoolID, err error) error {
	r.metrics.ReadFailures.WithLabelValues("positions").Inc()
	positionLogger.Warn().
		Err(err).
		Str("account", address.Hex()).
		Uint64("pool", uint64(pool)).
		Msg("Position read failed")
	return err
}
