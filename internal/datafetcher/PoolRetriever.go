package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

var poolLogger = logger.GetForComponent("pool_retriever")

var (
	ErrStakingNotConfigured = errors.New("staking contract address is not configured")
	ErrInvalidPoolData      = errors.New("invalid pool data")
)

// maxPools guards against a misconfigured address answering poolCount with garbage.
const maxPools = 1024

// ContractReader performs view calls. *chain.Adapter satisfies it.
type ContractReader interface {
	ReadOnlyCall(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error)
}

// PoolReaderConfig configures a PoolReader.
type PoolReaderConfig struct {
	Staking           common.Address
	StakingConfigured bool
	Token             common.Address
	// Concurrency bounds the getPoolInfo calls in flight. Defaults to 1.
	Concurrency int
	Metrics     *metrics.Metrics
}

// PoolReader enumerates the pools of the staking contract.
type PoolReader struct {
	reader  ContractReader
	cfg     PoolReaderConfig
	metrics *metrics.Metrics
}

func NewPoolReader(reader ContractReader, cfg PoolReaderConfig) *PoolReader {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}
	return &PoolReader{reader: reader, cfg: cfg, metrics: cfg.Metrics}
}

// NewPoolReaderFromConfig uses the loaded environment configuration.
func NewPoolReaderFromConfig(reader ContractReader, m *metrics.Metrics) *PoolReader {
	return NewPoolReader(reader, PoolReaderConfig{
		Staking:           config.StakingAddress,
		StakingConfigured: config.StakingConfigured,
		Token:             config.TokenAddress,
		Concurrency:       config.PoolReadConcurrency,
		Metrics:           m,
	})
}

// LoadPools reads every pool in id order. When the contract is not configured or any
// read fails it returns the preview set with Live=false and the cause in Err; it never
// returns an empty set in that case.
func (r *PoolReader) LoadPools(ctx context.Context) types.PoolSet {
	if !r.cfg.StakingConfigured {
		return r.preview(ErrStakingNotConfigured)
	}

	out, err := r.reader.ReadOnlyCall(ctx, r.cfg.Staking, chain.StakingABI, "poolCount")
	if err != nil {
		return r.preview(err)
	}
	count, err := uintOutput(out, 0)
	if err != nil {
		return r.preview(fmt.Errorf("%w: poolCount: %v", ErrInvalidPoolData, err))
	}
	if count > maxPools {
		return r.preview(fmt.Errorf("%w: poolCount %d exceeds %d", ErrInvalidPoolData, count, maxPools))
	}

	// Each goroutine owns one slot, so records stay in id order whatever the completion order.
	records := make([]types.PoolRecord, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i := uint64(0); i < count; i++ {
		id := i
		g.Go(func() error {
			record, err := r.readPool(gctx, id)
			if err != nil {
				return err
			}
			records[id] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r.preview(err)
	}

	set := types.PoolSet{Pools: records, Live: true}
	if reserve, err := r.rewardReserve(ctx); err != nil {
		poolLogger.Warn().Err(err).Msg("Reward reserve unavailable")
	} else {
		set.RewardReserve = &reserve
	}

	poolLogger.Debug().Int("poolCount", len(records)).Msg("Loaded live pools")
	return set
}

func (r *PoolReader) readPool(ctx context.Context, id uint64) (types.PoolRecord, error) {
	out, err := r.reader.ReadOnlyCall(ctx, r.cfg.Staking, chain.StakingABI, "getPoolInfo", new(big.Int).SetUint64(id))
	if err != nil {
		return types.PoolRecord{}, err
	}
	if len(out) != 7 {
		return types.PoolRecord{}, fmt.Errorf("%w: pool %d returned %d fields", ErrInvalidPoolData, id, len(out))
	}

	stakingToken, ok1 := out[0].(common.Address)
	rewardsToken, ok2 := out[1].(common.Address)
	if !ok1 || !ok2 {
		return types.PoolRecord{}, fmt.Errorf("%w: pool %d token fields", ErrInvalidPoolData, id)
	}
	aprBps, err := uintOutput(out, 2)
	if err != nil {
		return types.PoolRecord{}, fmt.Errorf("%w: pool %d aprBps: %v", ErrInvalidPoolData, id, err)
	}
	lockPeriod, err := uintOutput(out, 3)
	if err != nil {
		return types.PoolRecord{}, fmt.Errorf("%w: pool %d lockPeriod: %v", ErrInvalidPoolData, id, err)
	}
	totalStaked, err := bigOutput(out, 4)
	if err != nil {
		return types.PoolRecord{}, fmt.Errorf("%w: pool %d totalSupply: %v", ErrInvalidPoolData, id, err)
	}
	lastUpdate, err := uintOutput(out, 5)
	if err != nil {
		return types.PoolRecord{}, fmt.Errorf("%w: pool %d lastUpdateTime: %v", ErrInvalidPoolData, id, err)
	}
	rewardPerToken, err := bigOutput(out, 6)
	if err != nil {
		return types.PoolRecord{}, fmt.Errorf("%w: pool %d rewardPerTokenStored: %v", ErrInvalidPoolData, id, err)
	}

	return types.PoolRecord{
		ID:                   types.PoolID(id),
		StakingToken:         stakingToken,
		RewardsToken:         rewardsToken,
		AprBps:               aprBps,
		LockPeriod:           lockPeriod,
		TotalStaked:          utils.BigToInt(totalStaked),
		LastUpdateTime:       lastUpdate,
		RewardPerTokenStored: utils.BigToInt(rewardPerToken),
	}, nil
}

// rewardReserve is the reward token balance held by the staking contract.
func (r *PoolReader) rewardReserve(ctx context.Context) (sdkmath.Int, error) {
	out, err := r.reader.ReadOnlyCall(ctx, r.cfg.Token, chain.TokenABI, "balanceOf", r.cfg.Staking)
	if err != nil {
		return sdkmath.Int{}, err
	}
	v, err := bigOutput(out, 0)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return utils.BigToInt(v), nil
}

func (r *PoolReader) preview(cause error) types.PoolSet {
	r.metrics.PreviewPoolsServed.Inc()
	if !errors.Is(cause, ErrStakingNotConfigured) {
		r.metrics.ReadFailures.WithLabelValues("pools").Inc()
		poolLogger.Warn().Err(cause).Msg("Pool read failed, serving preview pools")
	}
	return types.PoolSet{
		Pools: config.PreviewPools(),
		Live:  false,
		Hint:  config.PreviewHint,
		Err:   cause,
	}
}

func bigOutput(out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("missing output %d", i)
	}
	v, ok := out[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("output %d is %T, expected *big.Int", i, out[i])
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("output %d is negative", i)
	}
	return v, nil
}

func uintOutput(out []interface{}, i int) (uint64, error) {
	v, err := bigOutput(out, i)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("output %d overflows uint64", i)
	}
	return v.Uint64(), nil
}
