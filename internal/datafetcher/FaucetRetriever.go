package datafetcher

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

var faucetLogger = logger.GetForComponent("faucet_retriever")

var ErrFaucetNotConfigured = errors.New("faucet contract address is not configured")

// FaucetReader reads the test-token faucet. Unlike pools there is no preview: without
// an address every read fails with ErrFaucetNotConfigured and makes no chain call.
type FaucetReader struct {
	reader  ContractReader
	faucet  common.Address
	metrics *metrics.Metrics
}

func NewFaucetReader(reader ContractReader, faucet common.Address, m *metrics.Metrics) *FaucetReader {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &FaucetReader{reader: reader, faucet: faucet, metrics: m}
}

// NewFaucetReaderFromConfig uses FAUCET_ADDRESS.
func NewFaucetReaderFromConfig(reader ContractReader, m *metrics.Metrics) *FaucetReader {
	return NewFaucetReader(reader, config.FaucetAddress, m)
}

// Configured reports whether a faucet address is set.
func (r *FaucetReader) Configured() bool {
	return r.faucet != (common.Address{})
}

// LoadFaucet reads amountPerClaim and cooldown.
func (r *FaucetReader) LoadFaucet(ctx context.Context) (types.FaucetInfo, error) {
	if !r.Configured() {
		return types.FaucetInfo{}, ErrFaucetNotConfigured
	}

	amount, err := r.readUint(ctx, "amountPerClaim")
	if err != nil {
		return types.FaucetInfo{}, r.fail("amountPerClaim", err)
	}
	cooldown, err := r.readUint(ctx, "cooldown")
	if err != nil {
		return types.FaucetInfo{}, r.fail("cooldown", err)
	}
	if !cooldown.IsUint64() {
		return types.FaucetInfo{}, r.fail("cooldown", &chain.CallError{Op: "read", Contract: r.faucet, Method: "cooldown", Err: errors.New("cooldown overflows uint64")})
	}

	return types.FaucetInfo{
		Address:         r.faucet,
		AmountPerClaim:  amount,
		CooldownSeconds: cooldown.Uint64(),
	}, nil
}

// LoadFaucetStatus adds the time left before account may claim again.
func (r *FaucetReader) LoadFaucetStatus(ctx context.Context, account common.Address) (types.FaucetStatus, error) {
	info, err := r.LoadFaucet(ctx)
	if err != nil {
		return types.FaucetStatus{}, err
	}

	left, err := r.readUint(ctx, "secondsUntilNextClaim", account)
	if err != nil {
		return types.FaucetStatus{}, r.fail("secondsUntilNextClaim", err)
	}
	seconds := info.CooldownSeconds
	if left.IsUint64() {
		seconds = left.Uint64()
	}

	faucetLogger.Debug().
		Str("account", account.Hex()).
		Uint64("secondsLeft", seconds).
		Msg("Loaded faucet status")
	return types.FaucetStatus{
		FaucetInfo:            info,
		Account:               account,
		SecondsUntilNextClaim: seconds,
		CanClaim:              seconds == 0,
	}, nil
}

func (r *FaucetReader) readUint(ctx context.Context, method string, args ...interface{}) (sdkmath.Int, error) {
	out, err := r.reader.ReadOnlyCall(ctx, r.faucet, chain.FaucetABI, method, args...)
	if err != nil {
		return sdkmath.Int{}, err
	}
	v, err := bigOutput(out, 0)
	if err != nil {
		return sdkmath.Int{}, &chain.CallError{Op: "read", Contract: r.faucet, Method: method, Err: err}
	}
	return utils.BigToInt(v), nil
}

func (r *FaucetReader) fail(method string, err error) error {
	r.metrics.ReadFailures.WithLabelValues("faucet").Inc()
	faucetLogger.Warn().Err(err).Str("method", method).Msg("Faucet read failed")
	return err
}
