package datafetcher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain/chaintest"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFaucetReader(t *testing.T, backend *chaintest.FakeChain, faucet common.Address) (*datafetcher.FaucetReader, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewUnregistered()
	adapter, err := chain.NewAdapter(chain.Config{Fallback: backend, Metrics: m})
	require.NoError(t, err)
	t.Cleanup(adapter.Close)
	return datafetcher.NewFaucetReader(adapter, faucet, m), m
}

func TestLoadFaucetStatus(t *testing.T) {
	backend := chaintest.NewFakeChain(97)
	backend.SetFaucet(1_000, 86_400)
	reader, _ := newFaucetReader(t, backend, backend.Faucet)

	info, err := reader.LoadFaucet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backend.Faucet, info.Address)
	assert.Equal(t, int64(1_000), info.AmountPerClaim.Int64())
	assert.Equal(t, uint64(86_400), info.CooldownSeconds)

	status, err := reader.LoadFaucetStatus(context.Background(), alice)
	require.NoError(t, err)
	assert.Zero(t, status.SecondsUntilNextClaim)
	assert.True(t, status.CanClaim)
	assert.Equal(t, alice, status.Account)

	claim, err := chain.FaucetABI.Pack("claim")
	require.NoError(t, err)
	_, err = backend.Execute(alice, backend.Faucet, claim)
	require.NoError(t, err)
	backend.AdvanceTime(3_600)

	status, err = reader.LoadFaucetStatus(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(82_800), status.SecondsUntilNextClaim)
	assert.False(t, status.CanClaim)

	// Other accounts are unaffected.
	status, err = reader.LoadFaucetStatus(context.Background(), bob)
	require.NoError(t, err)
	assert.True(t, status.CanClaim)
}

func TestLoadFaucetNotConfigured(t *testing.T) {
	backend := chaintest.NewFakeChain(97)
	reader, _ := newFaucetReader(t, backend, common.Address{})

	assert.False(t, reader.Configured())
	_, err := reader.LoadFaucet(context.Background())
	assert.ErrorIs(t, err, datafetcher.ErrFaucetNotConfigured)
	_, err = reader.LoadFaucetStatus(context.Background(), alice)
	assert.ErrorIs(t, err, datafetcher.ErrFaucetNotConfigured)
	assert.Zero(t, backend.TotalCalls())
}

func TestLoadFaucetFailure(t *testing.T) {
	backend := chaintest.NewFakeChain(97)
	backend.Fail("faucet.cooldown", errors.New("connection reset"))
	reader, m := newFaucetReader(t, backend, backend.Faucet)

	_, err := reader.LoadFaucet(context.Background())
	assert.ErrorIs(t, err, chain.ErrTransientRead)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadFailures.WithLabelValues("faucet")))
}
