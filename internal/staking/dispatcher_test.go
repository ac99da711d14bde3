package staking_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain/chaintest"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/staking"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chainID    = 11155111
	thirtyDays = 30 * 24 * 60 * 60
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type receiptLog struct {
	mu       sync.Mutex
	receipts []types.ActionReceipt
}

func (l *receiptLog) SaveActionReceipt(ctx context.Context, receipt types.ActionReceipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receipts = append(l.receipts, receipt)
	return nil
}

func (l *receiptLog) all() []types.ActionReceipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.ActionReceipt(nil), l.receipts...)
}

type harness struct {
	backend    *chaintest.FakeChain
	adapter    *chain.Adapter
	dispatcher *staking.Dispatcher
	metrics    *metrics.Metrics
	receipts   *receiptLog

	mu        sync.Mutex
	phases    []types.ActionPhase
	confirmed []types.ActionResult
}

func newHarness(t *testing.T, gate func() error) *harness {
	t.Helper()
	backend := chaintest.NewFakeChain(chainID)
	backend.AddPool(1500, 0)
	backend.AddPool(2500, thirtyDays)
	backend.SetTokenBalance(alice, 1_000)

	wallet := chaintest.NewFakeWallet(backend, alice)
	adapter, err := chain.NewAdapter(chain.Config{Wallet: wallet})
	require.NoError(t, err)
	t.Cleanup(adapter.Close)
	_, err = adapter.Connect(context.Background())
	require.NoError(t, err)

	h := &harness{backend: backend, adapter: adapter, metrics: metrics.NewUnregistered(), receipts: &receiptLog{}}
	h.dispatcher = h.newDispatcher(adapter, gate)
	return h
}

func (h *harness) newDispatcher(writer staking.ChainWriter, gate func() error) *staking.Dispatcher {
	return staking.NewDispatcher(writer, staking.Config{
		Staking:  h.backend.Staking,
		Token:    h.backend.Token,
		Faucet:   h.backend.Faucet,
		Gate:     gate,
		Receipts: h.receipts,
		Metrics:  h.metrics,
		OnChange: func(p *types.PendingAction) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if p == nil {
				h.phases = append(h.phases, types.PhaseIdle)
				return
			}
			h.phases = append(h.phases, p.Phase)
		},
		AfterConfirm: func(ctx context.Context, result types.ActionResult) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.confirmed = append(h.confirmed, result)
		},
	})
}

func (h *harness) recorded() ([]types.ActionPhase, []types.ActionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.ActionPhase(nil), h.phases...), append([]types.ActionResult(nil), h.confirmed...)
}

func TestStakeApprovesWhenAllowanceIsLow(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetAllowance(alice, h.backend.Staking, 10)

	result, err := h.dispatcher.Stake(context.Background(), 1, sdkmath.NewInt(100))
	require.NoError(t, err)
	require.NotNil(t, result.ApprovalTx)
	assert.NotEqual(t, common.Hash{}, result.TxHash)
	assert.NotZero(t, result.BlockNumber)

	assert.Equal(t, 1, h.backend.Calls("tx.approve"))
	assert.Equal(t, 1, h.backend.Calls("tx.stake"))
	log := h.backend.CallLog()
	assert.Less(t, indexOf(log, "tx.approve"), indexOf(log, "tx.stake"))

	assert.Equal(t, int64(100), h.backend.Staked(1, alice).Int64())
	assert.Equal(t, int64(900), h.backend.TokenBalance(alice).Int64())

	phases, confirmed := h.recorded()
	assert.Equal(t, []types.ActionPhase{
		types.PhaseAwaitingApproval,
		types.PhaseSubmitting,
		types.PhaseConfirming,
		types.PhaseIdle,
	}, phases)
	require.Len(t, confirmed, 1)
	assert.Equal(t, types.ActionStake, confirmed[0].Kind)
	assert.Nil(t, h.dispatcher.Pending())
}

func TestStakeSkipsApprovalWhenAllowanceSuffices(t *testing.T) {
	for _, allowance := range []int64{100, 5_000} {
		h := newHarness(t, nil)
		h.backend.SetAllowance(alice, h.backend.Staking, allowance)

		result, err := h.dispatcher.Stake(context.Background(), 0, sdkmath.NewInt(100))
		require.NoError(t, err)
		assert.Nil(t, result.ApprovalTx)
		assert.Zero(t, h.backend.Calls("tx.approve"))
		assert.Equal(t, 1, h.backend.Calls("tx.stake"))

		phases, _ := h.recorded()
		assert.Equal(t, []types.ActionPhase{types.PhaseSubmitting, types.PhaseConfirming, types.PhaseIdle}, phases)
	}
}

func TestInvalidAmountIssuesNoCalls(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.ResetCalls()
	ctx := context.Background()

	_, err := h.dispatcher.Stake(ctx, 0, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, staking.ErrInvalidAmount)
	_, err = h.dispatcher.Stake(ctx, 0, sdkmath.Int{})
	assert.ErrorIs(t, err, staking.ErrInvalidAmount)
	_, err = h.dispatcher.Withdraw(ctx, 0, sdkmath.NewInt(-5))
	assert.ErrorIs(t, err, staking.ErrInvalidAmount)
	_, err = h.dispatcher.EarlyWithdraw(ctx, 0, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, staking.ErrInvalidAmount)

	assert.Zero(t, h.backend.TotalCalls())
	assert.Nil(t, h.dispatcher.Pending())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ActionsTotal.WithLabelValues("STAKE", "invalid")))
	phases, _ := h.recorded()
	assert.Empty(t, phases)
}

// blockingWriter holds the first WriteCall until released.
type blockingWriter struct {
	staking.ChainWriter
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *blockingWriter) WriteCall(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (chain.PendingTx, error) {
	w.once.Do(func() {
		close(w.entered)
		<-w.release
	})
	return w.ChainWriter.WriteCall(ctx, contract, contractABI, method, args...)
}

func TestBusyWhilePending(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetStake(0, alice, 500)
	writer := &blockingWriter{ChainWriter: h.adapter, entered: make(chan struct{}), release: make(chan struct{})}
	dispatcher := h.newDispatcher(writer, nil)

	done := make(chan error, 1)
	go func() {
		_, err := dispatcher.Claim(context.Background(), 0)
		done <- err
	}()
	<-writer.entered

	pending := dispatcher.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, types.ActionClaim, pending.Kind)
	assert.Equal(t, "Claiming...", pending.Label)

	h.backend.ResetCalls()
	ctx := context.Background()
	_, err := dispatcher.Stake(ctx, 0, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, staking.ErrBusy)
	_, err = dispatcher.Withdraw(ctx, 0, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, staking.ErrBusy)
	_, err = dispatcher.Claim(ctx, 0)
	assert.ErrorIs(t, err, staking.ErrBusy)
	_, err = dispatcher.Exit(ctx, 0)
	assert.ErrorIs(t, err, staking.ErrBusy)
	// The pending slot is checked before the amount.
	_, err = dispatcher.Withdraw(ctx, 0, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, staking.ErrBusy)
	_, err = dispatcher.Stake(ctx, 0, sdkmath.Int{})
	assert.ErrorIs(t, err, staking.ErrBusy)
	_, err = dispatcher.ClaimFaucet(ctx)
	assert.ErrorIs(t, err, staking.ErrBusy)
	assert.Zero(t, h.backend.TotalCalls())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActionsTotal.WithLabelValues("STAKE", "busy")))

	close(writer.release)
	require.NoError(t, <-done)
	assert.Nil(t, dispatcher.Pending())

	_, err = dispatcher.Claim(ctx, 0)
	assert.NoError(t, err)
}

func TestGateRejectsWithoutCalls(t *testing.T) {
	h := newHarness(t, func() error { return chain.ErrWrongNetwork })
	h.backend.ResetCalls()

	_, err := h.dispatcher.Stake(context.Background(), 0, sdkmath.NewInt(10))
	assert.ErrorIs(t, err, chain.ErrWrongNetwork)
	_, err = h.dispatcher.Withdraw(context.Background(), 0, sdkmath.NewInt(10))
	assert.ErrorIs(t, err, chain.ErrWrongNetwork)

	assert.Zero(t, h.backend.TotalCalls())
	assert.Nil(t, h.dispatcher.Pending())
	assert.Empty(t, h.receipts.all())
}

func TestWithdrawInsideLockSurfacesRevert(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetStake(1, alice, 300)

	_, err := h.dispatcher.Withdraw(context.Background(), 1, sdkmath.NewInt(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrLockNotExpired)
	var revertErr *chain.ContractRevertError
	require.True(t, errors.As(err, &revertErr))
	assert.Equal(t, "Lock period not expired", revertErr.Reason)

	assert.Nil(t, h.dispatcher.Pending())
	assert.Equal(t, int64(300), h.backend.Staked(1, alice).Int64())
	_, confirmed := h.recorded()
	assert.Empty(t, confirmed)

	receipts := h.receipts.all()
	require.Len(t, receipts, 1)
	assert.False(t, receipts[0].Success)
	assert.Contains(t, receipts[0].Message, "Lock period not expired")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActionsTotal.WithLabelValues("WITHDRAW", "reverted")))

	h.backend.AdvanceTime(thirtyDays)
	result, err := h.dispatcher.Withdraw(context.Background(), 1, sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, types.ActionWithdraw, result.Kind)
	assert.Equal(t, int64(200), h.backend.Staked(1, alice).Int64())
}

func TestEarlyWithdrawLeavesPolicyToContract(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetStake(1, alice, 300)
	h.backend.SetEarned(1, alice, 40)

	_, err := h.dispatcher.EarlyWithdraw(context.Background(), 1, sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(200), h.backend.Staked(1, alice).Int64())
	assert.Equal(t, int64(1_090), h.backend.TokenBalance(alice).Int64())
}

func TestClaimZeroRewardIsSubmitted(t *testing.T) {
	h := newHarness(t, nil)

	result, err := h.dispatcher.Claim(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.Calls("tx.getReward"))
	assert.True(t, result.Amount.IsZero())

	receipts := h.receipts.all()
	require.Len(t, receipts, 1)
	assert.True(t, receipts[0].Success)
	assert.Empty(t, receipts[0].Amount)
	assert.Equal(t, alice.Hex(), receipts[0].Account)
	assert.Equal(t, result.TxHash.Hex(), receipts[0].TxHash)
}

func TestExitWithdrawsAndClaims(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetStake(0, alice, 250)
	h.backend.SetEarned(0, alice, 25)

	_, err := h.dispatcher.Exit(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.Calls("tx.exit"))
	assert.Zero(t, h.backend.Staked(0, alice).Int64())
	assert.Equal(t, int64(1_275), h.backend.TokenBalance(alice).Int64())

	_, confirmed := h.recorded()
	require.Len(t, confirmed, 1)
	assert.Equal(t, types.ActionExit, confirmed[0].Kind)
}

func TestSignatureRejectedReleasesSlot(t *testing.T) {
	backend := chaintest.NewFakeChain(chainID)
	backend.AddPool(1500, 0)
	wallet := chaintest.NewFakeWallet(backend, alice)
	adapter, err := chain.NewAdapter(chain.Config{Wallet: wallet})
	require.NoError(t, err)
	defer adapter.Close()
	_, err = adapter.Connect(context.Background())
	require.NoError(t, err)
	wallet.RejectSign = true

	m := metrics.NewUnregistered()
	dispatcher := staking.NewDispatcher(adapter, staking.Config{Staking: backend.Staking, Token: backend.Token, Metrics: m})

	_, err = dispatcher.Claim(context.Background(), 0)
	assert.ErrorIs(t, err, chain.ErrUserRejected)
	assert.Nil(t, dispatcher.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("CLAIM", "rejected")))

	wallet.RejectSign = false
	_, err = dispatcher.Claim(context.Background(), 0)
	assert.NoError(t, err)
}

func indexOf(log []string, key string) int {
	for i, k := range log {
		if k == key {
			return i
		}
	}
	return -1
}

func TestClaimFaucet(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetFaucet(500, 86_400)

	result, err := h.dispatcher.ClaimFaucet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ActionFaucetClaim, result.Kind)
	assert.Equal(t, 1, h.backend.Calls("tx.claim"))
	assert.Equal(t, int64(1_500), h.backend.TokenBalance(alice).Int64())

	phases, confirmed := h.recorded()
	assert.Equal(t, []types.ActionPhase{types.PhaseSubmitting, types.PhaseConfirming, types.PhaseIdle}, phases)
	require.Len(t, confirmed, 1)

	// A second claim inside the cooldown is left to the contract.
	_, err = h.dispatcher.ClaimFaucet(context.Background())
	var revertErr *chain.ContractRevertError
	require.ErrorAs(t, err, &revertErr)
	assert.Equal(t, "Faucet: cooldown active", revertErr.Reason)
	assert.Equal(t, int64(1_500), h.backend.TokenBalance(alice).Int64())
	assert.Nil(t, h.dispatcher.Pending())

	h.backend.AdvanceTime(86_400)
	_, err = h.dispatcher.ClaimFaucet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), h.backend.TokenBalance(alice).Int64())
}

func TestClaimFaucetRequiresAddress(t *testing.T) {
	h := newHarness(t, nil)
	dispatcher := staking.NewDispatcher(h.adapter, staking.Config{Staking: h.backend.Staking, Token: h.backend.Token})
	h.backend.ResetCalls()

	_, err := dispatcher.ClaimFaucet(context.Background())
	assert.ErrorIs(t, err, datafetcher.ErrFaucetNotConfigured)
	assert.Zero(t, h.backend.TotalCalls())
	assert.Nil(t, dispatcher.Pending())
}
