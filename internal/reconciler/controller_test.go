package reconciler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain/chaintest"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/reconciler"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chainID    = 11155111
	otherChain = 1
	thirtyDays = 30 * 24 * 60 * 60
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type session struct {
	backend    *chaintest.FakeChain
	wallet     *chaintest.FakeWallet
	adapter    *chain.Adapter
	metrics    *metrics.Metrics
	controller *reconciler.Controller
}

type sessionOption func(*reconciler.Config)

func withAutoConnect(cfg *reconciler.Config) { cfg.AutoConnect = true }

// newSession deploys two pools and gives alice the scenario A position: 100 staked and
// 5 earned in pool 0, nothing in pool 1.
func newSession(t *testing.T, opts ...sessionOption) *session {
	t.Helper()
	backend := chaintest.NewFakeChain(chainID)
	backend.AddPool(1500, 0)
	backend.AddPool(2500, thirtyDays)
	backend.SetStake(0, alice, 100)
	backend.SetEarned(0, alice, 5)
	backend.SetTokenBalance(alice, 1_000)
	backend.SetStake(1, bob, 40)

	wallet := chaintest.NewFakeWallet(backend, alice)
	return newSessionWith(t, backend, wallet, opts...)
}

func newSessionWith(t *testing.T, backend *chaintest.FakeChain, wallet *chaintest.FakeWallet, opts ...sessionOption) *session {
	t.Helper()
	m := metrics.NewUnregistered()
	adapter, err := chain.NewAdapter(chain.Config{Wallet: wallet, Fallback: backend, Metrics: m})
	require.NoError(t, err)

	cfg := reconciler.Config{
		Chain: adapter,
		Pools: datafetcher.NewPoolReader(adapter, datafetcher.PoolReaderConfig{
			Staking:           backend.Staking,
			StakingConfigured: true,
			Token:             backend.Token,
			Concurrency:       2,
			Metrics:           m,
		}),
		Positions: datafetcher.NewPositionReader(adapter, backend.Staking, backend.Token, m),
		Network:   types.Network{ChainID: chainID, Name: "Sepolia"},
		Staking:   backend.Staking,
		Token:     backend.Token,
		Metrics:   m,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	controller, err := reconciler.NewController(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		controller.Close()
		adapter.Close()
	})

	return &session{backend: backend, wallet: wallet, adapter: adapter, metrics: m, controller: controller}
}

func (s *session) connect(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.controller.Mount(ctx))
	_, err := s.controller.Connect(ctx)
	require.NoError(t, err)
}

func TestNewControllerValidatesConfig(t *testing.T) {
	_, err := reconciler.NewController(reconciler.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain adapter cannot be nil")
}

func TestMountLoadsPoolsWithoutConnecting(t *testing.T) {
	s := newSession(t)

	require.NoError(t, s.controller.Mount(context.Background()))

	snap := s.controller.Snapshot()
	assert.True(t, snap.Live)
	assert.Len(t, snap.Pools, 2)
	assert.Equal(t, types.Disconnected, snap.Connection.Status)
	assert.Empty(t, snap.MyBalances)
	assert.Empty(t, snap.MyEarned)
	assert.Zero(t, s.backend.Calls("staking.balanceOf"))
	assert.Zero(t, s.wallet.RequestCalls())
	assert.Zero(t, s.backend.ActiveSubscriptions())
}

func TestConnectLoadsScenarioA(t *testing.T) {
	s := newSession(t)
	s.connect(t)

	snap := s.controller.Snapshot()
	assert.Equal(t, types.Connected, snap.Connection.Status)
	assert.Equal(t, alice, snap.Connection.Address)
	assert.Equal(t, map[string]string{"0": "100", "1": "0"}, snap.MyBalances)
	assert.Equal(t, map[string]string{"0": "5", "1": "0"}, snap.MyEarned)
	require.NotNil(t, snap.WalletBalance)
	assert.Equal(t, "1000", snap.WalletBalance.String())
	assert.False(t, snap.PositionsStale)
	assert.Equal(t, 1, s.backend.ActiveSubscriptions())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ConnectionStatus.WithLabelValues("connected")))
}

func TestAutoconnectRestoresSessionWithoutPrompt(t *testing.T) {
	backend := chaintest.NewFakeChain(chainID)
	backend.AddPool(1500, 0)
	backend.SetStake(0, alice, 100)
	wallet := chaintest.NewFakeWallet(backend, alice)
	wallet.Authorize()
	s := newSessionWith(t, backend, wallet, withAutoConnect)

	require.NoError(t, s.controller.Mount(context.Background()))

	snap := s.controller.Snapshot()
	assert.Equal(t, types.Connected, snap.Connection.Status)
	assert.Equal(t, map[string]string{"0": "100"}, snap.MyBalances)
	assert.Zero(t, wallet.RequestCalls())
}

func TestAutoconnectSkippedWhenNeverAuthorised(t *testing.T) {
	s := newSession(t, withAutoConnect)

	require.NoError(t, s.controller.Mount(context.Background()))

	assert.Equal(t, types.Disconnected, s.controller.Snapshot().Connection.Status)
	assert.Zero(t, s.wallet.RequestCalls())
	assert.Zero(t, s.backend.Calls("staking.balanceOf"))
}

func TestConnectRejectedStaysDisconnected(t *testing.T) {
	s := newSession(t)
	s.wallet.RejectAccounts = true

	_, err := s.controller.Connect(context.Background())
	require.ErrorIs(t, err, chain.ErrUserRejected)
	assert.Equal(t, types.Disconnected, s.controller.Snapshot().Connection.Status)
}

func TestAccountChangeLoadsNewAccountOnce(t *testing.T) {
	s := newSession(t)
	s.connect(t)

	var mu sync.Mutex
	var leaked bool
	cancel := s.controller.Subscribe(func(snap reconciler.Snapshot) {
		if snap.Connection.Address == bob && snap.MyBalances["0"] == "100" {
			mu.Lock()
			leaked = true
			mu.Unlock()
		}
	})
	defer cancel()

	s.backend.ResetCalls()
	s.wallet.SelectAccount(bob)

	snap := s.controller.Snapshot()
	assert.Equal(t, bob, snap.Connection.Address)
	assert.Equal(t, map[string]string{"0": "0", "1": "40"}, snap.MyBalances)
	assert.Equal(t, map[string]string{"0": "0", "1": "0"}, snap.MyEarned)
	assert.Equal(t, 2, s.backend.Calls("staking.balanceOf"), "one balanceOf per pool")
	assert.Equal(t, 2, s.backend.Calls("staking.earned"))
	assert.Zero(t, s.backend.Calls("staking.poolCount"))

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, leaked, "alice's positions were published under bob's address")
}

func TestWrongNetworkRejectsActionsButLoadsPools(t *testing.T) {
	s := newSession(t)
	other := chaintest.NewFakeChain(otherChain)
	s.wallet.KnowNetwork(other)
	s.connect(t)

	s.wallet.ChangeChain(otherChain)

	snap := s.controller.Snapshot()
	assert.Equal(t, types.WrongNetwork, snap.Connection.Status)
	assert.Equal(t, uint64(otherChain), snap.Connection.ChainID)
	assert.Empty(t, snap.MyBalances)
	assert.Zero(t, s.backend.ActiveSubscriptions())
	assert.Zero(t, other.ActiveSubscriptions())

	s.backend.ResetCalls()
	require.NoError(t, s.controller.Refresh(context.Background()))
	assert.Equal(t, 1, s.backend.Calls("staking.poolCount"))
	assert.Zero(t, s.backend.Calls("staking.balanceOf"))
	assert.Len(t, s.controller.Snapshot().Pools, 2)

	s.backend.ResetCalls()
	_, err := s.controller.Stake(context.Background(), 0, sdkmath.NewInt(10))
	assert.ErrorIs(t, err, chain.ErrWrongNetwork)
	_, err = s.controller.Claim(context.Background(), 0)
	assert.ErrorIs(t, err, chain.ErrWrongNetwork)
	assert.Zero(t, s.backend.TotalCalls())
	assert.Zero(t, other.TotalCalls())

	s.wallet.ChangeChain(chainID)

	snap = s.controller.Snapshot()
	assert.Equal(t, types.Connected, snap.Connection.Status)
	assert.Equal(t, map[string]string{"0": "100", "1": "0"}, snap.MyBalances)
	assert.Equal(t, 1, s.backend.ActiveSubscriptions())
}

func TestConnectSwitchesWalletToExpectedNetwork(t *testing.T) {
	backend := chaintest.NewFakeChain(chainID)
	backend.AddPool(1500, 0)
	other := chaintest.NewFakeChain(otherChain)
	wallet := chaintest.NewFakeWallet(other, alice)
	wallet.AllowAdd(backend)
	s := newSessionWith(t, backend, wallet)

	_, err := s.controller.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.Connected, s.controller.Snapshot().Connection.Status)
	assert.Equal(t, 1, wallet.AddCalls())
	assert.Equal(t, 2, wallet.SwitchCalls())
}

func TestConnectDeclinedSwitchLeavesWrongNetwork(t *testing.T) {
	backend := chaintest.NewFakeChain(chainID)
	backend.AddPool(1500, 0)
	other := chaintest.NewFakeChain(otherChain)
	wallet := chaintest.NewFakeWallet(other, alice)
	wallet.KnowNetwork(backend)
	wallet.RejectSwitch = true
	s := newSessionWith(t, backend, wallet)

	_, err := s.controller.Connect(context.Background())
	require.ErrorIs(t, err, chain.ErrWrongNetwork)
	assert.ErrorIs(t, err, chain.ErrUserRejected)

	snap := s.controller.Snapshot()
	assert.Equal(t, types.WrongNetwork, snap.Connection.Status)
	assert.Len(t, snap.Pools, 1)
	assert.Zero(t, backend.Calls("staking.balanceOf"))
}

func TestDisconnectStopsReconciliation(t *testing.T) {
	s := newSession(t)
	s.connect(t)
	require.Equal(t, 1, s.backend.ActiveSubscriptions())

	s.controller.Disconnect()

	snap := s.controller.Snapshot()
	assert.Equal(t, types.Disconnected, snap.Connection.Status)
	assert.Empty(t, snap.MyBalances)
	assert.Empty(t, snap.MyEarned)
	assert.Nil(t, snap.WalletBalance)
	assert.Zero(t, s.backend.ActiveSubscriptions())
	assert.False(t, s.adapter.HasBlockSubscription())
	assert.Zero(t, s.wallet.Observers())

	s.backend.ResetCalls()
	s.backend.MineBlock()
	assert.Never(t, func() bool { return s.backend.TotalCalls() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	// Wallet events after disconnect are ignored as well.
	s.wallet.SelectAccount(bob)
	assert.Zero(t, s.backend.TotalCalls())
}

func TestDisconnectIsTheLastSnapshotDelivered(t *testing.T) {
	s := newSession(t)
	s.connect(t)

	var mu sync.Mutex
	var delivered []reconciler.Snapshot
	cancel := s.controller.Subscribe(func(snap reconciler.Snapshot) {
		// A slow subscriber on connected views stands in for a descheduled publisher.
		if snap.Connection.Status == types.Connected {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		delivered = append(delivered, snap)
		mu.Unlock()
	})
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.controller.Refresh(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	s.controller.Disconnect()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, delivered)
	last := delivered[len(delivered)-1]
	assert.Equal(t, types.Disconnected, last.Connection.Status)
	assert.Empty(t, last.MyBalances)
	assert.Equal(t, s.controller.Snapshot().Seq, last.Seq)
	for i := 1; i < len(delivered); i++ {
		assert.Greater(t, delivered[i].Seq, delivered[i-1].Seq)
	}
}

func TestBlockSubscriptionFailureIsVisible(t *testing.T) {
	s := newSession(t)
	s.backend.Fail("eth.subscribe", errors.New("notifications not supported"))
	s.connect(t)

	snap := s.controller.Snapshot()
	assert.Equal(t, types.Connected, snap.Connection.Status)
	assert.False(t, snap.BlockUpdates)
	assert.Contains(t, snap.LastError, "notifications not supported")
	// Positions still load; only block-driven refreshes are lost.
	assert.Equal(t, map[string]string{"0": "100", "1": "0"}, snap.MyBalances)

	s.backend.Fail("eth.subscribe", nil)
	s.controller.Disconnect()
	_, err := s.controller.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, s.controller.Snapshot().BlockUpdates)

	s.controller.Disconnect()
	assert.False(t, s.controller.Snapshot().BlockUpdates)
}

func TestNewBlockReconciles(t *testing.T) {
	s := newSession(t)
	s.connect(t)

	s.backend.SetStake(0, alice, 150)
	block := s.backend.MineBlock()

	assert.Eventually(t, func() bool {
		snap := s.controller.Snapshot()
		return snap.LastBlock == block && snap.MyBalances["0"] == "150"
	}, time.Second, 5*time.Millisecond)
}

func TestStakeReconcilesAfterConfirmation(t *testing.T) {
	s := newSession(t)
	s.connect(t)

	var mu sync.Mutex
	var sawPending bool
	cancel := s.controller.Subscribe(func(snap reconciler.Snapshot) {
		if snap.Pending != nil && snap.Pending.Kind == types.ActionStake {
			mu.Lock()
			sawPending = true
			mu.Unlock()
		}
	})
	defer cancel()

	result, err := s.controller.Stake(context.Background(), 0, sdkmath.NewInt(50))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotNil(t, result.ApprovalTx)

	snap := s.controller.Snapshot()
	assert.Nil(t, snap.Pending)
	assert.Equal(t, "150", snap.MyBalances["0"])
	require.NotNil(t, snap.WalletBalance)
	assert.Equal(t, "950", snap.WalletBalance.String())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawPending)
}

func TestActionsRequireConnection(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.controller.Mount(context.Background()))
	s.backend.ResetCalls()

	_, err := s.controller.Claim(context.Background(), 0)
	assert.ErrorIs(t, err, chain.ErrNotConnected)
	_, err = s.controller.Withdraw(context.Background(), 0, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, chain.ErrNotConnected)
	assert.Zero(t, s.backend.TotalCalls())
}

func TestFailedPositionReadKeepsLastKnown(t *testing.T) {
	s := newSession(t)
	s.connect(t)

	s.backend.Fail("staking.earned", errors.New("upstream timeout"))
	require.NoError(t, s.controller.Refresh(context.Background()))

	snap := s.controller.Snapshot()
	assert.True(t, snap.PositionsStale)
	assert.NotEmpty(t, snap.LastError)
	assert.Equal(t, map[string]string{"0": "100", "1": "0"}, snap.MyBalances)

	s.backend.Fail("staking.earned", nil)
	require.NoError(t, s.controller.Refresh(context.Background()))
	assert.False(t, s.controller.Snapshot().PositionsStale)
}

// blockingPools holds the first LoadPools call until release is closed.
type blockingPools struct {
	inner   reconciler.PoolLoader
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingPools) LoadPools(ctx context.Context) types.PoolSet {
	if b.calls.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return b.inner.LoadPools(ctx)
}

func TestTriggersDuringARunAreCoalesced(t *testing.T) {
	backend := chaintest.NewFakeChain(chainID)
	backend.AddPool(1500, 0)
	m := metrics.NewUnregistered()
	adapter, err := chain.NewAdapter(chain.Config{Fallback: backend, Metrics: m})
	require.NoError(t, err)

	pools := &blockingPools{
		inner: datafetcher.NewPoolReader(adapter, datafetcher.PoolReaderConfig{
			Staking: backend.Staking, StakingConfigured: true, Token: backend.Token, Metrics: m,
		}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	controller, err := reconciler.NewController(reconciler.Config{
		Chain:     adapter,
		Pools:     pools,
		Positions: datafetcher.NewPositionReader(adapter, backend.Staking, backend.Token, m),
		Network:   types.Network{ChainID: chainID},
		Metrics:   m,
	})
	require.NoError(t, err)
	defer controller.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	refresh := func() {
		defer wg.Done()
		assert.NoError(t, controller.Refresh(ctx))
	}

	wg.Add(1)
	go refresh()
	<-pools.entered

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go refresh()
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ReconcileCoalesced) == 3
	}, time.Second, time.Millisecond)

	close(pools.release)
	wg.Wait()

	assert.Equal(t, int32(2), pools.calls.Load(), "three triggers merge into one follow-up run")
	assert.Len(t, controller.Snapshot().Pools, 1)
}
