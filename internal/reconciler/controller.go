/*

The reconciliation controller keeps one dashboard session consistent with chain state.

Every trigger (mount, new block, account or chain change, a confirmed action) is turned
into a request for one or both scopes. Requests are merged: while a run is in flight new
requests only widen pendingScope, and the running loop picks them up as a single
follow-up run. Results loaded for an address that is no longer the session's address are
discarded through the epoch counter.

*/

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/staking"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type scope uint8

const (
	scopePools scope = 1 << iota
	scopePositions

	scopeAll = scopePools | scopePositions
)

func (s scope) String() string {
	switch s {
	case scopePools:
		return "pools"
	case scopePositions:
		return "positions"
	case scopeAll:
		return "all"
	default:
		return "none"
	}
}

var allStatuses = []string{
	types.Disconnected.String(),
	types.Connecting.String(),
	types.Connected.String(),
	types.WrongNetwork.String(),
}

// Chain is the part of the chain adapter the controller drives. *chain.Adapter satisfies it.
type Chain interface {
	staking.ChainWriter

	HasWallet() bool
	Connect(ctx context.Context) (common.Address, error)
	Authorized(ctx context.Context) (common.Address, bool, error)
	SetAccount(account common.Address)
	WalletChainID(ctx context.Context) (uint64, error)
	EnsureNetwork(ctx context.Context, network types.Network) error
	WatchAccounts(fn func([]common.Address)) (cancel func())
	WatchChain(fn func(chainID uint64)) (cancel func())
	OnNewBlock(ctx context.Context, handler func(*gethtypes.Header)) error
	OffNewBlock()
}

// PoolLoader is satisfied by *datafetcher.PoolReader.
type PoolLoader interface {
	LoadPools(ctx context.Context) types.PoolSet
}

// PositionLoader is satisfied by *datafetcher.PositionReader.
type PositionLoader interface {
	LoadPositions(ctx context.Context, address common.Address, pools []types.PoolRecord) (types.Positions, error)
	LoadWalletBalance(ctx context.Context, address common.Address) (sdkmath.Int, error)
}

// Config holds the dependencies of a Controller.
type Config struct {
	Chain     Chain
	Pools     PoolLoader
	Positions PositionLoader
	Network   types.Network
	// AutoConnect restores a previously authorised account on Mount without prompting.
	AutoConnect bool

	Staking  common.Address
	Token    common.Address
	Faucet   common.Address
	Receipts staking.ReceiptRecorder
	Metrics  *metrics.Metrics
}

// Controller owns the session state of the dashboard.
type Controller struct {
	logger     zerolog.Logger
	chain      Chain
	pools      PoolLoader
	positions  PositionLoader
	network    types.Network
	auto       bool
	metrics    *metrics.Metrics
	dispatcher *staking.Dispatcher

	// runCtx is used by runs started from wallet and block events, which carry no context.
	runCtx    context.Context
	cancelRun context.CancelFunc

	// publishMu orders delivery: a snapshot is taken and fanned out under it, so
	// subscribers never see an older view after a newer one.
	publishMu sync.Mutex

	mu             sync.Mutex
	seq            uint64
	conn           types.ConnectionState
	epoch          uint64
	poolSet        types.PoolSet
	positionsByID  types.Positions
	walletBalance  *sdkmath.Int
	stale          bool
	lastErr        string
	blocksLive     bool
	lastBlock      uint64
	pending        *types.PendingAction
	updatedAt      time.Time
	pendingScope   scope
	inFlight       bool
	idle           chan struct{}
	stopObservers  []func()
	subscribers    map[int]func(Snapshot)
	nextSubscriber int
}

// NewController validates cfg and creates an unmounted controller.
func NewController(cfg Config) (*Controller, error) {
	if err := validateControllerConfig(cfg); err != nil {
		return nil, fmt.Errorf("controller configuration validation failed: %w", err)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		logger:      logger.GetForComponent("reconciler"),
		chain:       cfg.Chain,
		pools:       cfg.Pools,
		positions:   cfg.Positions,
		network:     cfg.Network,
		auto:        cfg.AutoConnect,
		metrics:     cfg.Metrics,
		runCtx:      runCtx,
		cancelRun:   cancel,
		conn:        types.ConnectionState{Status: types.Disconnected},
		subscribers: make(map[int]func(Snapshot)),
	}
	c.dispatcher = staking.NewDispatcher(cfg.Chain, staking.Config{
		Staking:      cfg.Staking,
		Token:        cfg.Token,
		Faucet:       cfg.Faucet,
		Gate:         c.gate,
		AfterConfirm: c.afterConfirm,
		OnChange:     c.onPendingChange,
		Receipts:     cfg.Receipts,
		Metrics:      cfg.Metrics,
	})
	c.metrics.SetConnectionStatus(types.Disconnected.String(), allStatuses...)

	c.logger.Info().
		Uint64("chainId", cfg.Network.ChainID).
		Bool("autoConnect", cfg.AutoConnect).
		Msg("Reconciliation controller created")
	return c, nil
}

func validateControllerConfig(cfg Config) error {
	if cfg.Chain == nil {
		return fmt.Errorf("chain adapter cannot be nil")
	}
	if cfg.Pools == nil {
		return fmt.Errorf("pool loader cannot be nil")
	}
	if cfg.Positions == nil {
		return fmt.Errorf("position loader cannot be nil")
	}
	if cfg.Network.ChainID == 0 {
		return fmt.Errorf("expected chain id must be set")
	}
	return nil
}

// Mount loads pools and, when autoconnect is on and the wallet already granted an
// account, restores the session without prompting.
func (c *Controller) Mount(ctx context.Context) error {
	if c.auto && c.chain.HasWallet() {
		account, ok, err := c.chain.Authorized(ctx)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Msg("Silent account detection failed")
		case ok:
			chainID, err := c.chain.WalletChainID(ctx)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Could not read wallet chain, staying disconnected")
				c.chain.SetAccount(common.Address{})
				break
			}
			c.establish(ctx, account, chainID)
			c.logger.Info().Str("account", account.Hex()).Msg("Session restored")
		}
	}

	c.request(ctx, "mount", scopeAll)
	return c.waitIdle(ctx)
}

// Connect prompts the wallet for an account, asks it to move to the expected network
// and starts the session. A declined network prompt leaves the session in WrongNetwork.
func (c *Controller) Connect(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	previous := c.conn.Status
	c.mu.Unlock()
	c.setStatus(types.Connecting)

	account, err := c.chain.Connect(ctx)
	if err != nil {
		c.setStatus(previous)
		c.logger.Warn().Err(err).Msg("Connect failed")
		return common.Address{}, err
	}

	netErr := c.chain.EnsureNetwork(ctx, c.network)
	if netErr != nil {
		c.logger.Warn().Err(netErr).Msg("Wallet did not move to the expected network")
	}
	chainID, err := c.chain.WalletChainID(ctx)
	if err != nil {
		c.chain.SetAccount(common.Address{})
		c.setStatus(types.Disconnected)
		return common.Address{}, err
	}

	c.establish(ctx, account, chainID)
	c.request(ctx, "connect", scopeAll)
	if err := c.waitIdle(ctx); err != nil {
		return account, err
	}
	if chainID != c.network.ChainID {
		if netErr != nil {
			return account, errors.Join(chain.ErrWrongNetwork, netErr)
		}
		return account, chain.ErrWrongNetwork
	}
	return account, nil
}

// SwitchNetwork asks the wallet to move to the expected network. The resulting chain
// change event restores the session.
func (c *Controller) SwitchNetwork(ctx context.Context) error {
	return c.chain.EnsureNetwork(ctx, c.network)
}

// establish installs a session for account on chainID.
func (c *Controller) establish(ctx context.Context, account common.Address, chainID uint64) {
	c.mu.Lock()
	c.epoch++
	c.conn = types.ConnectionState{Address: account, ChainID: chainID, Status: c.statusFor(chainID)}
	c.positionsByID = types.Positions{}
	c.walletBalance = nil
	c.stale = false
	status := c.conn.Status
	needObservers := len(c.stopObservers) == 0
	c.mu.Unlock()

	c.chain.SetAccount(account)
	if needObservers {
		stops := []func(){
			c.chain.WatchAccounts(c.onAccountsChanged),
			c.chain.WatchChain(c.onChainChanged),
		}
		c.mu.Lock()
		c.stopObservers = stops
		c.mu.Unlock()
	}

	c.metrics.SetConnectionStatus(status.String(), allStatuses...)
	if status == types.Connected {
		c.attachBlocks(ctx)
	} else {
		c.detachBlocks()
	}
	c.publish()
}

// Disconnect ends the session synchronously: positions and connection are cleared,
// the block subscription is detached and wallet observers are cancelled before it returns.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.epoch++
	c.conn = types.ConnectionState{Status: types.Disconnected}
	c.positionsByID = nil
	c.walletBalance = nil
	c.stale = false
	c.pendingScope &^= scopePositions
	stops := c.stopObservers
	c.stopObservers = nil
	c.mu.Unlock()

	c.chain.SetAccount(common.Address{})
	c.detachBlocks()
	for _, stop := range stops {
		stop()
	}

	c.metrics.SetConnectionStatus(types.Disconnected.String(), allStatuses...)
	c.logger.Info().Msg("Wallet disconnected")
	c.publish()
}

// Refresh re-reads pools and, when connected, positions. It returns once the merged
// run that includes this request has finished.
func (c *Controller) Refresh(ctx context.Context) error {
	c.request(ctx, "manual", scopeAll)
	return c.waitIdle(ctx)
}

// Close ends the session and stops runs started from events.
func (c *Controller) Close() {
	c.Disconnect()
	c.cancelRun()
}

func (c *Controller) onAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		c.logger.Info().Msg("Wallet revoked account access")
		c.Disconnect()
		return
	}

	next := accounts[0]
	c.mu.Lock()
	if c.conn.Status == types.Disconnected || c.conn.Address == next {
		c.mu.Unlock()
		return
	}
	previous := c.conn.Address
	c.epoch++
	c.conn.Address = next
	c.positionsByID = types.Positions{}
	c.walletBalance = nil
	c.stale = false
	c.mu.Unlock()

	c.chain.SetAccount(next)
	c.logger.Info().
		Str("from", previous.Hex()).
		Str("to", next.Hex()).
		Msg("Account changed")
	c.publish()
	c.request(c.runCtx, "account_changed", scopePositions)
}

func (c *Controller) onChainChanged(chainID uint64) {
	c.mu.Lock()
	if c.conn.Status == types.Disconnected {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.conn.ChainID = chainID
	c.conn.Status = c.statusFor(chainID)
	c.positionsByID = types.Positions{}
	c.walletBalance = nil
	c.stale = false
	status := c.conn.Status
	c.mu.Unlock()

	c.metrics.SetConnectionStatus(status.String(), allStatuses...)
	c.logger.Info().
		Uint64("chainId", chainID).
		Str("status", status.String()).
		Msg("Wallet chain changed")

	if status == types.Connected {
		c.attachBlocks(c.runCtx)
		c.publish()
		c.request(c.runCtx, "chain_changed", scopeAll)
		return
	}
	c.detachBlocks()
	c.publish()
}

func (c *Controller) onNewBlock(head *gethtypes.Header) {
	c.mu.Lock()
	if c.conn.Status != types.Connected {
		c.mu.Unlock()
		return
	}
	if head != nil && head.Number != nil {
		c.lastBlock = head.Number.Uint64()
		c.metrics.LastBlock.Set(float64(c.lastBlock))
	}
	c.mu.Unlock()

	c.request(c.runCtx, "new_block", scopeAll)
}

func (c *Controller) attachBlocks(ctx context.Context) {
	err := c.chain.OnNewBlock(ctx, c.onNewBlock)
	c.mu.Lock()
	c.blocksLive = err == nil
	if err != nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Could not subscribe to new blocks; positions refresh only after actions")
	}
}

func (c *Controller) detachBlocks() {
	c.chain.OffNewBlock()
	c.mu.Lock()
	c.blocksLive = false
	c.mu.Unlock()
}

func (c *Controller) statusFor(chainID uint64) types.ConnectionStatus {
	if chainID == c.network.ChainID {
		return types.Connected
	}
	return types.WrongNetwork
}

func (c *Controller) setStatus(status types.ConnectionStatus) {
	c.mu.Lock()
	c.conn.Status = status
	c.mu.Unlock()
	c.metrics.SetConnectionStatus(status.String(), allStatuses...)
	c.publish()
}

// request merges s into the pending scope. If no run is in flight the caller runs the
// loop itself until nothing is pending.
func (c *Controller) request(ctx context.Context, trigger string, s scope) {
	c.mu.Lock()
	c.pendingScope |= s
	if c.inFlight {
		c.mu.Unlock()
		c.metrics.ReconcileCoalesced.Inc()
		c.logger.Debug().Str("trigger", trigger).Msg("Reconciliation merged into the run in flight")
		return
	}
	c.inFlight = true
	c.idle = make(chan struct{})
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.pendingScope
		c.pendingScope = 0
		if next == 0 {
			c.inFlight = false
			close(c.idle)
			c.idle = nil
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.reconcile(ctx, trigger, next)
		trigger = "coalesced"
	}
}

// waitIdle blocks until no run is in flight.
func (c *Controller) waitIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) reconcile(ctx context.Context, trigger string, s scope) {
	runID := uuid.New().String()
	runLogger := c.logger.With().Str("run_id", runID).Str("trigger", trigger).Str("scope", s.String()).Logger()
	start := time.Now()
	c.metrics.ReconcileRuns.WithLabelValues(trigger).Inc()

	if s&scopePools != 0 {
		set := c.pools.LoadPools(ctx)
		c.mu.Lock()
		c.poolSet = set
		if set.Err != nil && !errors.Is(set.Err, datafetcher.ErrStakingNotConfigured) {
			c.lastErr = set.Err.Error()
		}
		c.mu.Unlock()
		if set.Err != nil {
			runLogger.Warn().Err(set.Err).Bool("live", set.Live).Msg("Serving preview pools")
		}
	}

	if s&scopePositions != 0 {
		c.reconcilePositions(ctx, runLogger)
	}

	c.mu.Lock()
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()

	c.metrics.ReconcileDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())
	runLogger.Debug().Dur("took", time.Since(start)).Msg("Reconciliation finished")
	c.publish()
}

func (c *Controller) reconcilePositions(ctx context.Context, runLogger zerolog.Logger) {
	c.mu.Lock()
	conn := c.conn
	epoch := c.epoch
	set := c.poolSet
	c.mu.Unlock()

	if !conn.Ready(c.network.ChainID) {
		return
	}
	if !set.Live {
		// Preview pools do not exist on chain. Keep what we have and flag it unless
		// there is simply no contract yet.
		c.mu.Lock()
		if c.epoch == epoch {
			c.stale = !errors.Is(set.Err, datafetcher.ErrStakingNotConfigured) && len(c.positionsByID) > 0
		}
		c.mu.Unlock()
		return
	}

	positions, posErr := c.positions.LoadPositions(ctx, conn.Address, set.Pools)
	balance, balErr := c.positions.LoadWalletBalance(ctx, conn.Address)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		runLogger.Debug().Str("account", conn.Address.Hex()).Msg("Discarding positions of a superseded session")
		return
	}
	if posErr != nil {
		c.stale = true
		c.lastErr = posErr.Error()
		runLogger.Warn().Err(posErr).Msg("Position read failed, keeping last known positions")
	} else {
		c.positionsByID = positions
		c.stale = false
	}
	if balErr == nil {
		c.walletBalance = &balance
	} else {
		runLogger.Warn().Err(balErr).Msg("Wallet balance read failed")
	}
}

// gate is consulted by the dispatcher before any chain call.
func (c *Controller) gate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn.Status == types.WrongNetwork {
		return chain.ErrWrongNetwork
	}
	if !c.conn.Ready(c.network.ChainID) {
		return chain.ErrNotConnected
	}
	return nil
}

func (c *Controller) afterConfirm(ctx context.Context, result types.ActionResult) {
	c.request(ctx, "post_action_"+string(result.Kind), scopeAll)
	if err := c.waitIdle(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Post-action reconciliation interrupted")
	}
}

func (c *Controller) onPendingChange(pending *types.PendingAction) {
	c.mu.Lock()
	c.pending = pending
	c.mu.Unlock()
	c.publish()
}

// Staking and faucet actions run through the session's dispatcher.
func (c *Controller) Stake(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
	return c.dispatcher.Stake(ctx, pool, amount)
}

func (c *Controller) Withdraw(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
	return c.dispatcher.Withdraw(ctx, pool, amount)
}

func (c *Controller) EarlyWithdraw(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
	return c.dispatcher.EarlyWithdraw(ctx, pool, amount)
}

func (c *Controller) Claim(ctx context.Context, pool types.PoolID) (*types.ActionResult, error) {
	return c.dispatcher.Claim(ctx, pool)
}

func (c *Controller) Exit(ctx context.Context, pool types.PoolID) (*types.ActionResult, error) {
	return c.dispatcher.Exit(ctx, pool)
}

func (c *Controller) ClaimFaucet(ctx context.Context) (*types.ActionResult, error) {
	return c.dispatcher.ClaimFaucet(ctx)
}
