package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

const headBuffer = 16

// Config holds the providers the adapter can reach. At least one is required.
type Config struct {
	// Wallet signs and sends transactions. nil when no wallet is present.
	Wallet Wallet
	// Fallback is a public read-only endpoint, used for reads whenever it is set.
	Fallback Client
	Metrics  *metrics.Metrics
}

// Adapter is the single entry point for chain access. Every error it returns is one
// of the taxonomy kinds declared in errors.go.
type Adapter struct {
	wallet   Wallet
	fallback Client
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu      sync.Mutex
	account common.Address
	blocks  *blockSubscription
}

// NewAdapter creates an adapter over the configured providers.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Wallet == nil && cfg.Fallback == nil {
		return nil, fmt.Errorf("chain adapter needs a wallet or a fallback client")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}
	return &Adapter{
		wallet:   cfg.Wallet,
		fallback: cfg.Fallback,
		metrics:  cfg.Metrics,
		logger:   logger.GetForComponent("chain_adapter"),
	}, nil
}

// HasWallet reports whether a signing wallet is present.
func (a *Adapter) HasWallet() bool {
	return a.wallet != nil
}

// Connect requests account access. It prompts when the wallet has not authorised us yet.
func (a *Adapter) Connect(ctx context.Context) (common.Address, error) {
	if a.wallet == nil {
		return common.Address{}, ErrNoWallet
	}
	accounts, err := a.wallet.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, classify("connect", common.Address{}, "", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrUserRejected
	}

	a.SetAccount(accounts[0])
	a.logger.Info().Str("account", accounts[0].Hex()).Msg("Wallet connected")
	return accounts[0], nil
}

// Authorized detects an account the wallet already granted, without prompting.
func (a *Adapter) Authorized(ctx context.Context) (common.Address, bool, error) {
	if a.wallet == nil {
		return common.Address{}, false, nil
	}
	accounts, err := a.wallet.Accounts(ctx)
	if err != nil {
		return common.Address{}, false, classify("accounts", common.Address{}, "", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, false, nil
	}
	a.SetAccount(accounts[0])
	return accounts[0], true, nil
}

// SetAccount changes the signer used by WriteCall. The zero address disconnects it.
func (a *Adapter) SetAccount(account common.Address) {
	a.mu.Lock()
	a.account = account
	a.mu.Unlock()
}

// Account returns the connected signer.
func (a *Adapter) Account() (common.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.account, a.account != (common.Address{})
}

// WalletChainID reads the chain the wallet is currently on.
func (a *Adapter) WalletChainID(ctx context.Context) (uint64, error) {
	if a.wallet == nil {
		return 0, ErrNoWallet
	}
	id, err := a.wallet.ChainID(ctx)
	if err != nil {
		return 0, classify("chain id", common.Address{}, "", err)
	}
	return id, nil
}

// EnsureNetwork moves the wallet to the expected network, adding it first when the
// wallet does not know it.
func (a *Adapter) EnsureNetwork(ctx context.Context, network types.Network) error {
	current, err := a.WalletChainID(ctx)
	if err != nil {
		return err
	}
	if current == network.ChainID {
		return nil
	}

	a.logger.Info().
		Uint64("current", current).
		Uint64("expected", network.ChainID).
		Msg("Requesting network switch")

	err = a.wallet.SwitchChain(ctx, network.ChainID)
	if errors.Is(err, ErrChainNotAdded) {
		a.logger.Info().Str("network", network.Name).Msg("Network unknown to wallet, requesting add")
		if addErr := a.wallet.AddChain(ctx, network); addErr != nil {
			return classify("add chain", common.Address{}, "", addErr)
		}
		err = a.wallet.SwitchChain(ctx, network.ChainID)
	}
	if err != nil {
		return classify("switch chain", common.Address{}, "", err)
	}
	return nil
}

func (a *Adapter) readClient() Client {
	if a.fallback != nil {
		return a.fallback
	}
	if a.wallet != nil {
		return a.wallet.Client()
	}
	return nil
}

// subscriptionClients lists the providers to try for head subscriptions: the wallet's
// own client first, then the fallback when it is a different provider.
func (a *Adapter) subscriptionClients() []Client {
	var clients []Client
	if a.wallet != nil {
		if c := a.wallet.Client(); c != nil {
			clients = append(clients, c)
		}
	}
	if a.fallback != nil && (len(clients) == 0 || clients[0] != a.fallback) {
		clients = append(clients, a.fallback)
	}
	return clients
}

// ReadClient exposes the provider used for reads, for probes such as block number and gas price.
func (a *Adapter) ReadClient() (Client, error) {
	c := a.readClient()
	if c == nil {
		return nil, &CallError{Op: "read", Err: ErrNoProvider}
	}
	return c, nil
}

// ReadOnlyCall executes a view call and returns the decoded outputs.
func (a *Adapter) ReadOnlyCall(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	client := a.readClient()
	if client == nil {
		return nil, &CallError{Op: "read", Contract: contract, Method: method, Err: ErrNoProvider}
	}

	data, err := packCall(contractABI, method, args...)
	if err != nil {
		return nil, err
	}

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, classify("read", contract, method, err)
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, &CallError{Op: "read", Contract: contract, Method: method, Err: fmt.Errorf("unpack: %w", err)}
	}
	return values, nil
}

// WriteCall signs and submits a state-changing call from the connected account.
func (a *Adapter) WriteCall(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (PendingTx, error) {
	if a.wallet == nil {
		return nil, ErrNoWallet
	}
	from, ok := a.Account()
	if !ok {
		return nil, ErrNotConnected
	}

	data, err := packCall(contractABI, method, args...)
	if err != nil {
		return nil, err
	}

	hash, err := a.wallet.SendTransaction(ctx, TxRequest{From: from, To: contract, Data: data})
	if err != nil {
		return nil, classify("write", contract, method, err)
	}

	a.logger.Info().
		Str("method", method).
		Str("contract", contract.Hex()).
		Str("tx", hash.Hex()).
		Msg("Transaction submitted")

	return &pendingTx{
		hash:     hash,
		client:   a.wallet.Client(),
		call:     ethereum.CallMsg{From: from, To: &contract, Data: data},
		contract: contract,
		method:   method,
	}, nil
}

// WatchAccounts registers fn for wallet account changes.
func (a *Adapter) WatchAccounts(fn func([]common.Address)) (cancel func()) {
	if a.wallet == nil {
		return func() {}
	}
	return a.wallet.OnAccountsChanged(fn)
}

// WatchChain registers fn for wallet chain changes.
func (a *Adapter) WatchChain(fn func(chainID uint64)) (cancel func()) {
	if a.wallet == nil {
		return func() {}
	}
	return a.wallet.OnChainChanged(fn)
}

// blockSubscription owns one newHeads subscription and its forwarding goroutine.
type blockSubscription struct {
	sub  ethereum.Subscription
	quit chan struct{}
}

// OnNewBlock attaches handler to new heads. Any previous subscription is detached
// first, so at most one is ever active.
func (a *Adapter) OnNewBlock(ctx context.Context, handler func(*gethtypes.Header)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.detachLocked()

	clients := a.subscriptionClients()
	if len(clients) == 0 {
		return &CallError{Op: "subscribe", Err: ErrNoProvider}
	}

	heads := make(chan *gethtypes.Header, headBuffer)
	var (
		sub ethereum.Subscription
		err error
	)
	for i, client := range clients {
		sub, err = client.SubscribeNewHead(ctx, heads)
		if err == nil {
			break
		}
		if i < len(clients)-1 {
			a.logger.Warn().Err(err).Msg("Wallet provider cannot subscribe to new blocks, trying the fallback provider")
		}
	}
	if err != nil {
		return classify("subscribe", common.Address{}, "newHeads", err)
	}

	bs := &blockSubscription{sub: sub, quit: make(chan struct{})}
	a.blocks = bs
	a.metrics.BlockSubscriptions.Set(1)
	go a.forwardHeads(bs, heads, handler)

	a.logger.Debug().Msg("New-block subscription attached")
	return nil
}

// OffNewBlock detaches the active subscription, if any.
func (a *Adapter) OffNewBlock() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detachLocked()
}

// HasBlockSubscription reports whether a subscription is attached.
func (a *Adapter) HasBlockSubscription() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blocks != nil
}

func (a *Adapter) detachLocked() {
	if a.blocks == nil {
		return
	}
	close(a.blocks.quit)
	a.blocks.sub.Unsubscribe()
	a.blocks = nil
	a.metrics.BlockSubscriptions.Set(0)
	a.logger.Debug().Msg("New-block subscription detached")
}

func (a *Adapter) forwardHeads(bs *blockSubscription, heads <-chan *gethtypes.Header, handler func(*gethtypes.Header)) {
	for {
		select {
		case <-bs.quit:
			return
		case err, ok := <-bs.sub.Err():
			if ok && err != nil {
				a.logger.Warn().Err(err).Msg("New-block subscription dropped")
			}
			a.mu.Lock()
			if a.blocks == bs {
				a.blocks = nil
				a.metrics.BlockSubscriptions.Set(0)
			}
			a.mu.Unlock()
			return
		case head := <-heads:
			select {
			case <-bs.quit:
				return
			default:
			}
			handler(head)
		}
	}
}

// Close detaches the subscription and forgets the signer.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detachLocked()
	a.account = common.Address{}
}
