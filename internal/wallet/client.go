package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Error definitions for wallet setup and signing
var (
	ErrInvalidConfig     = errors.New("invalid wallet configuration")
	ErrKeyLoad           = errors.New("signing key could not be loaded")
	ErrDialFailed        = errors.New("RPC connection failed")
	ErrUnknownAccount    = errors.New("account is not held by this wallet")
	ErrTxBuildFailed     = errors.New("transaction build failed")
	ErrTxSignFailed      = errors.New("transaction signing failed")
	ErrTxBroadcastFailed = errors.New("transaction broadcast failed")
)

var walletLogger = logger.GetForComponent("wallet_client")

// Backend is the RPC surface the wallet signs and broadcasts through.
// *ethclient.Client satisfies it.
type Backend interface {
	chain.Client
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
}

// DialFunc connects to one RPC URL of a network.
type DialFunc func(ctx context.Context, rawURL string) (Backend, error)

// DialEthclient dials a JSON-RPC endpoint with go-ethereum's client.
func DialEthclient(ctx context.Context, rawURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Options configures a SigningWallet.
type Options struct {
	// Keys are the accounts held by the wallet. The first one is selected.
	Keys []*ecdsa.PrivateKey
	// Home is the network the wallet starts on. It is always known.
	Home types.Network
	// Networks are additional networks the wallet can switch to without adding them.
	Networks []types.Network
	// Prompter answers permission, network and signing prompts. Defaults to AutoApprove.
	Prompter Prompter
	// Dial defaults to DialEthclient.
	Dial DialFunc
	// Authorized marks account access as already granted.
	Authorized bool

	GasAdjustment   float64
	DefaultGasLimit uint64
}

// SigningWallet is a local key wallet implementing chain.Wallet. It keeps one
// backend per visited network and signs EIP-1559 transactions.
type SigningWallet struct {
	prompter        Prompter
	dial            DialFunc
	gasAdjustment   float64
	defaultGasLimit uint64

	mu         sync.Mutex
	keys       map[common.Address]*ecdsa.PrivateKey
	accounts   []common.Address
	authorized bool
	networks   map[uint64]types.Network
	backends   map[uint64]Backend
	current    uint64

	accountObservers map[int]func([]common.Address)
	chainObservers   map[int]func(uint64)
	nextObserver     int
}

// NewSigningWallet validates opts and connects to the home network.
func NewSigningWallet(ctx context.Context, opts Options) (*SigningWallet, error) {
	if err := validateOptions(&opts); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	w := &SigningWallet{
		prompter:         opts.Prompter,
		dial:             opts.Dial,
		gasAdjustment:    opts.GasAdjustment,
		defaultGasLimit:  opts.DefaultGasLimit,
		keys:             make(map[common.Address]*ecdsa.PrivateKey, len(opts.Keys)),
		authorized:       opts.Authorized,
		networks:         map[uint64]types.Network{opts.Home.ChainID: opts.Home},
		backends:         make(map[uint64]Backend),
		current:          opts.Home.ChainID,
		accountObservers: make(map[int]func([]common.Address)),
		chainObservers:   make(map[int]func(uint64)),
	}
	for _, key := range opts.Keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := w.keys[addr]; dup {
			continue
		}
		w.keys[addr] = key
		w.accounts = append(w.accounts, addr)
	}
	for _, network := range opts.Networks {
		w.networks[network.ChainID] = network
	}

	if _, err := w.backendFor(ctx, opts.Home.ChainID); err != nil {
		return nil, err
	}

	walletLogger.Info().
		Str("account", w.accounts[0].Hex()).
		Int("accounts", len(w.accounts)).
		Uint64("chainID", w.current).
		Msg("Signing wallet initialized")

	return w, nil
}

// NewFromConfig builds a wallet from the loaded environment configuration.
func NewFromConfig(ctx context.Context, prompter Prompter, dial DialFunc) (*SigningWallet, error) {
	keys, err := LoadKeys(config.WalletPrivateKey, config.WalletKeystore, config.WalletPassphrase)
	if err != nil {
		return nil, err
	}
	return NewSigningWallet(ctx, Options{
		Keys:            keys,
		Home:            config.ExpectedNetwork(),
		Prompter:        prompter,
		Dial:            dial,
		Authorized:      config.AutoConnect,
		GasAdjustment:   config.GasAdjustment,
		DefaultGasLimit: config.DefaultGasLimit,
	})
}

// validateOptions checks opts and fills defaults.
func validateOptions(opts *Options) error {
	if len(opts.Keys) == 0 {
		return errors.New("at least one signing key is required")
	}
	for i, key := range opts.Keys {
		if key == nil {
			return fmt.Errorf("key %d is nil", i)
		}
	}
	if err := validateNetwork(opts.Home); err != nil {
		return fmt.Errorf("home network: %w", err)
	}
	for _, network := range opts.Networks {
		if err := validateNetwork(network); err != nil {
			return fmt.Errorf("network %d: %w", network.ChainID, err)
		}
	}
	if opts.Prompter == nil {
		opts.Prompter = AutoApprove{}
	}
	if opts.Dial == nil {
		opts.Dial = DialEthclient
	}
	if opts.GasAdjustment == 0 {
		opts.GasAdjustment = 1.2
	}
	if opts.GasAdjustment < 1 {
		return errors.New("gas adjustment must be at least 1")
	}
	if opts.DefaultGasLimit == 0 {
		opts.DefaultGasLimit = 300000
	}
	return nil
}

func validateNetwork(network types.Network) error {
	if network.ChainID == 0 {
		return errors.New("chain ID cannot be zero")
	}
	if len(network.RPCURLs) == 0 {
		return errors.New("at least one RPC URL is required")
	}
	return nil
}

// backendFor returns the backend of chainID, dialing its RPC URLs in order on first use.
func (w *SigningWallet) backendFor(ctx context.Context, chainID uint64) (Backend, error) {
	w.mu.Lock()
	backend, ok := w.backends[chainID]
	network, known := w.networks[chainID]
	w.mu.Unlock()
	if ok {
		return backend, nil
	}
	if !known {
		return nil, chain.ErrChainNotAdded
	}

	var dialErr error
	for _, url := range network.RPCURLs {
		backend, err := w.dial(ctx, url)
		if err != nil {
			dialErr = errors.Join(dialErr, fmt.Errorf("%s: %w", url, err))
			continue
		}
		reported, err := backend.ChainID(ctx)
		if err != nil {
			dialErr = errors.Join(dialErr, fmt.Errorf("%s: chain id: %w", url, err))
			continue
		}
		if reported.Uint64() != chainID {
			dialErr = errors.Join(dialErr, fmt.Errorf("%s serves chain %d, expected %d", url, reported.Uint64(), chainID))
			continue
		}

		w.mu.Lock()
		w.backends[chainID] = backend
		w.mu.Unlock()
		walletLogger.Debug().Str("url", url).Uint64("chainID", chainID).Msg("Connected wallet backend")
		return backend, nil
	}
	return nil, errors.Join(ErrDialFailed, dialErr)
}

func (w *SigningWallet) confirm(ctx context.Context, prompt Prompt) error {
	ok, err := w.prompter.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		walletLogger.Info().Str("prompt", string(prompt.Kind)).Msg("Prompt declined")
		return chain.ErrUserRejected
	}
	return nil
}

// RequestAccounts grants account access, prompting the first time.
func (w *SigningWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	authorized := w.authorized
	w.mu.Unlock()

	if !authorized {
		if err := w.confirm(ctx, Prompt{Kind: PromptAccounts, Message: "Allow the staking dashboard to see your accounts?"}); err != nil {
			return nil, err
		}
		w.mu.Lock()
		w.authorized = true
		w.mu.Unlock()
	}
	return w.Accounts(ctx)
}

// Accounts returns the accounts already granted, selected account first.
func (w *SigningWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.authorized {
		return nil, nil
	}
	return append([]common.Address(nil), w.accounts...), nil
}

// ChainID returns the network the wallet is on.
func (w *SigningWallet) ChainID(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, nil
}

// SwitchChain moves to a known network after confirmation.
func (w *SigningWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	current := w.current
	network, known := w.networks[chainID]
	w.mu.Unlock()

	if chainID == current {
		return nil
	}
	if !known {
		return chain.ErrChainNotAdded
	}
	if err := w.confirm(ctx, Prompt{Kind: PromptSwitchChain, Message: fmt.Sprintf("Switch to %s (chain %d)?", network.Name, chainID)}); err != nil {
		return err
	}
	if _, err := w.backendFor(ctx, chainID); err != nil {
		return err
	}

	w.mu.Lock()
	w.current = chainID
	observers := w.chainObserverList()
	w.mu.Unlock()

	walletLogger.Info().Uint64("from", current).Uint64("to", chainID).Msg("Wallet switched network")
	for _, fn := range observers {
		fn(chainID)
	}
	return nil
}

// AddChain records network after confirmation. It does not switch to it.
func (w *SigningWallet) AddChain(ctx context.Context, network types.Network) error {
	if err := validateNetwork(network); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	if err := w.confirm(ctx, Prompt{Kind: PromptAddChain, Message: fmt.Sprintf("Add network %s (chain %d)?", network.Name, network.ChainID)}); err != nil {
		return err
	}

	w.mu.Lock()
	w.networks[network.ChainID] = network
	w.mu.Unlock()

	walletLogger.Info().Uint64("chainID", network.ChainID).Str("name", network.Name).Msg("Network added to wallet")
	return nil
}

// Client returns the backend of the current network.
func (w *SigningWallet) Client() chain.Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	backend, ok := w.backends[w.current]
	if !ok {
		return nil
	}
	return backend
}

func (w *SigningWallet) OnAccountsChanged(fn func([]common.Address)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextObserver
	w.nextObserver++
	w.accountObservers[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.accountObservers, id)
	}
}

func (w *SigningWallet) OnChainChanged(fn func(uint64)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextObserver
	w.nextObserver++
	w.chainObservers[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.chainObservers, id)
	}
}

func (w *SigningWallet) chainObserverList() []func(uint64) {
	out := make([]func(uint64), 0, len(w.chainObservers))
	for _, fn := range w.chainObservers {
		out = append(out, fn)
	}
	return out
}

// SelectAccount makes account the active signer and notifies observers.
func (w *SigningWallet) SelectAccount(account common.Address) error {
	w.mu.Lock()
	if _, ok := w.keys[account]; !ok {
		w.mu.Unlock()
		return ErrUnknownAccount
	}
	reordered := []common.Address{account}
	for _, addr := range w.accounts {
		if addr != account {
			reordered = append(reordered, addr)
		}
	}
	w.accounts = reordered
	visible := []common.Address(nil)
	if w.authorized {
		visible = append(visible, reordered...)
	}
	observers := make([]func([]common.Address), 0, len(w.accountObservers))
	for _, fn := range w.accountObservers {
		observers = append(observers, fn)
	}
	w.mu.Unlock()

	walletLogger.Info().Str("account", account.Hex()).Msg("Wallet account selected")
	for _, fn := range observers {
		fn(visible)
	}
	return nil
}

// Lock revokes account access. Observers see an empty account list.
func (w *SigningWallet) Lock() {
	w.mu.Lock()
	w.authorized = false
	observers := make([]func([]common.Address), 0, len(w.accountObservers))
	for _, fn := range w.accountObservers {
		observers = append(observers, fn)
	}
	w.mu.Unlock()

	for _, fn := range observers {
		fn(nil)
	}
}

// Close releases every dialed backend that can be closed.
func (w *SigningWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, backend := range w.backends {
		if closer, ok := backend.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(w.backends, id)
	}
	walletLogger.Debug().Msg("Wallet backends closed")
}
