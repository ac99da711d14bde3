package chaintest

import (
	"context"
	"errors"
	"sync"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// FakeWallet is a chain.Wallet over one or more FakeChains. Prompts are answered
// through the Reject* switches.
type FakeWallet struct {
	mu sync.Mutex

	RejectAccounts bool
	RejectSwitch   bool
	RejectAdd      bool
	RejectSign     bool

	accounts   []common.Address
	authorized bool
	current    uint64
	known      map[uint64]*FakeChain
	addable    map[uint64]*FakeChain

	accountObservers map[int]func([]common.Address)
	chainObservers   map[int]func(uint64)
	nextObserver     int

	requestCalls int
	switchCalls  int
	addCalls     int
}

// NewFakeWallet creates a wallet on home holding accounts, none authorised yet.
func NewFakeWallet(home *FakeChain, accounts ...common.Address) *FakeWallet {
	return &FakeWallet{
		accounts:         accounts,
		current:          home.ID(),
		known:            map[uint64]*FakeChain{home.ID(): home},
		addable:          make(map[uint64]*FakeChain),
		accountObservers: make(map[int]func([]common.Address)),
		chainObservers:   make(map[int]func(uint64)),
	}
}

// KnowNetwork makes backend selectable through SwitchChain.
func (w *FakeWallet) KnowNetwork(backend *FakeChain) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.known[backend.ID()] = backend
}

// AllowAdd makes backend addable through AddChain without being known yet.
func (w *FakeWallet) AllowAdd(backend *FakeChain) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addable[backend.ID()] = backend
}

// Authorize marks the accounts as previously granted, as after an earlier session.
func (w *FakeWallet) Authorize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.authorized = true
}

func (w *FakeWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requestCalls++
	if w.RejectAccounts {
		return nil, chain.ErrUserRejected
	}
	w.authorized = true
	return append([]common.Address(nil), w.accounts...), nil
}

func (w *FakeWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.authorized {
		return nil, nil
	}
	return append([]common.Address(nil), w.accounts...), nil
}

func (w *FakeWallet) ChainID(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, nil
}

func (w *FakeWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	w.switchCalls++
	if chainID == w.current {
		w.mu.Unlock()
		return nil
	}
	if _, ok := w.known[chainID]; !ok {
		w.mu.Unlock()
		return chain.ErrChainNotAdded
	}
	if w.RejectSwitch {
		w.mu.Unlock()
		return chain.ErrUserRejected
	}
	w.current = chainID
	observers := w.chainObserversLocked()
	w.mu.Unlock()

	for _, fn := range observers {
		fn(chainID)
	}
	return nil
}

func (w *FakeWallet) AddChain(ctx context.Context, network types.Network) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addCalls++
	if w.RejectAdd {
		return chain.ErrUserRejected
	}
	backend, ok := w.addable[network.ChainID]
	if !ok {
		return errors.New("unreachable rpc url")
	}
	w.known[network.ChainID] = backend
	return nil
}

func (w *FakeWallet) SendTransaction(ctx context.Context, req chain.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	if w.RejectSign {
		w.mu.Unlock()
		return common.Hash{}, chain.ErrUserRejected
	}
	backend := w.known[w.current]
	w.mu.Unlock()

	if backend == nil {
		return common.Hash{}, errors.New("wallet has no provider for the current chain")
	}
	return backend.Execute(req.From, req.To, req.Data)
}

func (w *FakeWallet) Client() chain.Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	if backend, ok := w.known[w.current]; ok {
		return backend
	}
	return nil
}

func (w *FakeWallet) OnAccountsChanged(fn func([]common.Address)) func() {
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

func (w *FakeWallet) OnChainChanged(fn func(uint64)) func() {
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

func (w *FakeWallet) chainObserversLocked() []func(uint64) {
	out := make([]func(uint64), 0, len(w.chainObservers))
	for _, fn := range w.chainObservers {
		out = append(out, fn)
	}
	return out
}

// SelectAccount simulates the user picking another account in the wallet.
func (w *FakeWallet) SelectAccount(account common.Address) {
	w.mu.Lock()
	w.accounts = []common.Address{account}
	observers := make([]func([]common.Address), 0, len(w.accountObservers))
	for _, fn := range w.accountObservers {
		observers = append(observers, fn)
	}
	w.mu.Unlock()

	for _, fn := range observers {
		fn([]common.Address{account})
	}
}

// ChangeChain simulates the user switching network from inside the wallet.
func (w *FakeWallet) ChangeChain(chainID uint64) {
	w.mu.Lock()
	w.current = chainID
	observers := w.chainObserversLocked()
	w.mu.Unlock()

	for _, fn := range observers {
		fn(chainID)
	}
}

// Observers returns the number of registered account and chain observers.
func (w *FakeWallet) Observers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.accountObservers) + len(w.chainObservers)
}

// RequestCalls, SwitchCalls and AddCalls count prompts.
func (w *FakeWallet) RequestCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requestCalls
}

func (w *FakeWallet) SwitchCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.switchCalls
}

func (w *FakeWallet) AddCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addCalls
}
