// Package chaintest provides an in-memory staking deployment and wallet for tests.
// FakeChain answers JSON-RPC style calls for one staking contract, one ERC-20 token and
// one token faucet, and counts every call it receives.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	DefaultStaking = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	DefaultToken   = common.HexToAddress("0x02675d29817Dd82E4268A58cd11Ba3d3868bd9B3")
	DefaultFaucet  = common.HexToAddress("0xe7f1725e7734ce288f8367e1bb143e90bb3f0512")
)

// RevertError mimics the error a node returns for a reverted eth_call or eth_estimateGas.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

func (e *RevertError) ErrorCode() int { return 3 }

func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(packRevert(e.Reason))
}

func packRevert(reason string) []byte {
	stringTy, _ := abi.NewType("string", "", nil)
	payload, _ := abi.Arguments{{Type: stringTy}}.Pack(reason)
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], payload...)
}

// Pool is the on-chain configuration of one staking pool.
type Pool struct {
	AprBps      uint64
	LockPeriod  uint64
	TotalStaked *big.Int
}

type positionKey struct {
	pool    uint64
	account common.Address
}

// FakeChain is a chain.Client backed by in-memory contract state.
type FakeChain struct {
	Staking common.Address
	Token   common.Address
	Faucet  common.Address

	// MineReverts accepts reverting transactions and mines them with a failed status,
	// instead of rejecting them at gas estimation.
	MineReverts bool

	mu          sync.Mutex
	chainID     uint64
	now         uint64
	blockNumber uint64
	nonce       uint64

	pools      []Pool
	staked     map[positionKey]*big.Int
	stakedAt   map[positionKey]uint64
	earned     map[positionKey]*big.Int
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int

	faucetAmount   *big.Int
	faucetCooldown uint64
	lastClaim      map[common.Address]uint64

	failures map[string]error
	calls    map[string]int
	callLog  []string
	receipts map[common.Hash]*gethtypes.Receipt
	subs     []*fakeSubscription
}

// NewFakeChain returns an empty deployment on chainID.
func NewFakeChain(chainID uint64) *FakeChain {
	return &FakeChain{
		Staking:     DefaultStaking,
		Token:       DefaultToken,
		Faucet:      DefaultFaucet,
		chainID:     chainID,
		now:         1_700_000_000,
		blockNumber: 100,
		staked:      make(map[positionKey]*big.Int),
		stakedAt:    make(map[positionKey]uint64),
		earned:      make(map[positionKey]*big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[[2]common.Address]*big.Int),
		// 1000 tokens every 24 hours.
		faucetAmount:   new(big.Int).Mul(big.NewInt(1_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		faucetCooldown: 86_400,
		lastClaim:      make(map[common.Address]uint64),
		failures:       make(map[string]error),
		calls:          make(map[string]int),
		receipts:       make(map[common.Hash]*gethtypes.Receipt),
	}
}

// AddPool appends a pool and returns its id.
func (c *FakeChain) AddPool(aprBps, lockPeriod uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools = append(c.pools, Pool{AprBps: aprBps, LockPeriod: lockPeriod, TotalStaked: new(big.Int)})
	return uint64(len(c.pools) - 1)
}

// SetStake sets the staked balance of account in pool.
func (c *FakeChain) SetStake(pool uint64, account common.Address, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := positionKey{pool, account}
	prev := valueOf(c.staked[key])
	c.staked[key] = big.NewInt(amount)
	c.stakedAt[key] = c.now
	c.pools[pool].TotalStaked = new(big.Int).Add(new(big.Int).Sub(c.pools[pool].TotalStaked, prev), big.NewInt(amount))
}

// SetEarned sets the accrued reward of account in pool.
func (c *FakeChain) SetEarned(pool uint64, account common.Address, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.earned[positionKey{pool, account}] = big.NewInt(amount)
}

// SetTokenBalance sets the ERC-20 balance of account.
func (c *FakeChain) SetTokenBalance(account common.Address, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] = big.NewInt(amount)
}

// SetAllowance sets the ERC-20 allowance of owner for spender.
func (c *FakeChain) SetAllowance(owner, spender common.Address, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowances[[2]common.Address{owner, spender}] = big.NewInt(amount)
}

// SetFaucet configures the amount paid per claim and the cooldown in seconds.
func (c *FakeChain) SetFaucet(amountPerClaim int64, cooldown uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faucetAmount = big.NewInt(amountPerClaim)
	c.faucetCooldown = cooldown
}

// AdvanceTime moves the contract clock forward.
func (c *FakeChain) AdvanceTime(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

// Fail makes every call to key fail with err until cleared with a nil err.
// Keys look like "staking.getPoolInfo", "token.allowance" or "tx.stake".
func (c *FakeChain) Fail(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, key)
		return
	}
	c.failures[key] = err
}

// Calls returns how many times key was called.
func (c *FakeChain) Calls(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

// TotalCalls returns the number of contract calls and transactions received.
func (c *FakeChain) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.callLog)
}

// CallLog returns every call key in arrival order.
func (c *FakeChain) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.callLog...)
}

// ResetCalls clears the call counters.
func (c *FakeChain) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = make(map[string]int)
	c.callLog = nil
}

// Staked returns the staked balance of account in pool.
func (c *FakeChain) Staked(pool uint64, account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(valueOf(c.staked[positionKey{pool, account}]))
}

// TokenBalance returns the ERC-20 balance of account.
func (c *FakeChain) TokenBalance(account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(valueOf(c.balances[account]))
}

func (c *FakeChain) record(key string) error {
	c.calls[key]++
	c.callLog = append(c.callLog, key)
	return c.failures[key]
}

func valueOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (c *FakeChain) decode(to common.Address, data []byte) (string, *abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, nil, errors.New("calldata too short")
	}
	var contractABI abi.ABI
	var prefix string
	switch to {
	case c.Staking:
		contractABI, prefix = chain.StakingABI, "staking"
	case c.Token:
		contractABI, prefix = chain.TokenABI, "token"
	case c.Faucet:
		contractABI, prefix = chain.FaucetABI, "faucet"
	default:
		return "", nil, nil, nil
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return "", nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, nil, err
	}
	return prefix + "." + method.Name, method, args, nil
}

// CallContract implements chain.Client.
func (c *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	key, method, args, err := c.decode(*msg.To, msg.Data)
	if err != nil {
		return nil, err
	}
	if method == nil {
		// No code at the address: an empty result, as a node returns for an EOA.
		return []byte{}, nil
	}
	if err := c.record(key); err != nil {
		return nil, err
	}

	if !method.IsConstant() {
		if reason := c.apply(msg.From, key, args, true); reason != "" {
			return nil, &RevertError{Reason: reason}
		}
		return []byte{}, nil
	}

	out, err := c.view(key, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (c *FakeChain) view(key string, args []interface{}) ([]interface{}, error) {
	switch key {
	case "staking.poolCount":
		return []interface{}{big.NewInt(int64(len(c.pools)))}, nil
	case "staking.getPoolInfo":
		id := args[0].(*big.Int).Uint64()
		if id >= uint64(len(c.pools)) {
			return nil, &RevertError{Reason: "Invalid pool"}
		}
		p := c.pools[id]
		return []interface{}{
			c.Token, c.Token,
			new(big.Int).SetUint64(p.AprBps),
			new(big.Int).SetUint64(p.LockPeriod),
			new(big.Int).Set(p.TotalStaked),
			new(big.Int).SetUint64(c.now),
			new(big.Int),
		}, nil
	case "staking.balanceOf":
		k := positionKey{args[0].(*big.Int).Uint64(), args[1].(common.Address)}
		return []interface{}{new(big.Int).Set(valueOf(c.staked[k]))}, nil
	case "staking.earned":
		k := positionKey{args[0].(*big.Int).Uint64(), args[1].(common.Address)}
		return []interface{}{new(big.Int).Set(valueOf(c.earned[k]))}, nil
	case "token.balanceOf":
		return []interface{}{new(big.Int).Set(valueOf(c.balances[args[0].(common.Address)]))}, nil
	case "token.allowance":
		k := [2]common.Address{args[0].(common.Address), args[1].(common.Address)}
		return []interface{}{new(big.Int).Set(valueOf(c.allowances[k]))}, nil
	case "token.decimals":
		return []interface{}{uint8(18)}, nil
	case "faucet.amountPerClaim":
		return []interface{}{new(big.Int).Set(c.faucetAmount)}, nil
	case "faucet.cooldown":
		return []interface{}{new(big.Int).SetUint64(c.faucetCooldown)}, nil
	case "faucet.secondsUntilNextClaim":
		return []interface{}{new(big.Int).SetUint64(c.secondsUntilNextClaim(args[0].(common.Address)))}, nil
	default:
		return nil, fmt.Errorf("unsupported view %s", key)
	}
}

// apply runs a state-changing call. It validates before mutating, so a non-empty
// revert reason means nothing changed. dryRun only validates.
func (c *FakeChain) apply(from common.Address, key string, args []interface{}, dryRun bool) string {
	switch key {
	case "token.approve":
		if !dryRun {
			c.allowances[[2]common.Address{from, args[0].(common.Address)}] = new(big.Int).Set(args[1].(*big.Int))
		}
		return ""

	case "staking.stake":
		pool, amount := args[0].(*big.Int).Uint64(), args[1].(*big.Int)
		if pool >= uint64(len(c.pools)) {
			return "Invalid pool"
		}
		if amount.Sign() <= 0 {
			return "Cannot stake 0"
		}
		allowanceKey := [2]common.Address{from, c.Staking}
		if valueOf(c.allowances[allowanceKey]).Cmp(amount) < 0 {
			return "ERC20: insufficient allowance"
		}
		if valueOf(c.balances[from]).Cmp(amount) < 0 {
			return "ERC20: transfer amount exceeds balance"
		}
		if dryRun {
			return ""
		}
		k := positionKey{pool, from}
		c.allowances[allowanceKey] = new(big.Int).Sub(c.allowances[allowanceKey], amount)
		c.balances[from] = new(big.Int).Sub(c.balances[from], amount)
		c.staked[k] = new(big.Int).Add(valueOf(c.staked[k]), amount)
		c.stakedAt[k] = c.now
		c.pools[pool].TotalStaked = new(big.Int).Add(c.pools[pool].TotalStaked, amount)
		return ""

	case "staking.withdraw", "staking.earlyWithdraw":
		pool, amount := args[0].(*big.Int).Uint64(), args[1].(*big.Int)
		if pool >= uint64(len(c.pools)) {
			return "Invalid pool"
		}
		k := positionKey{pool, from}
		if amount.Sign() <= 0 {
			return "Cannot withdraw 0"
		}
		if valueOf(c.staked[k]).Cmp(amount) < 0 {
			return "Insufficient staked balance"
		}
		early := key == "staking.earlyWithdraw"
		if !early && c.now < c.stakedAt[k]+c.pools[pool].LockPeriod {
			return "Lock period not expired"
		}
		if dryRun {
			return ""
		}
		payout := new(big.Int).Set(amount)
		if early {
			// 10% penalty and the unclaimed reward is forfeited.
			payout.Sub(payout, new(big.Int).Div(amount, big.NewInt(10)))
			c.earned[k] = new(big.Int)
		}
		c.staked[k] = new(big.Int).Sub(c.staked[k], amount)
		c.pools[pool].TotalStaked = new(big.Int).Sub(c.pools[pool].TotalStaked, amount)
		c.balances[from] = new(big.Int).Add(valueOf(c.balances[from]), payout)
		return ""

	case "staking.getReward":
		pool := args[0].(*big.Int).Uint64()
		if pool >= uint64(len(c.pools)) {
			return "Invalid pool"
		}
		if dryRun {
			return ""
		}
		k := positionKey{pool, from}
		c.balances[from] = new(big.Int).Add(valueOf(c.balances[from]), valueOf(c.earned[k]))
		c.earned[k] = new(big.Int)
		return ""

	case "staking.exit":
		pool := args[0].(*big.Int).Uint64()
		if pool >= uint64(len(c.pools)) {
			return "Invalid pool"
		}
		k := positionKey{pool, from}
		if c.now < c.stakedAt[k]+c.pools[pool].LockPeriod && valueOf(c.staked[k]).Sign() > 0 {
			return "Lock period not expired"
		}
		if dryRun {
			return ""
		}
		total := new(big.Int).Add(valueOf(c.staked[k]), valueOf(c.earned[k]))
		c.pools[pool].TotalStaked = new(big.Int).Sub(c.pools[pool].TotalStaked, valueOf(c.staked[k]))
		c.staked[k] = new(big.Int)
		c.earned[k] = new(big.Int)
		c.balances[from] = new(big.Int).Add(valueOf(c.balances[from]), total)
		return ""

	case "faucet.claim":
		if c.secondsUntilNextClaim(from) > 0 {
			return "Faucet: cooldown active"
		}
		if dryRun {
			return ""
		}
		c.balances[from] = new(big.Int).Add(valueOf(c.balances[from]), c.faucetAmount)
		c.lastClaim[from] = c.now
		return ""

	default:
		return "unsupported call " + key
	}
}

func (c *FakeChain) secondsUntilNextClaim(account common.Address) uint64 {
	last, ok := c.lastClaim[account]
	if !ok || c.now >= last+c.faucetCooldown {
		return 0
	}
	return last + c.faucetCooldown - c.now
}

// Execute applies a signed transaction and mines it into a new block.
func (c *FakeChain) Execute(from, to common.Address, data []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, method, args, err := c.decode(to, data)
	if err != nil {
		return common.Hash{}, err
	}
	if method == nil {
		return common.Hash{}, fmt.Errorf("no contract at %s", to.Hex())
	}
	txKey := "tx." + method.Name
	if err := c.record(txKey); err != nil {
		return common.Hash{}, err
	}

	reason := c.apply(from, key, args, true)
	if reason != "" && !c.MineReverts {
		return common.Hash{}, &RevertError{Reason: reason}
	}
	status := gethtypes.ReceiptStatusFailed
	if reason == "" {
		c.apply(from, key, args, false)
		status = gethtypes.ReceiptStatusSuccessful
	}

	c.nonce++
	c.blockNumber++
	hash := crypto.Keccak256Hash(from.Bytes(), new(big.Int).SetUint64(c.nonce).Bytes())
	c.receipts[hash] = &gethtypes.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(c.blockNumber),
		GasUsed:     52_000,
	}
	return hash, nil
}

// ChainID implements chain.Client.
func (c *FakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(c.chainID), nil
}

// ID returns the chain id as a plain integer.
func (c *FakeChain) ID() uint64 {
	return c.chainID
}

// BlockNumber implements chain.Client.
func (c *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures["eth.blockNumber"]; err != nil {
		return 0, err
	}
	return c.blockNumber, nil
}

// HeaderByNumber implements chain.Client and always returns the head.
func (c *FakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &gethtypes.Header{
		Number:  new(big.Int).SetUint64(c.blockNumber),
		Time:    c.now,
		BaseFee: big.NewInt(1_000_000_000),
	}, nil
}

// SuggestGasPrice implements chain.Client.
func (c *FakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

// TransactionReceipt implements chain.Client.
func (c *FakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// CodeAt implements chain.Client. Known contracts report a one-byte body.
func (c *FakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	switch account {
	case c.Staking, c.Token, c.Faucet:
		return []byte{0x60}, nil
	default:
		return []byte{}, nil
	}
}

type fakeSubscription struct {
	heads  chan<- *gethtypes.Header
	errc   chan error
	once   sync.Once
	closed atomic.Bool
}

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.errc)
	})
}

func (s *fakeSubscription) Err() <-chan error {
	return s.errc
}

// SubscribeNewHead implements chain.Client.
func (c *FakeChain) SubscribeNewHead(ctx context.Context, ch chan<- *gethtypes.Header) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures["eth.subscribe"]; err != nil {
		return nil, err
	}
	sub := &fakeSubscription{heads: ch, errc: make(chan error, 1)}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// ActiveSubscriptions counts subscriptions that have not been unsubscribed.
func (c *FakeChain) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := 0
	for _, s := range c.subs {
		if !s.closed.Load() {
			active++
		}
	}
	return active
}

// TotalSubscriptions counts every subscription ever created.
func (c *FakeChain) TotalSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// MineBlock advances the head and delivers it to every subscription channel,
// including ones that were unsubscribed, to catch listeners that were not detached.
func (c *FakeChain) MineBlock() uint64 {
	c.mu.Lock()
	c.blockNumber++
	head := &gethtypes.Header{Number: new(big.Int).SetUint64(c.blockNumber), Time: c.now}
	subs := append([]*fakeSubscription(nil), c.subs...)
	c.mu.Unlock()

	for _, s := range subs {
		select {
		case s.heads <- head:
		default:
		}
	}
	return head.Number.Uint64()
}
