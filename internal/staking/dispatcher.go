package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrBusy is returned while another action is in flight. Requests are never queued.
	ErrBusy = errors.New("another action is already pending")
	// ErrInvalidAmount rejects zero, negative or missing amounts before any chain call.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)

var dispatcherLogger = logger.GetForComponent("action_dispatcher")

// ChainWriter is the slice of the chain adapter the dispatcher needs.
type ChainWriter interface {
	Account() (common.Address, bool)
	ReadOnlyCall(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	WriteCall(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (chain.PendingTx, error)
}

// ReceiptRecorder persists the outcome of every finished action.
type ReceiptRecorder interface {
	SaveActionReceipt(ctx context.Context, receipt types.ActionReceipt) error
}

// Config wires the dispatcher into its session.
type Config struct {
	Staking common.Address
	Token   common.Address
	// Faucet is optional; ClaimFaucet fails without it.
	Faucet common.Address

	// Gate is consulted before an action claims the pending slot. A non-nil error
	// rejects the action without any chain call.
	Gate func() error
	// AfterConfirm runs once an action is confirmed on chain.
	AfterConfirm func(ctx context.Context, result types.ActionResult)
	// OnChange observes the pending action; nil means idle.
	OnChange func(pending *types.PendingAction)

	Receipts ReceiptRecorder
	Metrics  *metrics.Metrics
}

// Dispatcher submits staking actions one at a time.
type Dispatcher struct {
	chain ChainWriter
	cfg   Config

	mu      sync.Mutex
	pending *types.PendingAction
}

func NewDispatcher(writer ChainWriter, cfg Config) *Dispatcher {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewUnregistered()
	}
	return &Dispatcher{chain: writer, cfg: cfg}
}

// Pending returns a copy of the action in flight, or nil.
func (d *Dispatcher) Pending() *types.PendingAction {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return nil
	}
	p := *d.pending
	return &p
}

// Stake approves the staking contract first when the current allowance is below
// amount, then stakes.
func (d *Dispatcher) Stake(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
	if err := d.begin(types.ActionStake, pool, validAmount(amount)); err != nil {
		return nil, err
	}
	started := time.Now()
	result := types.ActionResult{Kind: types.ActionStake, PoolID: pool, Amount: amount}

	owner, _ := d.chain.Account()
	allowance, err := d.allowance(ctx, owner)
	if err != nil {
		return nil, d.finish(ctx, result, started, err)
	}

	if allowance.LT(amount) {
		d.setPhase(types.PhaseAwaitingApproval)
		dispatcherLogger.Info().
			Str("allowance", allowance.String()).
			Str("amount", amount.String()).
			Msg("Allowance below stake amount, requesting approval")

		receipt, err := d.send(ctx, types.ActionApprove, d.cfg.Token, chain.TokenABI, "approve", d.cfg.Staking, amount.BigInt())
		if err != nil {
			return nil, d.finish(ctx, result, started, fmt.Errorf("approve: %w", err))
		}
		hash := receipt.TxHash
		result.ApprovalTx = &hash
	}

	d.setPhase(types.PhaseSubmitting)
	receipt, err := d.send(ctx, types.ActionStake, d.cfg.Staking, chain.StakingABI, "stake", poolArg(pool), amount.BigInt())
	if err != nil {
		return nil, d.finish(ctx, result, started, err)
	}
	result = withReceipt(result, receipt)
	return &result, d.finish(ctx, result, started, nil)
}

// Withdraw withdraws amount from pool. Lock expiry is enforced by the contract only.
func (d *Dispatcher) Withdraw(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
	if err := d.begin(types.ActionWithdraw, pool, validAmount(amount)); err != nil {
		return nil, err
	}
	return d.single(ctx, types.ActionWithdraw, pool, amount, d.cfg.Staking, chain.StakingABI, "withdraw", poolArg(pool), amount.BigInt())
}

// EarlyWithdraw withdraws before the lock expires; the contract applies the penalty.
func (d *Dispatcher) EarlyWithdraw(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
	if err := d.begin(types.ActionEarlyWithdraw, pool, validAmount(amount)); err != nil {
		return nil, err
	}
	return d.single(ctx, types.ActionEarlyWithdraw, pool, amount, d.cfg.Staking, chain.StakingABI, "earlyWithdraw", poolArg(pool), amount.BigInt())
}

// Claim calls getReward. A zero reward is still submitted.
func (d *Dispatcher) Claim(ctx context.Context, pool types.PoolID) (*types.ActionResult, error) {
	if err := d.begin(types.ActionClaim, pool, nil); err != nil {
		return nil, err
	}
	return d.single(ctx, types.ActionClaim, pool, sdkmath.ZeroInt(), d.cfg.Staking, chain.StakingABI, "getReward", poolArg(pool))
}

// Exit withdraws the whole stake and claims in one transaction.
func (d *Dispatcher) Exit(ctx context.Context, pool types.PoolID) (*types.ActionResult, error) {
	if err := d.begin(types.ActionExit, pool, nil); err != nil {
		return nil, err
	}
	return d.single(ctx, types.ActionExit, pool, sdkmath.ZeroInt(), d.cfg.Staking, chain.StakingABI, "exit", poolArg(pool))
}

// ClaimFaucet takes the faucet's fixed payout. The cooldown is enforced by the contract;
// a claim inside it surfaces the revert reason.
func (d *Dispatcher) ClaimFaucet(ctx context.Context) (*types.ActionResult, error) {
	var notConfigured error
	if d.cfg.Faucet == (common.Address{}) {
		notConfigured = datafetcher.ErrFaucetNotConfigured
	}
	if err := d.begin(types.ActionFaucetClaim, 0, notConfigured); err != nil {
		return nil, err
	}
	return d.single(ctx, types.ActionFaucetClaim, 0, sdkmath.ZeroInt(), d.cfg.Faucet, chain.FaucetABI, "claim")
}

// single sends one transaction for an action whose slot begin already claimed.
func (d *Dispatcher) single(ctx context.Context, kind types.ActionKind, pool types.PoolID, amount sdkmath.Int, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (*types.ActionResult, error) {
	started := time.Now()
	result := types.ActionResult{Kind: kind, PoolID: pool, Amount: amount}
	d.setPhase(types.PhaseSubmitting)

	receipt, err := d.send(ctx, kind, contract, contractABI, method, args...)
	if err != nil {
		return nil, d.finish(ctx, result, started, err)
	}
	result = withReceipt(result, receipt)
	return &result, d.finish(ctx, result, started, nil)
}

// begin claims the pending slot. A busy slot wins over the readiness gate, and the gate
// wins over invalid, the caller's own validation result. Observers hear about the claim
// from the first setPhase.
func (d *Dispatcher) begin(kind types.ActionKind, pool types.PoolID, invalid error) error {
	d.mu.Lock()
	if d.pending != nil {
		busy := *d.pending
		d.mu.Unlock()
		d.cfg.Metrics.ActionsTotal.WithLabelValues(string(kind), "busy").Inc()
		dispatcherLogger.Warn().
			Str("requested", string(kind)).
			Str("pending", string(busy.Kind)).
			Msg("Action rejected while another is pending")
		return ErrBusy
	}
	if d.cfg.Gate != nil {
		if err := d.cfg.Gate(); err != nil {
			d.mu.Unlock()
			d.cfg.Metrics.ActionsTotal.WithLabelValues(string(kind), "rejected").Inc()
			return err
		}
	}
	if invalid != nil {
		d.mu.Unlock()
		d.cfg.Metrics.ActionsTotal.WithLabelValues(string(kind), "invalid").Inc()
		return invalid
	}
	d.pending = &types.PendingAction{
		Label:  kind.PendingLabel(),
		PoolID: pool,
		Kind:   kind,
		Phase:  types.PhaseSubmitting,
	}
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) setPhase(phase types.ActionPhase) {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return
	}
	d.pending.Phase = phase
	if phase == types.PhaseAwaitingApproval {
		d.pending.Label = types.ActionApprove.PendingLabel()
	} else {
		d.pending.Label = d.pending.Kind.PendingLabel()
	}
	snapshot := *d.pending
	d.mu.Unlock()

	d.notify(&snapshot)
}

func (d *Dispatcher) notify(pending *types.PendingAction) {
	if d.cfg.OnChange != nil {
		d.cfg.OnChange(pending)
	}
}

// send submits one transaction and waits for it to be mined.
func (d *Dispatcher) send(ctx context.Context, kind types.ActionKind, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (*gethtypes.Receipt, error) {
	tx, err := d.chain.WriteCall(ctx, contract, contractABI, method, args...)
	if err != nil {
		return nil, err
	}

	if kind != types.ActionApprove {
		d.setPhase(types.PhaseConfirming)
	}
	dispatcherLogger.Info().
		Str("action", string(kind)).
		Str("txHash", tx.Hash().Hex()).
		Msg("Waiting for transaction inclusion...")

	receipt, err := tx.Wait(ctx)
	if err != nil {
		return nil, err
	}
	dispatcherLogger.Info().
		Str("action", string(kind)).
		Str("txHash", receipt.TxHash.Hex()).
		Uint64("gasUsed", receipt.GasUsed).
		Msg("Transaction confirmed")
	return receipt, nil
}

// finish releases the pending slot, records the outcome and, on success, triggers
// the post-action reconciliation.
func (d *Dispatcher) finish(ctx context.Context, result types.ActionResult, started time.Time, err error) error {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
	d.notify(nil)

	outcome := outcomeOf(err)
	d.cfg.Metrics.ActionsTotal.WithLabelValues(string(result.Kind), outcome).Inc()
	if err == nil {
		d.cfg.Metrics.ActionDuration.WithLabelValues(string(result.Kind)).Observe(time.Since(started).Seconds())
	}

	d.record(ctx, result, err)

	if err != nil {
		dispatcherLogger.Error().
			Err(err).
			Str("action", string(result.Kind)).
			Uint64("pool", uint64(result.PoolID)).
			Str("outcome", outcome).
			Msg("Action failed")
		return err
	}

	dispatcherLogger.Info().
		Str("action", string(result.Kind)).
		Uint64("pool", uint64(result.PoolID)).
		Str("txHash", result.TxHash.Hex()).
		Msg("Action confirmed")
	if d.cfg.AfterConfirm != nil {
		d.cfg.AfterConfirm(ctx, result)
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, result types.ActionResult, err error) {
	if d.cfg.Receipts == nil {
		return
	}
	account, _ := d.chain.Account()
	receipt := types.ActionReceipt{
		Timestamp: time.Now().UTC(),
		Kind:      result.Kind,
		PoolID:    result.PoolID,
		Account:   account.Hex(),
		Success:   err == nil,
	}
	if !result.Amount.IsNil() && !result.Amount.IsZero() {
		receipt.Amount = result.Amount.String()
	}
	if result.TxHash != (common.Hash{}) {
		receipt.TxHash = result.TxHash.Hex()
	}
	if err != nil {
		receipt.Message = err.Error()
	}
	// The receipt is written even when the caller's context was cancelled mid-wait.
	if saveErr := d.cfg.Receipts.SaveActionReceipt(context.WithoutCancel(ctx), receipt); saveErr != nil {
		dispatcherLogger.Warn().Err(saveErr).Str("action", string(result.Kind)).Msg("Failed to save action receipt")
	}
}

func (d *Dispatcher) allowance(ctx context.Context, owner common.Address) (sdkmath.Int, error) {
	out, err := d.chain.ReadOnlyCall(ctx, d.cfg.Token, chain.TokenABI, "allowance", owner, d.cfg.Staking)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if len(out) != 1 {
		return sdkmath.Int{}, &chain.CallError{Op: "read", Contract: d.cfg.Token, Method: "allowance", Err: fmt.Errorf("unexpected output count %d", len(out))}
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return sdkmath.Int{}, &chain.CallError{Op: "read", Contract: d.cfg.Token, Method: "allowance", Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return sdkmath.NewIntFromBigInt(v), nil
}

func validAmount(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func poolArg(pool types.PoolID) *big.Int {
	return new(big.Int).SetUint64(uint64(pool))
}

func withReceipt(result types.ActionResult, receipt *gethtypes.Receipt) types.ActionResult {
	result.TxHash = receipt.TxHash
	result.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result
}

func outcomeOf(err error) string {
	var revertErr *chain.ContractRevertError
	switch {
	case err == nil:
		return "confirmed"
	case errors.As(err, &revertErr):
		return "reverted"
	case errors.Is(err, chain.ErrUserRejected):
		return "rejected"
	default:
		return "failed"
	}
}
