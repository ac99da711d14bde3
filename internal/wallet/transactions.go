package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var txLogger = logger.GetForComponent("transaction_builder")

// gasBuffer is added on top of the adjusted estimate.
const gasBuffer = 10000

// SendTransaction estimates, signs and broadcasts req as an EIP-1559 transaction.
// A call that would revert is reported before the user is asked to sign.
func (w *SigningWallet) SendTransaction(ctx context.Context, req chain.TxRequest) (common.Hash, error) {
	if err := validateTxRequest(req); err != nil {
		return common.Hash{}, errors.Join(ErrTxBuildFailed, err)
	}

	w.mu.Lock()
	key, ok := w.keys[req.From]
	chainID := w.current
	w.mu.Unlock()
	if !ok {
		return common.Hash{}, ErrUnknownAccount
	}

	backend, err := w.backendFor(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	txLogger.Debug().
		Str("from", req.From.Hex()).
		Str("to", req.To.Hex()).
		Int("dataLength", len(req.Data)).
		Msg("SendTransaction: building transaction")

	gas, err := w.estimateGas(ctx, backend, req)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := backend.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, errors.Join(ErrTxBuildFailed, fmt.Errorf("pending nonce: %w", err))
	}
	tipCap, feeCap, err := suggestFees(ctx, backend)
	if err != nil {
		return common.Hash{}, errors.Join(ErrTxBuildFailed, err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	unsigned := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})

	if err := w.confirm(ctx, Prompt{
		Kind:    PromptSign,
		Message: fmt.Sprintf("Sign transaction to %s (gas %d, max fee %s wei)?", req.To.Hex(), gas, feeCap.String()),
	}); err != nil {
		return common.Hash{}, err
	}

	signed, err := gethtypes.SignTx(unsigned, gethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), key)
	if err != nil {
		return common.Hash{}, errors.Join(ErrTxSignFailed, err)
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		if isRevert(err) {
			return common.Hash{}, err
		}
		return common.Hash{}, errors.Join(ErrTxBroadcastFailed, err)
	}

	txLogger.Info().
		Str("txHash", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gas).
		Str("maxFeePerGas", feeCap.String()).
		Msg("SendTransaction: transaction broadcast")

	return signed.Hash(), nil
}

// estimateGas applies the gas adjustment to the node's estimate. Reverts are returned
// unchanged so the adapter can surface the contract's reason.
func (w *SigningWallet) estimateGas(ctx context.Context, backend Backend, req chain.TxRequest) (uint64, error) {
	to := req.To
	estimated, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  req.From,
		To:    &to,
		Value: req.Value,
		Data:  req.Data,
	})
	if err != nil {
		if isRevert(err) {
			return 0, err
		}
		txLogger.Warn().Err(err).Uint64("defaultGas", w.defaultGasLimit).Msg("Gas estimation failed, using default gas limit")
		return w.defaultGasLimit, nil
	}
	if estimated == 0 {
		return 0, errors.Join(ErrTxBuildFailed, errors.New("estimated gas is zero"))
	}

	adjusted := float64(estimated) * w.gasAdjustment
	if math.IsNaN(adjusted) || math.IsInf(adjusted, 0) || adjusted > float64(math.MaxUint64-gasBuffer) {
		return 0, errors.Join(ErrTxBuildFailed, fmt.Errorf("adjusted gas overflows: %f", adjusted))
	}
	return uint64(adjusted) + gasBuffer, nil
}

// suggestFees returns the tip cap and a fee cap of twice the base fee plus tip.
func suggestFees(ctx context.Context, backend Backend) (*big.Int, *big.Int, error) {
	tipCap, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("suggest tip cap: %w", err)
	}
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("latest header: %w", err)
	}
	if head.BaseFee == nil {
		// Pre-London chain: cap at the legacy gas price.
		price, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("suggest gas price: %w", err)
		}
		return price, price, nil
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)
	return tipCap, feeCap, nil
}

func validateTxRequest(req chain.TxRequest) error {
	if req.From == (common.Address{}) {
		return errors.New("sender cannot be the zero address")
	}
	if req.To == (common.Address{}) {
		return errors.New("contract creation is not supported")
	}
	if len(req.Data) < 4 {
		return errors.New("calldata must contain a method selector")
	}
	if req.Value != nil && req.Value.Sign() < 0 {
		return errors.New("value cannot be negative")
	}
	return nil
}

// isRevert reports whether err is a contract revert rather than a transport failure.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
