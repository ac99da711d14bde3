package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrNoWallet means no signing wallet is configured. Reads still work through the fallback endpoint.
	ErrNoWallet = errors.New("no wallet found: configure WALLET_PRIVATE_KEY or WALLET_KEYSTORE")
	// ErrUserRejected means a permission, network or signing prompt was declined.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrChainNotAdded is returned by wallets asked to switch to a network they do not know.
	ErrChainNotAdded = errors.New("network has not been added to the wallet")
	// ErrWrongNetwork means the wallet is connected to a chain other than the expected one.
	ErrWrongNetwork = errors.New("wallet is connected to the wrong network")
	// ErrNotConnected means a write was attempted without a connected account.
	ErrNotConnected = errors.New("wallet is not connected")
	// ErrNoProvider means neither a wallet provider nor a fallback endpoint is available.
	ErrNoProvider = errors.New("no chain provider available")
	// ErrTransientRead marks chain calls that failed in transport rather than in the contract.
	ErrTransientRead = errors.New("transient read failure")
	// ErrInvalidCall means the method or its arguments do not match the contract ABI.
	// Nothing was sent to the chain.
	ErrInvalidCall = errors.New("invalid contract call")
	// ErrLockNotExpired matches contract reverts caused by an unexpired lock period.
	ErrLockNotExpired = errors.New("lock period has not expired")
)

// CallError is a chain call that failed before the contract could answer.
type CallError struct {
	Op       string // read, write, wait, subscribe
	Contract common.Address
	Method   string
	Err      error
}

func (e *CallError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s on %s failed: %v", e.Op, e.Method, e.Contract.Hex(), e.Err)
}

func (e *CallError) Unwrap() []error {
	return []error{ErrTransientRead, e.Err}
}

// ContractRevertError carries the revert reason exactly as the contract returned it.
type ContractRevertError struct {
	Contract common.Address
	Method   string
	Reason   string
}

func (e *ContractRevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s reverted", e.Method)
	}
	return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
}

// Is lets callers match lock-related reverts against ErrLockNotExpired.
func (e *ContractRevertError) Is(target error) bool {
	return target == ErrLockNotExpired && strings.Contains(strings.ToLower(e.Reason), "lock")
}

// IsTaxonomy reports whether err already is one of the adapter's error kinds.
func IsTaxonomy(err error) bool {
	var callErr *CallError
	var revertErr *ContractRevertError
	return errors.Is(err, ErrNoWallet) ||
		errors.Is(err, ErrUserRejected) ||
		errors.Is(err, ErrChainNotAdded) ||
		errors.Is(err, ErrWrongNetwork) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrInvalidCall) ||
		errors.As(err, &callErr) ||
		errors.As(err, &revertErr)
}

// classify converts a raw provider error into the taxonomy.
func classify(op string, contract common.Address, method string, err error) error {
	if err == nil {
		return nil
	}
	if IsTaxonomy(err) {
		return err
	}
	if reason, ok := revertReason(err); ok {
		return &ContractRevertError{Contract: contract, Method: method, Reason: reason}
	}
	return &CallError{Op: op, Contract: contract, Method: method, Err: err}
}

const revertMarker = "execution reverted"

// revertReason extracts the Error(string) payload of a reverted call, falling back to
// the reason embedded in the node's error message.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(hexData); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertMarker)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimSpace(msg[idx+len(revertMarker):])
	return strings.TrimSpace(strings.TrimPrefix(reason, ":")), true
}
