package chain

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// PendingTx is a submitted transaction. Wait suspends until it is mined.
type PendingTx interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*gethtypes.Receipt, error)
}

type pendingTx struct {
	hash     common.Hash
	client   Client
	call     ethereum.CallMsg
	contract common.Address
	method   string
}

func (t *pendingTx) Hash() common.Hash {
	return t.hash
}

// Wait returns the receipt of a successful transaction, or a ContractRevertError
// with the reason recovered by replaying the call at the mined block.
func (t *pendingTx) Wait(ctx context.Context) (*gethtypes.Receipt, error) {
	receipt, err := bind.WaitMinedHash(ctx, t.client, t.hash)
	if err != nil {
		return nil, classify("wait", t.contract, t.method, err)
	}
	if receipt.Status == gethtypes.ReceiptStatusSuccessful {
		return receipt, nil
	}
	return receipt, t.revertError(ctx, receipt)
}

func (t *pendingTx) revertError(ctx context.Context, receipt *gethtypes.Receipt) error {
	_, err := t.client.CallContract(ctx, t.call, receipt.BlockNumber)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return &ContractRevertError{Contract: t.contract, Method: t.method, Reason: reason}
		}
	}
	return &ContractRevertError{Contract: t.contract, Method: t.method}
}
