package chain

import (
	"context"
	"math/big"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Client is the read side of a JSON-RPC provider. *ethclient.Client satisfies it.
type Client interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *gethtypes.Header) (ethereum.Subscription, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// TxRequest is an unsigned contract call handed to the wallet for signing.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Wallet is the capability a signing wallet offers to the adapter: account access,
// chain selection, signing and change notifications.
type Wallet interface {
	// RequestAccounts asks for account access and may prompt.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already authorised accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	// SwitchChain returns ErrChainNotAdded when the wallet does not know chainID.
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, network types.Network) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	// Client is the provider of the wallet's current chain.
	Client() Client

	OnAccountsChanged(fn func([]common.Address)) (cancel func())
	OnChainChanged(fn func(chainID uint64)) (cancel func())
}
