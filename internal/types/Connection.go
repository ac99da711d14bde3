package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// ConnectionStatus is the wallet session state tracked by the reconciler.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
	WrongNetwork
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case WrongNetwork:
		return "wrong_network"
	default:
		return "unknown"
	}
}

func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ConnectionState struct {
	Status  ConnectionStatus `json:"status"`
	Address common.Address   `json:"address"`
	ChainID uint64           `json:"chain_id"`
}

// Ready reports whether position reads and actions are allowed.
func (c ConnectionState) Ready(expectedChainID uint64) bool {
	return c.Status == Connected && c.ChainID == expectedChainID && c.Address != (common.Address{})
}
