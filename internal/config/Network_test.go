package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockSubscriptionsAvailable(t *testing.T) {
	rpc, ws := ChainRPCURL, ChainWSURL
	t.Cleanup(func() { ChainRPCURL, ChainWSURL = rpc, ws })

	tests := []struct {
		rpc, ws  string
		expected bool
	}{
		{"https://rpc.sepolia.org", "", false},
		{"https://rpc.sepolia.org", "wss://sepolia.example/ws", true},
		{"WS://localhost:8546", "", true},
		{"http://localhost:8545", "  ", false},
	}
	for _, tt := range tests {
		ChainRPCURL, ChainWSURL = tt.rpc, tt.ws
		assert.Equal(t, tt.expected, BlockSubscriptionsAvailable(), "rpc=%q ws=%q", tt.rpc, tt.ws)
	}
}
