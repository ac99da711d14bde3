package config

import (
	"strings"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/rs/zerolog/log"
)

// Chain configuration. Defaults target Sepolia.
var (
	// ChainID is the network every position read and action must run on.
	ChainID uint64
	// ChainName is shown by wallets when the network is added.
	ChainName string
	// ChainRPCURL is the public read-only endpoint used without a wallet.
	ChainRPCURL string
	// ChainWSURL is the endpoint the wallet signs through; it also carries newHeads subscriptions.
	ChainWSURL string
	// ExplorerURLs are handed to wallets that do not know the network yet.
	ExplorerURLs []string
	// NativeCurrencySymbol of the chain, with 18 decimals.
	NativeCurrencySymbol string
)

func loadNetworkConfig() error {
	var err error

	ChainID, err = getEnvAsUint64OrDefault("CHAIN_ID", 11155111)
	if err != nil {
		return err
	}
	ChainName = getEnvOrDefault("CHAIN_NAME", "Sepolia")
	ChainRPCURL = getEnvOrDefault("CHAIN_RPC_URL", "https://rpc.sepolia.org")
	ChainWSURL = getEnvOrDefault("CHAIN_WS_URL", "")
	ExplorerURLs = splitList(getEnvOrDefault("EXPLORER_URL", "https://sepolia.etherscan.io"))
	NativeCurrencySymbol = getEnvOrDefault("NATIVE_CURRENCY_SYMBOL", "ETH")

	log.Debug().
		Uint64("ChainID", ChainID).
		Str("ChainName", ChainName).
		Str("ChainRPCURL", ChainRPCURL).
		Msg("Network configuration loaded successfully.")
	return nil
}

// BlockSubscriptionsAvailable reports whether any configured endpoint is a websocket,
// the only transport that carries newHeads subscriptions.
func BlockSubscriptionsAvailable() bool {
	for _, url := range []string{ChainWSURL, ChainRPCURL} {
		lower := strings.ToLower(strings.TrimSpace(url))
		if strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://") {
			return true
		}
	}
	return false
}

// ExpectedNetwork is the network description handed to the wallet on add/switch.
func ExpectedNetwork() types.Network {
	rpcURLs := []string{}
	if ChainWSURL != "" {
		rpcURLs = append(rpcURLs, ChainWSURL)
	}
	if ChainRPCURL != "" {
		rpcURLs = append(rpcURLs, ChainRPCURL)
	}
	return types.Network{
		ChainID:           ChainID,
		Name:              ChainName,
		RPCURLs:           rpcURLs,
		BlockExplorerURLs: append([]string(nil), ExplorerURLs...),
		NativeCurrency: types.NativeCurrency{
			Name:     ChainName + " Ether",
			Symbol:   NativeCurrencySymbol,
			Decimals: 18,
		},
	}
}
