package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LiveCoinWatchAPI is the base URL of the LiveCoinWatch API.
	LiveCoinWatchAPI string
	// LiveCoinWatchAPIKey is sent as x-api-key. Sync is disabled without it.
	LiveCoinWatchAPIKey string

	// CoinGeckoAPI is the base URL of the CoinGecko API.
	CoinGeckoAPI string
	// CoinGeckoAPIKey is sent as x-cg-demo-api-key when set.
	CoinGeckoAPIKey string
	// CoinGeckoPlatform is the asset platform used for contract lookups.
	CoinGeckoPlatform string

	// CryptoCompareAPI is the base URL of the CryptoCompare data API.
	CryptoCompareAPI string
	// CryptoCompareAPIKey authenticates history requests.
	CryptoCompareAPIKey string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	LiveCoinWatchAPI = getEnvOrDefault("LIVECOINWATCH_API", "https://api.livecoinwatch.com")
	LiveCoinWatchAPIKey = getEnvOrDefault("LIVECOINWATCH_API_KEY", "")

	CoinGeckoAPI = getEnvOrDefault("COINGECKO_API", "https://api.coingecko.com/api/v3")
	CoinGeckoAPIKey = getEnvOrDefault("COINGECKO_API_KEY", "")
	CoinGeckoPlatform = getEnvOrDefault("COINGECKO_PLATFORM", "binance-smart-chain")

	CryptoCompareAPI = getEnvOrDefault("CRYPTOCOMPARE_API", "https://min-api.cryptocompare.com/data/v2")
	CryptoCompareAPIKey = getEnvOrDefault("CRYPTOCOMPARE_API_KEY", "")

	log.Debug().
		Str("LiveCoinWatchAPI", LiveCoinWatchAPI).
		Str("CoinGeckoAPI", CoinGeckoAPI).
		Str("CryptoCompareAPI", CryptoCompareAPI).
		Bool("LiveCoinWatchKeySet", LiveCoinWatchAPIKey != "").
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
