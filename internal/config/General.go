package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// stakingPlaceholder is the value shipped in sample env files before the contract is deployed.
const stakingPlaceholder = "0xYOUR_STAKING_CONTRACT"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// StakingAddress is the staking contract. Zero when StakingConfigured is false.
	StakingAddress common.Address
	// StakingConfigured is false while the contract is not deployed; pool reads then serve the preview set.
	StakingConfigured bool

	// FaucetAddress is the test-token faucet. Zero when unset.
	FaucetAddress common.Address

	// TokenAddress is the ERC-20 that is staked and paid out as reward.
	TokenAddress common.Address
	// TokenSymbol is the display symbol of the staked token.
	TokenSymbol string
	// TokenDecimals is the number of decimals of the staked token.
	TokenDecimals int

	// WalletPrivateKey is a hex encoded secp256k1 key. Optional.
	WalletPrivateKey string
	// WalletKeystore is the path of an encrypted keystore JSON file. Optional.
	WalletKeystore string
	// WalletPassphrase unlocks WalletKeystore.
	WalletPassphrase string
	// AutoConnect remembers that the wallet has already granted account access.
	AutoConnect bool

	// DefaultGasLimit is used when gas estimation fails for a reason other than a revert.
	DefaultGasLimit uint64
	// GasAdjustment multiplies estimated gas before signing.
	GasAdjustment float64

	// PoolReadConcurrency bounds the number of getPoolInfo calls in flight.
	PoolReadConcurrency int

	// WebPort is the port of the API server.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Only values without a sensible default are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	StakingAddress, StakingConfigured, err = parseOptionalAddress("STAKING_ADDRESS")
	if err != nil {
		return err
	}

	FaucetAddress, _, err = parseOptionalAddress("FAUCET_ADDRESS")
	if err != nil {
		return err
	}

	tokenHex := getEnvOrDefault("TOKEN_ADDRESS", "0x02675d29817Dd82E4268A58cd11Ba3d3868bd9B3")
	if !common.IsHexAddress(tokenHex) {
		return errors.New("environment variable TOKEN_ADDRESS must be a hex address, got: " + tokenHex)
	}
	TokenAddress = common.HexToAddress(tokenHex)
	TokenSymbol = getEnvOrDefault("TOKEN_SYMBOL", "DDB")

	TokenDecimals, err = getEnvAsIntOrDefault("TOKEN_DECIMALS", 18)
	if err != nil {
		return err
	}
	if TokenDecimals < 0 || TokenDecimals > 18 {
		return errors.New("environment variable TOKEN_DECIMALS must be between 0 and 18")
	}

	WalletPrivateKey = strings.TrimPrefix(getEnvOrDefault("WALLET_PRIVATE_KEY", ""), "0x")
	WalletKeystore = getEnvOrDefault("WALLET_KEYSTORE", "")
	WalletPassphrase = getEnvOrDefault("WALLET_PASSPHRASE", "")
	if WalletKeystore != "" && WalletPrivateKey != "" {
		return errors.New("set either WALLET_PRIVATE_KEY or WALLET_KEYSTORE, not both")
	}

	AutoConnect, err = getEnvAsBoolOrDefault("AUTO_CONNECT", false)
	if err != nil {
		return err
	}

	DefaultGasLimit, err = getEnvAsUint64OrDefault("DEFAULT_GAS_LIMIT", 300000)
	if err != nil {
		return err
	}
	GasAdjustment, err = getEnvAsFloat64OrDefault("GAS_ADJUSTMENT", 1.2)
	if err != nil {
		return err
	}
	if GasAdjustment < 1 || GasAdjustment > 10 {
		return errors.New("environment variable GAS_ADJUSTMENT must be between 1 and 10")
	}

	PoolReadConcurrency, err = getEnvAsIntOrDefault("POOL_READ_CONCURRENCY", 4)
	if err != nil {
		return err
	}
	if PoolReadConcurrency < 1 {
		PoolReadConcurrency = 1
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	if err := loadNetworkConfig(); err != nil {
		return err
	}

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	log.Debug().
		Bool("StakingConfigured", StakingConfigured).
		Str("StakingAddress", StakingAddress.Hex()).
		Str("TokenAddress", TokenAddress.Hex()).
		Uint64("ChainID", ChainID).
		Msg("Configuration loaded successfully.")

	return nil
}

// HasWallet reports whether a signing key source is configured.
func HasWallet() bool {
	return WalletPrivateKey != "" || WalletKeystore != ""
}

// parseOptionalAddress treats unset, empty and placeholder values as "not configured".
func parseOptionalAddress(key string) (common.Address, bool, error) {
	raw := strings.TrimSpace(getEnvOrDefault(key, ""))
	if raw == "" || strings.EqualFold(raw, stakingPlaceholder) {
		return common.Address{}, false, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, false, errors.New("environment variable " + key + " must be a hex address, got: " + raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return addr, true, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, err := getEnv(key); err == nil && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64OrDefault retrieves an environment variable as a uint64.
func getEnvAsUint64OrDefault(key string, fallback uint64) (uint64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 0, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsIntOrDefault retrieves an environment variable as an int.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64OrDefault retrieves an environment variable as a float64.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBoolOrDefault retrieves an environment variable as a bool.
func getEnvAsBoolOrDefault(key string, fallback bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// splitList splits a comma separated environment value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
