package datafetcher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

var coinGeckoLogger = logger.GetForComponent("coingecko")

// CoinGeckoClient looks tokens up by contract address on one asset platform.
type CoinGeckoClient struct {
	BaseURL    string
	APIKey     string
	Platform   string
	HTTPClient *http.Client
}

func NewCoinGeckoClient(baseURL, apiKey, platform string) *CoinGeckoClient {
	return &CoinGeckoClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Platform:   platform,
		HTTPClient: newHTTPClient(),
	}
}

// NewCoinGeckoClientFromConfig uses the loaded environment configuration.
func NewCoinGeckoClientFromConfig() *CoinGeckoClient {
	return NewCoinGeckoClient(config.CoinGeckoAPI, config.CoinGeckoAPIKey, config.CoinGeckoPlatform)
}

type coinGeckoContractResponse struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	MarketData *struct {
		CurrentPrice             map[string]float64 `json:"current_price"`
		PriceChangePercentage24h *float64           `json:"price_change_percentage_24h"`
		MarketCap                map[string]float64 `json:"market_cap"`
		TotalVolume              map[string]float64 `json:"total_volume"`
		TotalSupply              *float64           `json:"total_supply"`
		CirculatingSupply        *float64           `json:"circulating_supply"`
	} `json:"market_data"`
}

// TokenByContract returns market data for contract. ErrUpstreamNotFound when CoinGecko
// does not list the token or has no market data for it.
func (c *CoinGeckoClient) TokenByContract(ctx context.Context, contract string) (types.ContractTokenData, error) {
	if !common.IsHexAddress(contract) {
		return types.ContractTokenData{}, errors.New("contract must be a hex address")
	}
	address := strings.ToLower(common.HexToAddress(contract).Hex())

	headers := map[string]string{}
	if c.APIKey != "" {
		headers["x-cg-demo-api-key"] = c.APIKey
	}

	var resp coinGeckoContractResponse
	err := doJSON(ctx, c.HTTPClient, coinGeckoLogger, apiRequest{
		api:     "coingecko",
		method:  http.MethodGet,
		url:     c.BaseURL + "/coins/" + url.PathEscape(c.Platform) + "/contract/" + address,
		headers: headers,
	}, &resp)
	if err != nil {
		if errors.Is(err, ErrUpstreamNotFound) {
			coinGeckoLogger.Info().Str("contract", address).Msg("Token not listed on CoinGecko")
		}
		return types.ContractTokenData{}, err
	}
	if resp.MarketData == nil {
		return types.ContractTokenData{}, ErrUpstreamNotFound
	}

	md := resp.MarketData
	return types.ContractTokenData{
		ID:                    resp.ID,
		Symbol:                strings.ToUpper(resp.Symbol),
		Name:                  resp.Name,
		ContractAddress:       address,
		Price:                 md.CurrentPrice["usd"],
		PriceChangePercent24h: value(md.PriceChangePercentage24h),
		MarketCap:             md.MarketCap["usd"],
		Volume24h:             md.TotalVolume["usd"],
		TotalSupply:           value(md.TotalSupply),
		CirculatingSupply:     value(md.CirculatingSupply),
	}, nil
}
