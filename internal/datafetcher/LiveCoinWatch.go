/*
This file fetches the market overview of the top coins from the LiveCoinWatch API.
The results are cached in Postgres by the sync handler and served from there.
*/

package datafetcher

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
)

var liveCoinLogger = logger.GetForComponent("livecoinwatch")

// LiveCoinWatchClient calls POST /coins/list.
type LiveCoinWatchClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewLiveCoinWatchClient(baseURL, apiKey string) *LiveCoinWatchClient {
	return &LiveCoinWatchClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: newHTTPClient(),
	}
}

// NewLiveCoinWatchClientFromConfig uses the loaded environment configuration.
func NewLiveCoinWatchClientFromConfig() *LiveCoinWatchClient {
	return NewLiveCoinWatchClient(config.LiveCoinWatchAPI, config.LiveCoinWatchAPIKey)
}

type liveCoinWatchListRequest struct {
	Currency string `json:"currency"`
	Sort     string `json:"sort"`
	Order    string `json:"order"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
	Meta     bool   `json:"meta"`
}

// liveCoinWatchCoin uses pointers where the API sends null for unknown values.
type liveCoinWatchCoin struct {
	Code              string   `json:"code"`
	Name              string   `json:"name"`
	Rate              *float64 `json:"rate"`
	Volume            *float64 `json:"volume"`
	Cap               *float64 `json:"cap"`
	TotalSupply       *float64 `json:"totalSupply"`
	CirculatingSupply *float64 `json:"circulatingSupply"`
	MaxSupply         *float64 `json:"maxSupply"`
	Delta             struct {
		Hour    *float64 `json:"hour"`
		Day     *float64 `json:"day"`
		Week    *float64 `json:"week"`
		Month   *float64 `json:"month"`
		Quarter *float64 `json:"quarter"`
		Year    *float64 `json:"year"`
	} `json:"delta"`
}

// TopCoins returns up to limit coins ordered by rank. Coins without a code or a
// positive finite rate are skipped.
func (c *LiveCoinWatchClient) TopCoins(ctx context.Context, limit int) ([]types.LiveCoin, error) {
	if c.APIKey == "" {
		return nil, ErrAPIConfiguration
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var raw []liveCoinWatchCoin
	err := doJSON(ctx, c.HTTPClient, liveCoinLogger, apiRequest{
		api:     "livecoinwatch",
		method:  http.MethodPost,
		url:     c.BaseURL + "/coins/list",
		headers: map[string]string{"x-api-key": c.APIKey},
		body: liveCoinWatchListRequest{
			Currency: "USD",
			Sort:     "rank",
			Order:    "ascending",
			Limit:    limit,
			Meta:     true,
		},
	}, &raw)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	coins := make([]types.LiveCoin, 0, len(raw))
	for _, coin := range raw {
		rate := value(coin.Rate)
		if strings.TrimSpace(coin.Code) == "" || rate <= 0 {
			liveCoinLogger.Warn().Str("code", coin.Code).Msg("Skipping coin with missing essential data")
			continue
		}
		name := coin.Name
		if name == "" {
			name = coin.Code
		}
		coins = append(coins, types.LiveCoin{
			Code:              strings.ToUpper(coin.Code),
			Name:              name,
			Rate:              rate,
			Volume:            value(coin.Volume),
			Cap:               value(coin.Cap),
			DeltaHour:         value(coin.Delta.Hour),
			DeltaDay:          value(coin.Delta.Day),
			DeltaWeek:         value(coin.Delta.Week),
			DeltaMonth:        value(coin.Delta.Month),
			DeltaQuarter:      value(coin.Delta.Quarter),
			DeltaYear:         value(coin.Delta.Year),
			TotalSupply:       value(coin.TotalSupply),
			CirculatingSupply: value(coin.CirculatingSupply),
			MaxSupply:         value(coin.MaxSupply),
			LastUpdated:       now,
		})
	}

	liveCoinLogger.Info().Int("received", len(raw)).Int("accepted", len(coins)).Msg("Fetched top coins")
	return coins, nil
}

// value maps null, NaN and infinities to 0.
func value(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}
