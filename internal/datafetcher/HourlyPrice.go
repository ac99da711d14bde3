/*
This file fetches historical price series from the CryptoCompare API.

Each dashboard timeframe maps to one CryptoCompare history endpoint and sample count.
Every candle is validated before it is stored; one bad candle rejects the series so a
partial chart is never cached.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
)

var priceLogger = logger.GetForComponent("price_retriever")

var ErrInvalidPriceData = errors.New("invalid price data received")

// historySpec is the CryptoCompare endpoint and sample count serving a timeframe.
type historySpec struct {
	endpoint  string
	limit     int
	aggregate int
}

var historySpecs = map[types.Timeframe]historySpec{
	types.Timeframe1H:  {endpoint: "histominute", limit: 60, aggregate: 1},
	types.Timeframe1D:  {endpoint: "histohour", limit: 24, aggregate: 1},
	types.Timeframe7D:  {endpoint: "histohour", limit: 168, aggregate: 1},
	types.Timeframe30D: {endpoint: "histohour", limit: 720, aggregate: 1},
}

// CryptoCompareClient fetches OHLCV history in USD.
type CryptoCompareClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewCryptoCompareClient(baseURL, apiKey string) *CryptoCompareClient {
	return &CryptoCompareClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: newHTTPClient(),
	}
}

// NewCryptoCompareClientFromConfig uses the loaded environment configuration.
func NewCryptoCompareClientFromConfig() *CryptoCompareClient {
	return NewCryptoCompareClient(config.CryptoCompareAPI, config.CryptoCompareAPIKey)
}

type cryptoCompareCandle struct {
	Time       int64   `json:"time"`
	Close      float64 `json:"close"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Open       float64 `json:"open"`
	VolumeFrom float64 `json:"volumefrom"`
	VolumeTo   float64 `json:"volumeto"`
}

type CryptoCompareResponse struct {
	Response   string `json:"Response"`
	Message    string `json:"Message"`
	HasWarning bool   `json:"HasWarning"`
	Data       struct {
		TimeFrom int64                 `json:"TimeFrom"`
		TimeTo   int64                 `json:"TimeTo"`
		Data     []cryptoCompareCandle `json:"Data"`
	} `json:"Data"`
}

// validatePriceDataPoint performs strict validation on one candle.
func validatePriceDataPoint(data cryptoCompareCandle, coin string) error {
	if data.Time <= 0 {
		return fmt.Errorf("invalid timestamp for %s: %d", coin, data.Time)
	}

	prices := []struct {
		value float64
		name  string
	}{
		{data.Close, "close"},
		{data.High, "high"},
		{data.Low, "low"},
		{data.Open, "open"},
	}
	for _, price := range prices {
		if math.IsNaN(price.value) || math.IsInf(price.value, 0) {
			return fmt.Errorf("%s price for %s is not finite: %f", price.name, coin, price.value)
		}
		if price.value <= 0 {
			return fmt.Errorf("%s price for %s must be positive: %f", price.name, coin, price.value)
		}
	}

	if data.High < data.Low {
		return fmt.Errorf("high price (%f) cannot be less than low price (%f) for %s", data.High, data.Low, coin)
	}
	if data.Close < data.Low || data.Close > data.High {
		return fmt.Errorf("close price (%f) must be between low (%f) and high (%f) for %s", data.Close, data.Low, data.High, coin)
	}

	if data.VolumeFrom < 0 || data.VolumeTo < 0 || math.IsNaN(data.VolumeFrom) || math.IsNaN(data.VolumeTo) {
		return fmt.Errorf("invalid volume for %s", coin)
	}
	return nil
}

// PriceHistory fetches the series for coin over tf, oldest first, timestamps in
// unix milliseconds.
func (c *CryptoCompareClient) PriceHistory(ctx context.Context, coin string, tf types.Timeframe) ([]types.PricePoint, error) {
	coin = strings.TrimSpace(strings.ToUpper(coin))
	if coin == "" {
		return nil, errors.New("coin symbol is required")
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("%w: CRYPTOCOMPARE_API_KEY is not set", ErrAPIConfiguration)
	}
	spec, ok := historySpecs[tf]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}

	query := url.Values{}
	query.Set("fsym", coin)
	query.Set("tsym", "USD")
	query.Set("limit", strconv.Itoa(spec.limit))
	query.Set("aggregate", strconv.Itoa(spec.aggregate))

	priceLogger.Debug().
		Str("coin", coin).
		Str("timeframe", string(tf)).
		Str("endpoint", spec.endpoint).
		Msg("Fetching price history")

	var resp CryptoCompareResponse
	err := doJSON(ctx, c.HTTPClient, priceLogger, apiRequest{
		api:     "cryptocompare",
		method:  http.MethodGet,
		url:     c.BaseURL + "/" + spec.endpoint + "?" + query.Encode(),
		headers: map[string]string{"authorization": "Apikey " + c.APIKey},
	}, &resp)
	if err != nil {
		priceLogger.Error().Err(err).Str("coin", coin).Msg("Price history request failed")
		return nil, fmt.Errorf("failed to fetch price data for %s: %w", coin, err)
	}

	return processAPIResponse(resp, coin)
}

// processAPIResponse validates a decoded history response.
func processAPIResponse(resp CryptoCompareResponse, coin string) ([]types.PricePoint, error) {
	if resp.Response != "Success" {
		priceLogger.Error().
			Str("coin", coin).
			Str("apiResponse", resp.Response).
			Str("apiMessage", resp.Message).
			Msg("API returned error response")
		return nil, fmt.Errorf("API error for %s: %s - %s", coin, resp.Response, resp.Message)
	}
	if len(resp.Data.Data) == 0 {
		return nil, fmt.Errorf("%w: no data available for %s: %s", ErrInvalidPriceData, coin, resp.Message)
	}
	if resp.HasWarning {
		priceLogger.Warn().
			Str("coin", coin).
			Int("dataPointCount", len(resp.Data.Data)).
			Str("message", resp.Message).
			Msg("API returned warning but has data - continuing")
	}

	points := make([]types.PricePoint, 0, len(resp.Data.Data))
	for i, candle := range resp.Data.Data {
		if err := validatePriceDataPoint(candle, coin); err != nil {
			priceLogger.Error().
				Err(err).
				Str("coin", coin).
				Int("dataPointIndex", i).
				Int64("timestamp", candle.Time).
				Msg("Invalid data point")
			return nil, fmt.Errorf("%w: point %d for %s: %v", ErrInvalidPriceData, i, coin, err)
		}
		points = append(points, types.PricePoint{Timestamp: candle.Time * 1000, Price: candle.Close})
	}

	if err := validateTimeSequence(points, coin); err != nil {
		return nil, err
	}

	priceLogger.Info().
		Str("coin", coin).
		Int("dataPoints", len(points)).
		Msg("Successfully retrieved and validated price data")
	return points, nil
}

// validateTimeSequence requires strictly increasing timestamps.
func validateTimeSequence(points []types.PricePoint, coin string) error {
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp <= points[i-1].Timestamp {
			return fmt.Errorf("%w: data points not in chronological order for %s at index %d", ErrInvalidPriceData, coin, i)
		}
	}
	return nil
}
