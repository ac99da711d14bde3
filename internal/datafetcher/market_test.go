package datafetcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	datafetcher.RetryBackoff = time.Millisecond
}

func TestLiveCoinWatchTopCoins(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/coins/list", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		fmt.Fprint(w, `[
			{"code":"BTC","name":"Bitcoin","rate":65000.5,"volume":1000,"cap":2000,"delta":{"hour":1.001,"day":1.05}},
			{"code":"","rate":1},
			{"code":"DEAD","name":"Dead","rate":null},
			{"code":"eth","rate":3000,"delta":{"day":null}}
		]`)
	}))
	defer server.Close()

	client := datafetcher.NewLiveCoinWatchClient(server.URL+"/", "secret")
	coins, err := client.TopCoins(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, "rank", body["sort"])
	assert.Equal(t, float64(100), body["limit"])
	assert.Equal(t, true, body["meta"])

	require.Len(t, coins, 2)
	assert.Equal(t, "BTC", coins[0].Code)
	assert.Equal(t, 65000.5, coins[0].Rate)
	assert.Equal(t, 1.05, coins[0].DeltaDay)
	assert.Equal(t, "ETH", coins[1].Code)
	assert.Equal(t, "eth", coins[1].Name)
	assert.Zero(t, coins[1].DeltaDay)
	assert.False(t, coins[1].LastUpdated.IsZero())
}

func TestLiveCoinWatchRequiresKey(t *testing.T) {
	client := datafetcher.NewLiveCoinWatchClient("http://127.0.0.1:1", "")
	_, err := client.TopCoins(context.Background(), 10)
	assert.ErrorIs(t, err, datafetcher.ErrAPIConfiguration)
}

func TestLiveCoinWatchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := datafetcher.NewLiveCoinWatchClient(server.URL, "wrong").TopCoins(context.Background(), 10)
	var statusErr *datafetcher.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCoinGeckoTokenByContract(t *testing.T) {
	const contract = "0x2170Ed0880ac9A755fd29B2688956BD959F933F8"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo", r.Header.Get("x-cg-demo-api-key"))
		switch r.URL.Path {
		case "/coins/binance-smart-chain/contract/0x2170ed0880ac9a755fd29b2688956bd959f933f8":
			fmt.Fprint(w, `{"id":"weth","symbol":"eth","name":"Ethereum","market_data":{
				"current_price":{"usd":3100.25},
				"price_change_percentage_24h":-2.5,
				"market_cap":{"usd":1000000},
				"total_volume":{"usd":5000},
				"total_supply":120,
				"circulating_supply":null}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := datafetcher.NewCoinGeckoClient(server.URL, "demo", "binance-smart-chain")

	data, err := client.TokenByContract(context.Background(), contract)
	require.NoError(t, err)
	assert.Equal(t, "ETH", data.Symbol)
	assert.Equal(t, 3100.25, data.Price)
	assert.Equal(t, -2.5, data.PriceChangePercent24h)
	assert.Equal(t, 120.0, data.TotalSupply)
	assert.Zero(t, data.CirculatingSupply)
	assert.Equal(t, "0x2170ed0880ac9a755fd29b2688956bd959f933f8", data.ContractAddress)

	_, err = client.TokenByContract(context.Background(), "0x0000000000000000000000000000000000000001")
	assert.ErrorIs(t, err, datafetcher.ErrUpstreamNotFound)

	_, err = client.TokenByContract(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func candles(start int64, step int64, closes ...float64) string {
	type candle struct {
		Time  int64   `json:"time"`
		Close float64 `json:"close"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Open  float64 `json:"open"`
	}
	data := make([]candle, 0, len(closes))
	for i, c := range closes {
		data = append(data, candle{Time: start + int64(i)*step, Close: c, High: c + 1, Low: c - 1, Open: c})
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"Response": "Success",
		"Data":     map[string]interface{}{"Data": data},
	})
	return string(raw)
}

func TestCryptoComparePriceHistory(t *testing.T) {
	var gotPath, gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		assert.Equal(t, "ETH", r.URL.Query().Get("fsym"))
		assert.Equal(t, "USD", r.URL.Query().Get("tsym"))
		assert.Equal(t, "Apikey k", r.Header.Get("authorization"))
		fmt.Fprint(w, candles(1_700_000_000, 3600, 10, 11, 12))
	}))
	defer server.Close()

	client := datafetcher.NewCryptoCompareClient(server.URL, "k")

	points, err := client.PriceHistory(context.Background(), " eth ", types.Timeframe7D)
	require.NoError(t, err)
	assert.Equal(t, "/histohour", gotPath)
	assert.Equal(t, "168", gotLimit)
	assert.Equal(t, []types.PricePoint{
		{Timestamp: 1_700_000_000_000, Price: 10},
		{Timestamp: 1_700_003_600_000, Price: 11},
		{Timestamp: 1_700_007_200_000, Price: 12},
	}, points)

	_, err = client.PriceHistory(context.Background(), "ETH", types.Timeframe1H)
	require.NoError(t, err)
	assert.Equal(t, "/histominute", gotPath)
	assert.Equal(t, "60", gotLimit)
}

func TestCryptoCompareRejectsBadSeries(t *testing.T) {
	cases := map[string]string{
		"api error":     `{"Response":"Error","Message":"fsym is not a valid symbol"}`,
		"no data":       `{"Response":"Success","Data":{"Data":[]}}`,
		"zero price":    candles(1_700_000_000, 3600, 10, 0),
		"out of order":  candles(1_700_000_000, -3600, 10, 11),
		"close outside": `{"Response":"Success","Data":{"Data":[{"time":1,"close":20,"high":12,"low":10,"open":11}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer server.Close()

			points, err := datafetcher.NewCryptoCompareClient(server.URL, "k").PriceHistory(context.Background(), "ETH", types.Timeframe1D)
			assert.Error(t, err)
			assert.Nil(t, points)
		})
	}
}

func TestCryptoCompareRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, candles(1_700_000_000, 86400, 5))
	}))
	defer server.Close()

	points, err := datafetcher.NewCryptoCompareClient(server.URL, "k").PriceHistory(context.Background(), "BTC", types.Timeframe30D)
	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCryptoCompareRequiresKey(t *testing.T) {
	_, err := datafetcher.NewCryptoCompareClient("http://127.0.0.1:1", "").PriceHistory(context.Background(), "BTC", types.Timeframe1D)
	assert.ErrorIs(t, err, datafetcher.ErrAPIConfiguration)
}
