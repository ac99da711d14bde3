/*

Market data types served by the data proxy handlers and cached in Postgres.

*/

package types

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe selects the window of a price history request.
type Timeframe string

const (
	Timeframe1H  Timeframe = "1H"
	Timeframe1D  Timeframe = "1D"
	Timeframe7D  Timeframe = "7D"
	Timeframe30D Timeframe = "30D"
)

// ParseTimeframe accepts 1H, 1D, 7D and 30D case-insensitively. Empty means 1D.
func ParseTimeframe(raw string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToUpper(strings.TrimSpace(raw))); tf {
	case "":
		return Timeframe1D, nil
	case Timeframe1H, Timeframe1D, Timeframe7D, Timeframe30D:
		return tf, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q (expected 1H, 1D, 7D or 30D)", raw)
	}
}

// Window is the span of history covered by the timeframe.
func (tf Timeframe) Window() time.Duration {
	switch tf {
	case Timeframe1H:
		return time.Hour
	case Timeframe7D:
		return 7 * 24 * time.Hour
	case Timeframe30D:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// PricePoint is one sample of a price history. Timestamp is unix milliseconds.
type PricePoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// LiveCoin is one row of the LiveCoinWatch cache table. Delta fields are ratios
// (1.05 = +5%), as the upstream API reports them.
type LiveCoin struct {
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Rate              float64   `json:"rate"`
	Volume            float64   `json:"volume"`
	Cap               float64   `json:"cap"`
	DeltaHour         float64   `json:"delta_hour"`
	DeltaDay          float64   `json:"delta_day"`
	DeltaWeek         float64   `json:"delta_week"`
	DeltaMonth        float64   `json:"delta_month"`
	DeltaQuarter      float64   `json:"delta_quarter"`
	DeltaYear         float64   `json:"delta_year"`
	TotalSupply       float64   `json:"total_supply"`
	CirculatingSupply float64   `json:"circulating_supply"`
	MaxSupply         float64   `json:"max_supply"`
	LastUpdated       time.Time `json:"last_updated"`
}

// TokenSummary is the token-summary response shape.
type TokenSummary struct {
	Code                  string    `json:"code"`
	Name                  string    `json:"name"`
	Symbol                string    `json:"symbol"`
	ContractAddress       string    `json:"contractAddress,omitempty"`
	Price                 float64   `json:"price"`
	PriceChange24h        float64   `json:"priceChange24h"`
	PriceChangePercent24h float64   `json:"priceChangePercent24h"`
	MarketCap             float64   `json:"marketCap"`
	Volume24h             float64   `json:"volume24h"`
	TotalSupply           float64   `json:"totalSupply"`
	CirculatingSupply     float64   `json:"circulatingSupply"`
	MaxSupply             float64   `json:"maxSupply"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// Summary converts a cached coin into the token-summary shape.
func (c LiveCoin) Summary(contract string) TokenSummary {
	summary := TokenSummary{
		Code:              c.Code,
		Name:              c.Name,
		Symbol:            c.Code,
		ContractAddress:   contract,
		Price:             c.Rate,
		MarketCap:         c.Cap,
		Volume24h:         c.Volume,
		TotalSupply:       c.TotalSupply,
		CirculatingSupply: c.CirculatingSupply,
		MaxSupply:         c.MaxSupply,
		LastUpdated:       c.LastUpdated,
	}
	if c.DeltaDay != 0 {
		summary.PriceChange24h = c.Rate * (c.DeltaDay - 1)
		summary.PriceChangePercent24h = (c.DeltaDay - 1) * 100
	}
	return summary
}

// ContractTokenData is what the CoinGecko contract lookup returns.
type ContractTokenData struct {
	ID                    string  `json:"id"`
	Symbol                string  `json:"symbol"`
	Name                  string  `json:"name"`
	ContractAddress       string  `json:"contractAddress"`
	Price                 float64 `json:"price"`
	PriceChangePercent24h float64 `json:"priceChangePercent24h"`
	MarketCap             float64 `json:"marketCap"`
	Volume24h             float64 `json:"volume24h"`
	TotalSupply           float64 `json:"totalSupply"`
	CirculatingSupply     float64 `json:"circulatingSupply"`
}

// NetworkStatus is the live chain probe returned by the network-status handler.
type NetworkStatus struct {
	ChainID       uint64    `json:"chainId"`
	BlockNumber   uint64    `json:"blockNumber"`
	GasPriceGwei  float64   `json:"gasPrice"`
	LastBlockTime time.Time `json:"lastBlockTime"`
	IsHealthy     bool      `json:"isHealthy"`
}
