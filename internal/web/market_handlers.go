package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/analyzer"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/state"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

const syncCoinLimit = 100

// handleLiveCoinToken returns the cached summary of one token code.
func (ws *WebServer) handleLiveCoinToken(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, ErrCacheDisabled.Error())
		return
	}
	code := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))

	coin, err := ws.deps.Store.GetCoin(r.Context(), code)
	if errors.Is(err, state.ErrNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Token "+code+" not found")
		return
	}
	if err != nil {
		webLogger.Error().Err(err).Str("code", code).Msg("Failed to get cached coin")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve token data")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, coin.Summary(config.ContractForCode(code)))
}

// handleLiveCoinList returns cached coins ordered by market cap.
func (ws *WebServer) handleLiveCoinList(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, ErrCacheDisabled.Error())
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "limit must be a whole number")
			return
		}
		limit = parsed
	}

	coins, err := ws.deps.Store.ListCoins(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to list cached coins")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve coins")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, coins)
}

// handleLiveCoinSync pulls the top coins from LiveCoinWatch into the cache table.
func (ws *WebServer) handleLiveCoinSync(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, ErrCacheDisabled.Error())
		return
	}
	if ws.deps.Coins == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "LiveCoinWatch is not configured")
		return
	}

	coins, err := ws.deps.Coins.TopCoins(r.Context(), syncCoinLimit)
	if err != nil {
		ws.writeUpstreamError(w, "LiveCoinWatch", err)
		return
	}
	stored, err := ws.deps.Store.UpsertCoins(r.Context(), coins)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to store coins")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to store coins")
		return
	}

	webLogger.Info().Int("fetched", len(coins)).Int("stored", stored).Msg("LiveCoinWatch sync complete")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"fetched": len(coins),
		"stored":  stored,
	})
}

// handleLiveCoinStatus reports the size and age of the coin cache.
func (ws *WebServer) handleLiveCoinStatus(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, ErrCacheDisabled.Error())
		return
	}
	status, err := ws.deps.Store.CoinStatus(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get coin cache status")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cache status")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"count":        status.Count,
		"last_updated": status.LastUpdated,
		"configured":   ws.deps.Coins != nil,
	})
}

// handleTokenHistory returns the cached series of a token code.
func (ws *WebServer) handleTokenHistory(w http.ResponseWriter, r *http.Request) {
	tf, err := types.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	token := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token")))
	if token == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "token is required")
		return
	}
	if ws.deps.Store == nil {
		ws.writeJSONResponse(w, http.StatusOK, []types.PricePoint{})
		return
	}

	points, err := ws.deps.Store.PriceHistory(r.Context(), token, tf)
	if err != nil {
		webLogger.Error().Err(err).Str("token", token).Str("timeframe", string(tf)).Msg("Failed to get price history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve price history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, nonNilPoints(points))
}

// handlePriceHistory returns the cached series of a contract address.
func (ws *WebServer) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	tf, err := types.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	contract := strings.TrimSpace(r.URL.Query().Get("contract"))
	if !common.IsHexAddress(contract) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "contract must be a hex address")
		return
	}
	if ws.deps.Store == nil {
		ws.writeJSONResponse(w, http.StatusOK, []types.PricePoint{})
		return
	}

	points, err := ws.deps.Store.PriceHistoryByContract(r.Context(), contract, tf)
	if err != nil {
		webLogger.Error().Err(err).Str("contract", contract).Str("timeframe", string(tf)).Msg("Failed to get price history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve price history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, nonNilPoints(points))
}

// handlePriceHistorySync pulls one token's series from CryptoCompare into the cache table.
func (ws *WebServer) handlePriceHistorySync(w http.ResponseWriter, r *http.Request) {
	tf, err := types.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	token := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token")))
	if token == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "token is required")
		return
	}
	if ws.deps.Store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, ErrCacheDisabled.Error())
		return
	}
	if ws.deps.History == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "CryptoCompare is not configured")
		return
	}

	points, err := ws.deps.History.PriceHistory(r.Context(), token, tf)
	if err != nil {
		ws.writeUpstreamError(w, "CryptoCompare", err)
		return
	}
	stored, err := ws.deps.Store.SavePriceHistory(r.Context(), token, tf, points)
	if err != nil {
		webLogger.Error().Err(err).Str("token", token).Msg("Failed to store price history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to store price history")
		return
	}

	webLogger.Info().Str("token", token).Str("timeframe", string(tf)).Int("stored", stored).Msg("Price history sync complete")
	response := map[string]interface{}{
		"success":   true,
		"token":     token,
		"timeframe": tf,
		"stored":    stored,
	}
	if vol, err := analyzer.CalculateVolatility(points); err == nil {
		response["volatility"] = vol
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleTokenData proxies a CoinGecko contract lookup.
func (ws *WebServer) handleTokenData(w http.ResponseWriter, r *http.Request) {
	contract := strings.TrimSpace(r.URL.Query().Get("contract"))
	if !common.IsHexAddress(contract) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "contract must be a hex address")
		return
	}
	if ws.deps.Tokens == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "CoinGecko is not configured")
		return
	}

	data, err := ws.deps.Tokens.TokenByContract(r.Context(), contract)
	if err != nil {
		ws.writeUpstreamError(w, "CoinGecko", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, data)
}

// writeUpstreamError maps data provider failures onto response codes.
func (ws *WebServer) writeUpstreamError(w http.ResponseWriter, api string, err error) {
	switch {
	case errors.Is(err, datafetcher.ErrAPIConfiguration):
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, api+" API key is not configured")
	case errors.Is(err, datafetcher.ErrUpstreamNotFound):
		ws.writeErrorResponse(w, http.StatusNotFound, "Token not found on "+api)
	default:
		webLogger.Error().Err(err).Str("api", api).Msg("Upstream request failed")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to fetch data from "+api)
	}
}

func nonNilPoints(points []types.PricePoint) []types.PricePoint {
	if points == nil {
		return []types.PricePoint{}
	}
	return points
}
