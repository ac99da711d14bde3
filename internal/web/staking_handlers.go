package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/analyzer"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

const serviceName = "OEC Staking API"

// handleHealth reports liveness and the state of the cache database.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := "disabled"
	if ws.deps.Store != nil {
		database = "connected"
		if err := ws.deps.Store.Ping(r.Context()); err != nil {
			webLogger.Warn().Err(err).Msg("Health check: database unreachable")
			database = "unavailable"
		}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   serviceName,
		"database":  database,
		"timestamp": time.Now().UTC(),
	})
}

// handleConfig returns the token, staking and network configuration.
func (ws *WebServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	network := config.ExpectedNetwork()
	response := map[string]interface{}{
		"tokenAddress":      config.TokenAddress.Hex(),
		"tokenSymbol":       config.TokenSymbol,
		"tokenDecimals":     config.TokenDecimals,
		"stakingConfigured": config.StakingConfigured,
		"network":           network,
	}
	if config.StakingConfigured {
		response["stakingAddress"] = config.StakingAddress.Hex()
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPools returns the pool set. A preview set is still a 200.
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	set := ws.deps.Pools.LoadPools(r.Context())
	ws.writeJSONResponse(w, http.StatusOK, poolsResponse(set))
}

func poolsResponse(set types.PoolSet) map[string]interface{} {
	pools := make([]map[string]interface{}, 0, len(set.Pools))
	for _, p := range set.Pools {
		pools = append(pools, map[string]interface{}{
			"id":                  p.ID,
			"label":               p.Label(),
			"apr_bps":             p.AprBps,
			"apr_percent":         p.APRPercent(),
			"lock_period_seconds": p.LockPeriod,
			"lock_days":           p.LockDays(),
			"total_staked":        p.TotalStaked,
		})
	}
	response := map[string]interface{}{
		"pools": pools,
		"live":  set.Live,
		"count": len(pools),
	}
	if set.Hint != "" {
		response["hint"] = set.Hint
	}
	if set.RewardReserve != nil {
		response["reward_reserve"] = set.RewardReserve
	}
	return response
}

// handleGetPositions returns the staked and earned amounts of one address.
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Positions == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Position reader is not configured")
		return
	}
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	address := common.HexToAddress(raw)

	set := ws.deps.Pools.LoadPools(r.Context())
	positions := types.Positions{}
	if set.Live {
		loaded, err := ws.deps.Positions.LoadPositions(r.Context(), address, set.Pools)
		if err != nil {
			webLogger.Error().Err(err).Str("address", address.Hex()).Msg("Failed to load positions")
			ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to read positions from chain")
			return
		}
		positions = loaded
	}

	response := map[string]interface{}{
		"address":    address.Hex(),
		"live":       set.Live,
		"balances":   positions.Balances(),
		"earned":     positions.EarnedByPool(),
		"pool_count": len(set.Pools),
	}
	if balance, err := ws.deps.Positions.LoadWalletBalance(r.Context(), address); err == nil {
		response["wallet_balance"] = balance
	} else {
		webLogger.Warn().Err(err).Str("address", address.Hex()).Msg("Failed to load wallet balance")
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleROI projects rewards. With pool it returns one projection for that pool's APR,
// without it the per-pool estimates.
func (ws *WebServer) handleROI(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(query.Get("amount")))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	set := ws.deps.Pools.LoadPools(r.Context())

	poolParam := query.Get("pool")
	if poolParam == "" {
		estimates, err := analyzer.PoolEstimates(amount, set.Pools)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"amount":    amount,
			"live":      set.Live,
			"estimates": estimates,
		})
		return
	}

	poolID, err := strconv.ParseUint(poolParam, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "pool must be a pool id")
		return
	}
	var pool *types.PoolRecord
	for i := range set.Pools {
		if uint64(set.Pools[i].ID) == poolID {
			pool = &set.Pools[i]
			break
		}
	}
	if pool == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}

	days := uint64(analyzer.DAYS_PER_YEAR)
	if raw := query.Get("days"); raw != "" {
		days, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "days must be a whole number")
			return
		}
	}

	result, err := analyzer.CalculateROI(amount, pool.AprBps, days)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, analyzer.ErrInvalidROIInput) {
			status = http.StatusBadRequest
		}
		ws.writeErrorResponse(w, status, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":   pool.ID,
		"label":  pool.Label(),
		"live":   set.Live,
		"result": result,
	})
}

// handleGetDashboard returns the current dashboard snapshot of the served session.
func (ws *WebServer) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Dashboard == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Dashboard session is not running")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, ws.deps.Dashboard.Snapshot())
}

// handleDashboardStream upgrades to a websocket that carries every published snapshot.
func (ws *WebServer) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	if ws.hub == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Dashboard session is not running")
		return
	}
	ws.startHub()
	if err := ws.hub.serve(w, r); err != nil {
		// The upgrader has already answered the request.
		webLogger.Warn().Err(err).Msg("Dashboard stream upgrade failed")
	}
}

// handleGetReceipts returns recent action receipts, optionally filtered by address.
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, ErrCacheDisabled.Error())
		return
	}

	var account common.Address
	if raw := r.URL.Query().Get("address"); raw != "" {
		if !common.IsHexAddress(raw) {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
			return
		}
		account = common.HexToAddress(raw)
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	receipts, err := ws.deps.Store.RecentActionReceipts(r.Context(), account, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get action receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve action receipts")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

// handleNetworkStatus probes the read provider for head, gas price and block time.
func (ws *WebServer) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	status := types.NetworkStatus{ChainID: config.ChainID}
	if ws.deps.Chain == nil {
		ws.writeJSONResponse(w, http.StatusServiceUnavailable, status)
		return
	}
	client, err := ws.deps.Chain.ReadClient()
	if err != nil {
		ws.writeJSONResponse(w, http.StatusServiceUnavailable, status)
		return
	}

	ctx := r.Context()
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		webLogger.Warn().Err(err).Msg("Network status: head unavailable")
		ws.writeJSONResponse(w, http.StatusServiceUnavailable, status)
		return
	}
	if head.Number != nil {
		status.BlockNumber = head.Number.Uint64()
	}
	status.LastBlockTime = time.Unix(int64(head.Time), 0).UTC()

	if gasPrice, err := client.SuggestGasPrice(ctx); err == nil {
		status.GasPriceGwei = utils.WeiToGwei(gasPrice)
	} else {
		webLogger.Warn().Err(err).Msg("Network status: gas price unavailable")
	}
	if id, err := client.ChainID(ctx); err == nil {
		status.ChainID = id.Uint64()
	}
	status.IsHealthy = true

	ws.writeJSONResponse(w, http.StatusOK, status)
}

// handleGetFaucet returns the faucet's claim amount and cooldown.
func (ws *WebServer) handleGetFaucet(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Faucet == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, datafetcher.ErrFaucetNotConfigured.Error())
		return
	}
	info, err := ws.deps.Faucet.LoadFaucet(r.Context())
	if err != nil {
		ws.writeFaucetError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, info)
}

// handleGetFaucetStatus adds how long address must wait before claiming again.
func (ws *WebServer) handleGetFaucetStatus(w http.ResponseWriter, r *http.Request) {
	if ws.deps.Faucet == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, datafetcher.ErrFaucetNotConfigured.Error())
		return
	}
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	status, err := ws.deps.Faucet.LoadFaucetStatus(r.Context(), common.HexToAddress(raw))
	if err != nil {
		ws.writeFaucetError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, status)
}

func (ws *WebServer) writeFaucetError(w http.ResponseWriter, err error) {
	if errors.Is(err, datafetcher.ErrFaucetNotConfigured) {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	webLogger.Error().Err(err).Msg("Failed to read faucet")
	ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to read faucet from chain")
}
