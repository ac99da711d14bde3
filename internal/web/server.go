package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/reconciler"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/state"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var webLogger = logger.GetForComponent("web_server")

// ErrCacheDisabled is reported by handlers that need the cache database when none is configured.
var ErrCacheDisabled = errors.New("cache database is not configured")

// PoolSource is satisfied by *datafetcher.PoolReader.
type PoolSource interface {
	LoadPools(ctx context.Context) types.PoolSet
}

// PositionSource is satisfied by *datafetcher.PositionReader.
type PositionSource interface {
	LoadPositions(ctx context.Context, address common.Address, pools []types.PoolRecord) (types.Positions, error)
	LoadWalletBalance(ctx context.Context, address common.Address) (sdkmath.Int, error)
}

// ChainProbe exposes the read provider for the network-status handler. *chain.Adapter satisfies it.
type ChainProbe interface {
	ReadClient() (chain.Client, error)
}

// DashboardSource is satisfied by *reconciler.Controller.
type DashboardSource interface {
	Snapshot() reconciler.Snapshot
	Subscribe(fn func(reconciler.Snapshot)) (cancel func())
}

// MarketStore is the cache database. *state.Store satisfies it.
type MarketStore interface {
	Ping(ctx context.Context) error
	GetCoin(ctx context.Context, code string) (types.LiveCoin, error)
	ListCoins(ctx context.Context, limit int) ([]types.LiveCoin, error)
	UpsertCoins(ctx context.Context, coins []types.LiveCoin) (int, error)
	CoinStatus(ctx context.Context) (state.CoinCacheStatus, error)
	PriceHistory(ctx context.Context, token string, tf types.Timeframe) ([]types.PricePoint, error)
	PriceHistoryByContract(ctx context.Context, contract string, tf types.Timeframe) ([]types.PricePoint, error)
	SavePriceHistory(ctx context.Context, token string, tf types.Timeframe, points []types.PricePoint) (int, error)
	RecentActionReceipts(ctx context.Context, account common.Address, limit int) ([]types.ActionReceipt, error)
}

// CoinLister is satisfied by *datafetcher.LiveCoinWatchClient.
type CoinLister interface {
	TopCoins(ctx context.Context, limit int) ([]types.LiveCoin, error)
}

// ContractLookup is satisfied by *datafetcher.CoinGeckoClient.
type ContractLookup interface {
	TokenByContract(ctx context.Context, contract string) (types.ContractTokenData, error)
}

// HistoryFetcher is satisfied by *datafetcher.CryptoCompareClient.
type HistoryFetcher interface {
	PriceHistory(ctx context.Context, coin string, tf types.Timeframe) ([]types.PricePoint, error)
}

// FaucetSource is satisfied by *datafetcher.FaucetReader.
type FaucetSource interface {
	LoadFaucet(ctx context.Context) (types.FaucetInfo, error)
	LoadFaucetStatus(ctx context.Context, account common.Address) (types.FaucetStatus, error)
}

// Dependencies are the components the handlers read from. Only Pools is required;
// handlers whose dependency is nil answer 503.
type Dependencies struct {
	Pools     PoolSource
	Positions PositionSource
	Chain     ChainProbe
	Dashboard DashboardSource
	Store     MarketStore
	Coins     CoinLister
	Tokens    ContractLookup
	History   HistoryFetcher
	Faucet    FaucetSource

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// WebServer serves the staking API, the data proxy handlers and the dashboard stream.
type WebServer struct {
	router *mux.Router
	port   string
	deps   Dependencies
	hub    *Hub
	server *http.Server

	hubOnce sync.Once
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, deps Dependencies) *WebServer {
	if port == "" {
		port = "8080"
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewUnregistered()
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		deps:   deps,
	}
	if deps.Dashboard != nil {
		server.hub = NewHub(deps.Dashboard)
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	if ws.deps.Gatherer != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(ws.deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	ws.router.HandleFunc("/ws/dashboard", ws.handleDashboardStream).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/oec/config", ws.handleConfig).Methods("GET")

	// Staking views
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/positions/{address}", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/roi", ws.handleROI).Methods("GET")
	api.HandleFunc("/dashboard", ws.handleGetDashboard).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/network-status", ws.handleNetworkStatus).Methods("GET")
	api.HandleFunc("/faucet", ws.handleGetFaucet).Methods("GET")
	api.HandleFunc("/faucet/{address}", ws.handleGetFaucetStatus).Methods("GET")

	// Data proxy
	api.HandleFunc("/live-coin-watch/token/{code}", ws.handleLiveCoinToken).Methods("GET")
	api.HandleFunc("/live-coin-watch/coins", ws.handleLiveCoinList).Methods("GET")
	api.HandleFunc("/live-coin-watch/sync", ws.handleLiveCoinSync).Methods("POST")
	api.HandleFunc("/live-coin-watch/status", ws.handleLiveCoinStatus).Methods("GET")
	api.HandleFunc("/token-history", ws.handleTokenHistory).Methods("GET")
	api.HandleFunc("/price-history", ws.handlePriceHistory).Methods("GET")
	api.HandleFunc("/price-history/sync", ws.handlePriceHistorySync).Methods("POST")
	api.HandleFunc("/token-data", ws.handleTokenData).Methods("GET")

	ws.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	ws.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Not found")
	})

	ws.router.Use(ws.metricsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler is the router wrapped in CORS handling. mux runs route middleware only on
// matched routes, so CORS sits outside it to cover 404, 405 and preflight responses.
func (ws *WebServer) Handler() http.Handler {
	return ws.corsMiddleware(ws.router)
}

// Start serves until Shutdown is called.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ws.startHub()

	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (ws *WebServer) startHub() {
	if ws.hub == nil {
		return
	}
	ws.hubOnce.Do(func() { go ws.hub.Run() })
}

// Shutdown stops accepting requests and closes every dashboard stream.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.hub != nil {
		ws.hub.Stop()
	}
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware counts requests per route template.
func (ws *WebServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ws.deps.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(wrapper.statusCode)).Inc()
		ws.deps.Metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the websocket upgrader take over the connection through the wrapper.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
