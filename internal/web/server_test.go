package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain/chaintest"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/reconciler"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/state"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type staticPools struct {
	set types.PoolSet
}

func (p staticPools) LoadPools(ctx context.Context) types.PoolSet {
	return p.set
}

func twoPools() staticPools {
	return staticPools{set: types.PoolSet{
		Live: true,
		Pools: []types.PoolRecord{
			{ID: 0, AprBps: 1000, LockPeriod: 0},
			{ID: 1, AprBps: 2500, LockPeriod: 30 * 24 * 60 * 60},
		},
	}}
}

// memoryStore is an in-memory MarketStore.
type memoryStore struct {
	mu       sync.Mutex
	pingErr  error
	coins    map[string]types.LiveCoin
	history  map[string][]types.PricePoint
	receipts []types.ActionReceipt
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		coins:   make(map[string]types.LiveCoin),
		history: make(map[string][]types.PricePoint),
	}
}

func historyKey(token string, tf types.Timeframe) string {
	return strings.ToUpper(token) + "/" + string(tf)
}

func (s *memoryStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *memoryStore) GetCoin(ctx context.Context, code string) (types.LiveCoin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coin, ok := s.coins[strings.ToUpper(code)]
	if !ok {
		return types.LiveCoin{}, state.ErrNotFound
	}
	return coin, nil
}

func (s *memoryStore) ListCoins(ctx context.Context, limit int) ([]types.LiveCoin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LiveCoin, 0, len(s.coins))
	for _, coin := range s.coins {
		out = append(out, coin)
	}
	return out, nil
}

func (s *memoryStore) UpsertCoins(ctx context.Context, coins []types.LiveCoin) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coin := range coins {
		s.coins[strings.ToUpper(coin.Code)] = coin
	}
	return len(coins), nil
}

func (s *memoryStore) CoinStatus(ctx context.Context) (state.CoinCacheStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.CoinCacheStatus{Count: len(s.coins)}, nil
}

func (s *memoryStore) PriceHistory(ctx context.Context, token string, tf types.Timeframe) ([]types.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[historyKey(token, tf)], nil
}

func (s *memoryStore) PriceHistoryByContract(ctx context.Context, contract string, tf types.Timeframe) ([]types.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[historyKey(contract, tf)], nil
}

func (s *memoryStore) SavePriceHistory(ctx context.Context, token string, tf types.Timeframe, points []types.PricePoint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[historyKey(token, tf)] = points
	return len(points), nil
}

func (s *memoryStore) RecentActionReceipts(ctx context.Context, account common.Address, limit int) ([]types.ActionReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.ActionReceipt{}
	for _, r := range s.receipts {
		if account == (common.Address{}) || strings.EqualFold(r.Account, account.Hex()) {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubCoins struct {
	coins []types.LiveCoin
	err   error
}

func (s stubCoins) TopCoins(ctx context.Context, limit int) ([]types.LiveCoin, error) {
	return s.coins, s.err
}

type stubTokens struct {
	err error
}

func (s stubTokens) TokenByContract(ctx context.Context, contract string) (types.ContractTokenData, error) {
	if s.err != nil {
		return types.ContractTokenData{}, s.err
	}
	return types.ContractTokenData{ID: "oeconomia", Symbol: "oec", ContractAddress: strings.ToLower(contract), Price: 0.42}, nil
}

type stubHistory struct {
	points []types.PricePoint
}

func (s stubHistory) PriceHistory(ctx context.Context, coin string, tf types.Timeframe) ([]types.PricePoint, error) {
	return s.points, nil
}

// fakeDashboard records its subscribers so tests can publish snapshots.
type fakeDashboard struct {
	mu   sync.Mutex
	snap reconciler.Snapshot
	subs []func(reconciler.Snapshot)
}

func (d *fakeDashboard) Snapshot() reconciler.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

func (d *fakeDashboard) Subscribe(fn func(reconciler.Snapshot)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
	return func() {}
}

func (d *fakeDashboard) subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func (d *fakeDashboard) publish(snap reconciler.Snapshot) {
	d.mu.Lock()
	d.snap = snap
	subs := append([]func(reconciler.Snapshot){}, d.subs...)
	d.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func serve(t *testing.T, ws *web.WebServer, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		store    *memoryStore
		expected string
	}{
		{"no database", nil, "disabled"},
		{"database up", newMemoryStore(), "connected"},
		{"database down", &memoryStore{pingErr: errors.New("connection refused")}, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := web.Dependencies{Pools: twoPools()}
			if tt.store != nil {
				deps.Store = tt.store
			}
			ws := web.NewWebServer("0", deps)

			rec := serve(t, ws, http.MethodGet, "/api/health")
			require.Equal(t, http.StatusOK, rec.Code)

			var body map[string]interface{}
			decode(t, rec, &body)
			assert.Equal(t, "ok", body["status"])
			assert.Equal(t, "OEC Staking API", body["service"])
			assert.Equal(t, tt.expected, body["database"])
		})
	}
}

func TestCORSAndMethodHandling(t *testing.T) {
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools()})

	rec := serve(t, ws, http.MethodOptions, "/api/pools")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(t, ws, http.MethodPost, "/api/pools")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, true, body["error"])

	rec = serve(t, ws, http.MethodGet, "/api/live-coin-watch/sync")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(t, ws, http.MethodGet, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetPools(t *testing.T) {
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools()})

	rec := serve(t, ws, http.MethodGet, "/api/pools")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Live  bool `json:"live"`
		Count int  `json:"count"`
		Pools []struct {
			ID       uint64  `json:"id"`
			Label    string  `json:"label"`
			APR      float64 `json:"apr_percent"`
			LockDays uint64  `json:"lock_days"`
		} `json:"pools"`
	}
	decode(t, rec, &body)
	assert.True(t, body.Live)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "Flexible Staking", body.Pools[0].Label)
	assert.Equal(t, "30-Day Lock", body.Pools[1].Label)
	assert.Equal(t, 25.0, body.Pools[1].APR)
	assert.Equal(t, uint64(30), body.Pools[1].LockDays)
}

func newChainServer(t *testing.T) (*web.WebServer, *chaintest.FakeChain) {
	t.Helper()
	backend := chaintest.NewFakeChain(97)
	backend.AddPool(1000, 0)
	backend.SetStake(0, alice, 100)
	backend.SetEarned(0, alice, 5)
	backend.SetTokenBalance(alice, 1000)

	m := metrics.NewUnregistered()
	adapter, err := chain.NewAdapter(chain.Config{Fallback: backend, Metrics: m})
	require.NoError(t, err)
	t.Cleanup(adapter.Close)

	pools := datafetcher.NewPoolReader(adapter, datafetcher.PoolReaderConfig{
		Staking:           backend.Staking,
		StakingConfigured: true,
		Token:             backend.Token,
		Metrics:           m,
	})
	positions := datafetcher.NewPositionReader(adapter, backend.Staking, backend.Token, m)

	ws := web.NewWebServer("0", web.Dependencies{
		Pools:     pools,
		Positions: positions,
		Chain:     adapter,
		Faucet:    datafetcher.NewFaucetReader(adapter, backend.Faucet, m),
		Metrics:   m,
	})
	return ws, backend
}

func TestGetPositions(t *testing.T) {
	ws, _ := newChainServer(t)

	rec := serve(t, ws, http.MethodGet, "/api/positions/"+alice.Hex())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Live          bool              `json:"live"`
		Balances      map[string]string `json:"balances"`
		Earned        map[string]string `json:"earned"`
		WalletBalance string            `json:"wallet_balance"`
	}
	decode(t, rec, &body)
	assert.True(t, body.Live)
	assert.Equal(t, map[string]string{"0": "100"}, body.Balances)
	assert.Equal(t, map[string]string{"0": "5"}, body.Earned)
	assert.Equal(t, "1000", body.WalletBalance)
}

func TestGetPositionsRejectsBadAddress(t *testing.T) {
	ws, backend := newChainServer(t)
	backend.ResetCalls()

	rec := serve(t, ws, http.MethodGet, "/api/positions/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, backend.TotalCalls())
}

func TestGetPositionsReadFailureIsNotZero(t *testing.T) {
	ws, backend := newChainServer(t)
	backend.Fail("staking.balanceOf", errors.New("node unavailable"))

	rec := serve(t, ws, http.MethodGet, "/api/positions/"+alice.Hex())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "balances")
}

func TestFaucet(t *testing.T) {
	ws, backend := newChainServer(t)
	backend.SetFaucet(250, 3_600)

	rec := serve(t, ws, http.MethodGet, "/api/faucet")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info struct {
		Address  string `json:"address"`
		Amount   string `json:"amount_per_claim"`
		Cooldown uint64 `json:"cooldown_seconds"`
	}
	decode(t, rec, &info)
	assert.Equal(t, backend.Faucet.Hex(), info.Address)
	assert.Equal(t, "250", info.Amount)
	assert.Equal(t, uint64(3_600), info.Cooldown)

	rec = serve(t, ws, http.MethodGet, "/api/faucet/"+alice.Hex())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status struct {
		Account  string `json:"account"`
		Left     uint64 `json:"seconds_until_next_claim"`
		CanClaim bool   `json:"can_claim"`
	}
	decode(t, rec, &status)
	assert.Equal(t, alice.Hex(), status.Account)
	assert.Zero(t, status.Left)
	assert.True(t, status.CanClaim)
}

func TestFaucetErrors(t *testing.T) {
	ws, backend := newChainServer(t)
	backend.ResetCalls()

	rec := serve(t, ws, http.MethodGet, "/api/faucet/0x1234")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, backend.TotalCalls())

	backend.Fail("faucet.amountPerClaim", errors.New("node unavailable"))
	rec = serve(t, ws, http.MethodGet, "/api/faucet/"+alice.Hex())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "can_claim")

	bare := web.NewWebServer("0", web.Dependencies{Pools: twoPools()})
	rec = serve(t, bare, http.MethodGet, "/api/faucet")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNetworkStatus(t *testing.T) {
	ws, _ := newChainServer(t)

	rec := serve(t, ws, http.MethodGet, "/api/network-status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status types.NetworkStatus
	decode(t, rec, &status)
	assert.True(t, status.IsHealthy)
	assert.Equal(t, uint64(97), status.ChainID)
	assert.Equal(t, uint64(100), status.BlockNumber)
	assert.InDelta(t, 2.0, status.GasPriceGwei, 1e-9)
	assert.Equal(t, int64(1_700_000_000), status.LastBlockTime.Unix())
}

func TestROI(t *testing.T) {
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools()})

	t.Run("single pool", func(t *testing.T) {
		rec := serve(t, ws, http.MethodGet, "/api/roi?amount=1000&pool=1&days=365")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Label  string                 `json:"label"`
			Result map[string]interface{} `json:"result"`
		}
		decode(t, rec, &body)
		assert.Equal(t, "30-Day Lock", body.Label)
		assert.Equal(t, "250.000000000000000000", body.Result["total_rewards"])
		assert.Equal(t, "25.000000000000000000", body.Result["roi_percent"])
	})

	t.Run("all pools", func(t *testing.T) {
		rec := serve(t, ws, http.MethodGet, "/api/roi?amount=3650")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Estimates []map[string]interface{} `json:"estimates"`
		}
		decode(t, rec, &body)
		require.Len(t, body.Estimates, 2)
		assert.Equal(t, "1.000000000000000000", body.Estimates[0]["daily_rewards"])
		assert.Equal(t, "0.000000000000000000", body.Estimates[0]["lock_rewards"])
	})

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing amount", "", http.StatusBadRequest},
		{"bad amount", "amount=lots", http.StatusBadRequest},
		{"negative amount", "amount=-5&pool=0", http.StatusBadRequest},
		{"unknown pool", "amount=10&pool=9", http.StatusNotFound},
		{"too many days", "amount=10&pool=0&days=99999", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, ws, http.MethodGet, "/api/roi?"+tt.query)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestLiveCoinToken(t *testing.T) {
	store := newMemoryStore()
	store.coins["ETH"] = types.LiveCoin{Code: "ETH", Name: "Ethereum", Rate: 2000, DeltaDay: 1.05, Cap: 1e11}
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Store: store})

	rec := serve(t, ws, http.MethodGet, "/api/live-coin-watch/token/eth")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary types.TokenSummary
	decode(t, rec, &summary)
	assert.Equal(t, "ETH", summary.Code)
	assert.InDelta(t, 5.0, summary.PriceChangePercent24h, 1e-9)
	assert.Equal(t, "0x2170ed0880ac9a755fd29b2688956bd959f933f8", summary.ContractAddress)

	rec = serve(t, ws, http.MethodGet, "/api/live-coin-watch/token/NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "Token NOPE not found", body["message"])
}

func TestLiveCoinSync(t *testing.T) {
	store := newMemoryStore()
	coins := stubCoins{coins: []types.LiveCoin{{Code: "BTC", Rate: 60000}, {Code: "ETH", Rate: 2000}}}
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Store: store, Coins: coins})

	rec := serve(t, ws, http.MethodPost, "/api/live-coin-watch/sync")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, store.coins, 2)

	rec = serve(t, ws, http.MethodGet, "/api/live-coin-watch/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	decode(t, rec, &status)
	assert.Equal(t, float64(2), status["count"])

	unconfigured := web.NewWebServer("0", web.Dependencies{
		Pools: twoPools(),
		Store: store,
		Coins: stubCoins{err: datafetcher.ErrAPIConfiguration},
	})
	rec = serve(t, unconfigured, http.MethodPost, "/api/live-coin-watch/sync")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	noCache := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Coins: coins})
	rec = serve(t, noCache, http.MethodPost, "/api/live-coin-watch/sync")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPriceHistory(t *testing.T) {
	store := newMemoryStore()
	ws := web.NewWebServer("0", web.Dependencies{
		Pools:   twoPools(),
		Store:   store,
		History: stubHistory{points: []types.PricePoint{{Timestamp: 1000, Price: 1.5}, {Timestamp: 2000, Price: 1.6}}},
	})

	t.Run("empty series is an empty array", func(t *testing.T) {
		rec := serve(t, ws, http.MethodGet, "/api/token-history?token=oec")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())

		rec = serve(t, ws, http.MethodGet, "/api/price-history?contract=0x0000000000000000000000000000000000000001&timeframe=7d")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("invalid timeframe", func(t *testing.T) {
		for _, target := range []string{
			"/api/token-history?token=ETH&timeframe=2W",
			"/api/price-history?contract=0x0000000000000000000000000000000000000001&timeframe=1Y",
			"/api/price-history/sync?token=ETH&timeframe=5M",
		} {
			method := http.MethodGet
			if strings.Contains(target, "/sync") {
				method = http.MethodPost
			}
			rec := serve(t, ws, method, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
	})

	t.Run("sync then read", func(t *testing.T) {
		rec := serve(t, ws, http.MethodPost, "/api/price-history/sync?token=eth&timeframe=1H")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var synced map[string]interface{}
		decode(t, rec, &synced)
		assert.Equal(t, float64(2), synced["stored"])
		assert.Contains(t, synced, "volatility")

		rec = serve(t, ws, http.MethodGet, "/api/token-history?token=ETH&timeframe=1h")
		require.Equal(t, http.StatusOK, rec.Code)
		var points []types.PricePoint
		decode(t, rec, &points)
		require.Len(t, points, 2)
		assert.Equal(t, int64(1000), points[0].Timestamp)
	})

	t.Run("no cache answers empty", func(t *testing.T) {
		bare := web.NewWebServer("0", web.Dependencies{Pools: twoPools()})
		rec := serve(t, bare, http.MethodGet, "/api/token-history?token=ETH")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestTokenData(t *testing.T) {
	contract := "0x2170ed0880ac9a755fd29b2688956bd959f933f8"
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Tokens: stubTokens{}})

	rec := serve(t, ws, http.MethodGet, "/api/token-data?contract="+contract)
	require.Equal(t, http.StatusOK, rec.Code)
	var data types.ContractTokenData
	decode(t, rec, &data)
	assert.Equal(t, contract, data.ContractAddress)

	rec = serve(t, ws, http.MethodGet, "/api/token-data?contract=0x123")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Tokens: stubTokens{err: datafetcher.ErrUpstreamNotFound}})
	rec = serve(t, missing, http.MethodGet, "/api/token-data?contract="+contract)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceipts(t *testing.T) {
	store := newMemoryStore()
	store.receipts = []types.ActionReceipt{
		{Kind: types.ActionStake, Account: alice.Hex(), Success: true},
		{Kind: types.ActionClaim, Account: common.HexToAddress("0x0b0b").Hex(), Success: true},
	}
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Store: store})

	rec := serve(t, ws, http.MethodGet, "/api/receipts?address="+alice.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, float64(1), body["count"])

	rec = serve(t, ws, http.MethodGet, "/api/receipts?address=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bare := web.NewWebServer("0", web.Dependencies{Pools: twoPools()})
	rec = serve(t, bare, http.MethodGet, "/api/receipts")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "oec")
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Metrics: m, Gatherer: reg})

	serve(t, ws, http.MethodGet, "/api/health")
	serve(t, ws, http.MethodGet, "/api/health")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/health", "200")))

	rec := serve(t, ws, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "oec_http_requests_total")
}

func TestDashboardRequiresSession(t *testing.T) {
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools()})

	rec := serve(t, ws, http.MethodGet, "/api/dashboard")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = serve(t, ws, http.MethodGet, "/ws/dashboard")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDashboardStream(t *testing.T) {
	dashboard := &fakeDashboard{snap: reconciler.Snapshot{Live: true, LastBlock: 7}}
	ws := web.NewWebServer("0", web.Dependencies{Pools: twoPools(), Dashboard: dashboard})
	t.Cleanup(func() { _ = ws.Shutdown(context.Background()) })

	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(srv.Close)

	rec := serve(t, ws, http.MethodGet, "/api/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dashboard"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	readSnapshot := func() map[string]interface{} {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg struct {
			Type string                 `json:"type"`
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "snapshot", msg.Type)
		return msg.Data
	}

	first := readSnapshot()
	assert.Equal(t, float64(7), first["last_block"])

	require.Eventually(t, func() bool { return dashboard.subscribers() == 1 }, time.Second, 10*time.Millisecond)
	dashboard.publish(reconciler.Snapshot{Live: true, LastBlock: 42})

	second := readSnapshot()
	assert.Equal(t, float64(42), second["last_block"])
}
