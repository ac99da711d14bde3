package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/chain"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/metrics"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/reconciler"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/staking"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/state"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const metricsNamespace = "oec"

// appOptions selects the parts of the application a command needs.
type appOptions struct {
	// wallet loads the configured signing keys. Commands that act on-chain require it.
	wallet bool
	// interactive asks on the terminal before each wallet prompt instead of approving it.
	interactive bool
	// database opens the cache database when one is configured.
	database bool
}

// app holds the wired components shared by the commands.
type app struct {
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	fallback   chain.Client
	wallet     *wallet.SigningWallet
	adapter    *chain.Adapter
	pools      *datafetcher.PoolReader
	positions  *datafetcher.PositionReader
	faucet     *datafetcher.FaucetReader
	store      *state.Store
	controller *reconciler.Controller
}

// newApp dials the chain and builds the readers and the controller.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewMetrics(a.registry, metricsNamespace)

	fallback, err := wallet.DialEthclient(ctx, config.ChainRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.ChainRPCURL, err)
	}
	a.fallback = fallback
	log.Info().Str("rpc", config.ChainRPCURL).Uint64("chainId", config.ChainID).Msg("Read provider connected")

	adapterCfg := chain.Config{Fallback: fallback, Metrics: a.metrics}
	if opts.wallet {
		if !config.HasWallet() {
			a.Close()
			return nil, chain.ErrNoWallet
		}
		var prompter wallet.Prompter = wallet.AutoApprove{}
		if opts.interactive {
			prompter = &wallet.TerminalPrompter{In: os.Stdin, Out: os.Stderr}
		}
		w, err := wallet.NewFromConfig(ctx, prompter, nil)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize wallet: %w", err)
		}
		a.wallet = w
		adapterCfg.Wallet = w
	}

	a.adapter, err = chain.NewAdapter(adapterCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pools = datafetcher.NewPoolReaderFromConfig(a.adapter, a.metrics)
	a.positions = datafetcher.NewPositionReaderFromConfig(a.adapter, a.metrics)
	a.faucet = datafetcher.NewFaucetReaderFromConfig(a.adapter, a.metrics)

	if opts.database && config.DatabaseEnabled {
		store, err := state.Open(ctx, state.DBConfigFromEnv())
		if err != nil {
			log.Warn().Err(err).Msg("Cache database unavailable, continuing without it")
		} else if err := store.EnsureSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure cache schema, continuing without it")
			store.Close()
		} else {
			a.store = store
		}
	}

	var receipts staking.ReceiptRecorder
	if a.store != nil {
		receipts = a.store
	}
	a.controller, err = reconciler.NewController(reconciler.Config{
		Chain:       a.adapter,
		Pools:       a.pools,
		Positions:   a.positions,
		Network:     config.ExpectedNetwork(),
		AutoConnect: config.AutoConnect,
		Staking:     config.StakingAddress,
		Token:       config.TokenAddress,
		Faucet:      config.FaucetAddress,
		Receipts:    receipts,
		Metrics:     a.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// connect mounts the controller and connects the wallet, failing unless the session
// ends up connected on the expected network.
func (a *app) connect(ctx context.Context) error {
	if err := a.controller.Mount(ctx); err != nil {
		return err
	}
	if a.controller.Snapshot().Connection.Ready(config.ChainID) {
		return nil
	}
	account, err := a.controller.Connect(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("account", account.Hex()).Msg("Wallet connected")
	return nil
}

// Close releases everything newApp acquired.
func (a *app) Close() {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.adapter != nil {
		a.adapter.Close()
	}
	if a.wallet != nil {
		a.wallet.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if closer, ok := a.fallback.(interface{ Close() }); ok {
		closer.Close()
	}
}

// warnWithoutBlockSubscriptions flags at startup that positions will only refresh on
// actions and manual refreshes.
func warnWithoutBlockSubscriptions() {
	if config.BlockSubscriptionsAvailable() {
		return
	}
	log.Warn().
		Str("rpc", config.ChainRPCURL).
		Msg("No websocket endpoint configured (CHAIN_WS_URL); positions will not refresh on new blocks")
}
