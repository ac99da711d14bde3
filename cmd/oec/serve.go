package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// CmdServe runs the API server, the data proxy handlers and the dashboard stream.
func CmdServe() *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the staking API and the dashboard stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			warnWithoutBlockSubscriptions()
			a, err := newApp(ctx, appOptions{wallet: connect || config.HasWallet(), database: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.controller.Mount(ctx); err != nil {
				return err
			}
			if connect {
				if _, err := a.controller.Connect(ctx); err != nil {
					log.Error().Err(err).Msg("Wallet connection failed, serving read-only")
				}
			}

			deps := web.Dependencies{
				Pools:     a.pools,
				Positions: a.positions,
				Chain:     a.adapter,
				Dashboard: a.controller,
				Faucet:    a.faucet,
				Tokens:    datafetcher.NewCoinGeckoClientFromConfig(),
				Metrics:   a.metrics,
				Gatherer:  a.registry,
			}
			if a.store != nil {
				deps.Store = a.store
			}
			if config.LiveCoinWatchAPIKey != "" {
				deps.Coins = datafetcher.NewLiveCoinWatchClientFromConfig()
			}
			if config.CryptoCompareAPIKey != "" {
				deps.History = datafetcher.NewCryptoCompareClientFromConfig()
			}

			server := web.NewWebServer(config.WebPort, deps)
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting OEC staking API")
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					log.Error().Err(err).Msg("Web server failed")
				}
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Web server shutdown failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&connect, "connect", false, "connect the configured wallet on start")
	return cmd
}
