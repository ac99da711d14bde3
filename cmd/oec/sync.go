package main

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/analyzer"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/datafetcher"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/state"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// syncConcurrency bounds the upstream history requests in flight.
const syncConcurrency = 4

// CmdSyncPrices fills the cache tables from LiveCoinWatch and CryptoCompare.
func CmdSyncPrices() *cobra.Command {
	var (
		tokens     []string
		timeframes []string
		coins      bool
	)

	cmd := &cobra.Command{
		Use:   "sync-prices",
		Short: "Refresh the coin and price history cache tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !config.DatabaseEnabled {
				return errors.New("cache database is not configured (set DB_USER and DB_NAME)")
			}

			parsed := make([]types.Timeframe, 0, len(timeframes))
			for _, raw := range timeframes {
				tf, err := types.ParseTimeframe(raw)
				if err != nil {
					return err
				}
				parsed = append(parsed, tf)
			}

			store, err := state.Open(ctx, state.DBConfigFromEnv())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}

			if coins {
				top, err := datafetcher.NewLiveCoinWatchClientFromConfig().TopCoins(ctx, 100)
				if err != nil {
					return fmt.Errorf("LiveCoinWatch sync failed: %w", err)
				}
				stored, err := store.UpsertCoins(ctx, top)
				if err != nil {
					return err
				}
				log.Info().Int("stored", stored).Msg("Coin cache refreshed")
			}

			if len(tokens) == 0 {
				return nil
			}
			history := datafetcher.NewCryptoCompareClientFromConfig()
			var total atomic.Int64

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(syncConcurrency)
			for _, token := range tokens {
				token := strings.ToUpper(strings.TrimSpace(token))
				for _, tf := range parsed {
					g.Go(func() error {
						points, err := history.PriceHistory(gctx, token, tf)
						if err != nil {
							return fmt.Errorf("%s %s: %w", token, tf, err)
						}
						stored, err := store.SavePriceHistory(gctx, token, tf, points)
						if err != nil {
							return fmt.Errorf("%s %s: %w", token, tf, err)
						}
						total.Add(int64(stored))
						event := log.Info().Str("token", token).Str("timeframe", string(tf)).Int("points", stored)
						if vol, err := analyzer.CalculateVolatility(points); err == nil {
							event = event.Float64("volatility", vol)
						}
						event.Msg("Price history refreshed")
						return nil
					})
				}
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d price points\n", total.Load())
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tokens, "tokens", []string{"ETH", "BTC", "BNB"}, "token codes to fetch history for")
	cmd.Flags().StringSliceVar(&timeframes, "timeframes", []string{"1H", "1D", "7D", "30D"}, "history windows to fetch")
	cmd.Flags().BoolVar(&coins, "coins", true, "refresh the LiveCoinWatch coin table")
	return cmd
}
