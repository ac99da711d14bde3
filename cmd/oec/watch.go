package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/analyzer"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/reconciler"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CmdWatch keeps a dashboard session open and logs every snapshot until interrupted.
func CmdWatch() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow pools and positions as new blocks arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			warnWithoutBlockSubscriptions()
			a, err := newApp(ctx, appOptions{wallet: config.HasWallet()})
			if err != nil {
				return err
			}
			defer a.Close()

			cancel := a.controller.Subscribe(func(snap reconciler.Snapshot) {
				event := log.Info().
					Str("status", snap.Connection.Status.String()).
					Bool("live", snap.Live).
					Int("pools", len(snap.Pools)).
					Uint64("block", snap.LastBlock).
					Bool("stale", snap.PositionsStale)
				if snap.Connection.Address != (common.Address{}) {
					event = event.Str("account", snap.Connection.Address.Hex())
				}
				for id, staked := range snap.MyBalances {
					event = event.Str("staked_"+id, staked)
				}
				for id, earned := range snap.MyEarned {
					event = event.Str("earned_"+id, earned)
				}
				if snap.Pending != nil {
					event = event.Str("pending", snap.Pending.Label)
				}
				if snap.LastError != "" {
					event = event.Str("error", snap.LastError)
				}
				event.Msg("Dashboard snapshot")
			})
			defer cancel()

			if config.HasWallet() {
				if err := a.connect(ctx); err != nil {
					log.Warn().Err(err).Msg("Wallet not connected, following pools only")
				}
			} else if err := a.controller.Mount(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			return nil
		},
	}
}

// CmdROI projects rewards for an amount of whole tokens.
func CmdROI() *cobra.Command {
	var (
		poolFlag string
		days     uint64
		aprBps   uint64
	)

	cmd := &cobra.Command{
		Use:   "roi [amount]",
		Short: "Project staking rewards for an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := sdkmath.LegacyNewDecFromStr(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount: %v", err)
			}
			out := cmd.OutOrStdout()

			if aprBps > 0 {
				result, err := analyzer.CalculateROI(amount, aprBps, days)
				if err != nil {
					return err
				}
				printROI(cmd, result)
				return nil
			}

			a, err := newApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			set := a.pools.LoadPools(cmd.Context())
			if !set.Live {
				fmt.Fprintf(out, "Using preview pools (%s)\n", set.Hint)
			}

			if poolFlag == "" {
				estimates, err := analyzer.PoolEstimates(amount, set.Pools)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPOOL\tAPR\tDAILY\tMONTHLY\tYEARLY\tFULL LOCK")
				for _, e := range estimates {
					fmt.Fprintf(tw, "%d\t%s\t%.2f%%\t%s\t%s\t%s\t%s\n", e.PoolID, e.Label, e.APRPercent,
						e.DailyRewards.String(), e.MonthlyRewards.String(), e.YearlyRewards.String(), e.LockRewards.String())
				}
				return tw.Flush()
			}

			id, err := strconv.ParseUint(poolFlag, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pool id: %v", err)
			}
			for _, p := range set.Pools {
				if uint64(p.ID) != id {
					continue
				}
				result, err := analyzer.CalculateROI(amount, p.AprBps, days)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", p.Label())
				printROI(cmd, result)
				return nil
			}
			return fmt.Errorf("pool %d not found", id)
		},
	}

	cmd.Flags().StringVar(&poolFlag, "pool", "", "project a single pool by id")
	cmd.Flags().Uint64Var(&days, "days", analyzer.DAYS_PER_YEAR, "projection horizon in days")
	cmd.Flags().Uint64Var(&aprBps, "apr-bps", 0, "use this APR in basis points instead of reading pools")
	return cmd
}

func printROI(cmd *cobra.Command, result types.ROIResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Principal:       %s %s\n", result.Principal.String(), config.TokenSymbol)
	fmt.Fprintf(out, "APR:             %.2f%%\n", float64(result.AprBps)/100)
	fmt.Fprintf(out, "Days:            %d\n", result.Days)
	fmt.Fprintf(out, "Total rewards:   %s\n", result.TotalRewards.String())
	fmt.Fprintf(out, "Total value:     %s\n", result.TotalValue.String())
	fmt.Fprintf(out, "ROI:             %s%%\n", result.ROIPercent.String())
	fmt.Fprintf(out, "Daily rewards:   %s\n", result.DailyRewards.String())
	fmt.Fprintf(out, "Monthly rewards: %s\n", result.MonthlyRewards.String())
}
