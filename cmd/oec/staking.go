package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	sdkmath "cosmossdk.io/math"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// CmdPools prints the pool set.
func CmdPools() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List the staking pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			set := a.pools.LoadPools(cmd.Context())
			printPools(cmd.OutOrStdout(), set)
			return nil
		},
	}
}

// CmdPositions prints the positions of an address, or of the wallet account when none is given.
func CmdPositions() *cobra.Command {
	return &cobra.Command{
		Use:   "positions [address]",
		Short: "Show staked and earned amounts per pool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{wallet: len(args) == 0})
			if err != nil {
				return err
			}
			defer a.Close()

			var address common.Address
			if len(args) == 1 {
				if !common.IsHexAddress(args[0]) {
					return fmt.Errorf("invalid address: %s", args[0])
				}
				address = common.HexToAddress(args[0])
			} else {
				if err := a.connect(ctx); err != nil {
					return err
				}
				address = a.controller.Snapshot().Connection.Address
			}

			set := a.pools.LoadPools(ctx)
			if !set.Live {
				fmt.Fprintf(cmd.OutOrStdout(), "Staking contract unavailable: %s\n", set.Hint)
				return nil
			}
			positions, err := a.positions.LoadPositions(ctx, address, set.Pools)
			if err != nil {
				return err
			}
			balance, err := a.positions.LoadWalletBalance(ctx, address)
			if err != nil {
				return err
			}
			printPositions(cmd.OutOrStdout(), address, set.Pools, positions, balance)
			return nil
		},
	}
}

// CmdStake stakes an amount of whole tokens into a pool, approving first when needed.
func CmdStake() *cobra.Command {
	return amountActionCmd("stake", "Stake tokens into a pool", func(a *app, cmd *cobra.Command, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
		return a.controller.Stake(cmd.Context(), pool, amount)
	})
}

// CmdWithdraw withdraws an unlocked amount from a pool.
func CmdWithdraw() *cobra.Command {
	return amountActionCmd("withdraw", "Withdraw tokens from a pool after its lock expired", func(a *app, cmd *cobra.Command, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
		return a.controller.Withdraw(cmd.Context(), pool, amount)
	})
}

// CmdEarlyWithdraw withdraws before the lock expires, paying the contract's penalty.
func CmdEarlyWithdraw() *cobra.Command {
	return amountActionCmd("early-withdraw", "Withdraw tokens before the lock expires", func(a *app, cmd *cobra.Command, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error) {
		return a.controller.EarlyWithdraw(cmd.Context(), pool, amount)
	})
}

// CmdClaim claims the accrued rewards of a pool.
func CmdClaim() *cobra.Command {
	return poolActionCmd("claim", "Claim rewards from a pool", func(a *app, cmd *cobra.Command, pool types.PoolID) (*types.ActionResult, error) {
		return a.controller.Claim(cmd.Context(), pool)
	})
}

// CmdExit withdraws everything from a pool and claims its rewards.
func CmdExit() *cobra.Command {
	return poolActionCmd("exit", "Withdraw everything and claim rewards from a pool", func(a *app, cmd *cobra.Command, pool types.PoolID) (*types.ActionResult, error) {
		return a.controller.Exit(cmd.Context(), pool)
	})
}

type amountAction func(a *app, cmd *cobra.Command, pool types.PoolID, amount sdkmath.Int) (*types.ActionResult, error)

type poolAction func(a *app, cmd *cobra.Command, pool types.PoolID) (*types.ActionResult, error)

func amountActionCmd(use, short string, run amountAction) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   use + " [pool-id] [amount]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := parsePoolID(args[0])
			if err != nil {
				return err
			}
			amount, err := utils.ParseUnits(args[1], config.TokenDecimals)
			if err != nil {
				return fmt.Errorf("invalid amount: %w", err)
			}

			a, err := newApp(cmd.Context(), appOptions{wallet: true, interactive: !yes, database: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}

			result, err := run(a, cmd, pool, amount)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve wallet prompts without asking")
	return cmd
}

func poolActionCmd(use, short string, run poolAction) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   use + " [pool-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := parsePoolID(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), appOptions{wallet: true, interactive: !yes, database: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}

			result, err := run(a, cmd, pool)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve wallet prompts without asking")
	return cmd
}

func parsePoolID(raw string) (types.PoolID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pool id: %v", err)
	}
	return types.PoolID(id), nil
}

func formatAmount(amount sdkmath.Int) string {
	s, err := utils.FormatUnits(amount, config.TokenDecimals)
	if err != nil {
		return amount.String()
	}
	return s + " " + config.TokenSymbol
}

func printPools(out io.Writer, set types.PoolSet) {
	if !set.Live {
		fmt.Fprintf(out, "Preview pools (%s)\n", set.Hint)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPOOL\tAPR\tLOCK\tTOTAL STAKED")
	for _, p := range set.Pools {
		fmt.Fprintf(tw, "%d\t%s\t%.2f%%\t%dd\t%s\n", p.ID, p.Label(), p.APRPercent(), p.LockDays(), formatAmount(p.TotalStaked))
	}
	tw.Flush()
	if set.RewardReserve != nil {
		fmt.Fprintf(out, "Reward reserve: %s\n", formatAmount(*set.RewardReserve))
	}
}

func printPositions(out io.Writer, address common.Address, pools []types.PoolRecord, positions types.Positions, balance sdkmath.Int) {
	fmt.Fprintf(out, "Account %s\nWallet balance: %s\n", address.Hex(), formatAmount(balance))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPOOL\tSTAKED\tEARNED")
	for _, p := range pools {
		pos, ok := positions[p.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Label(), formatAmount(pos.Staked), formatAmount(pos.Earned))
	}
	tw.Flush()
}

func printResult(out io.Writer, result *types.ActionResult) {
	if result.ApprovalTx != nil {
		fmt.Fprintf(out, "Approval tx: %s\n", result.ApprovalTx.Hex())
	}
	fmt.Fprintf(out, "%s confirmed in block %d\nTx: %s\nGas used: %d\n", result.Kind, result.BlockNumber, result.TxHash.Hex(), result.GasUsed)
}
