package main

import (
	"fmt"
	"io"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// CmdFaucet shows the test-token faucet for an address, or for the wallet account
// when none is given.
func CmdFaucet() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet [address]",
		Short: "Show the test-token faucet and when the next claim is allowed",
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

			status, err := a.faucet.LoadFaucetStatus(ctx, address)
			if err != nil {
				return err
			}
			printFaucet(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.AddCommand(cmdFaucetClaim())
	return cmd
}

func cmdFaucetClaim() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim test tokens from the faucet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{wallet: true, interactive: !yes, database: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}

			result, err := a.controller.ClaimFaucet(cmd.Context())
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

func printFaucet(out io.Writer, status types.FaucetStatus) {
	fmt.Fprintf(out, "Faucet %s\nAmount per claim: %s\nCooldown: %s\n",
		status.Address.Hex(), formatAmount(status.AmountPerClaim), time.Duration(status.CooldownSeconds)*time.Second)
	if status.CanClaim {
		fmt.Fprintf(out, "%s can claim now\n", status.Account.Hex())
		return
	}
	fmt.Fprintf(out, "%s can claim again in %s\n", status.Account.Hex(), time.Duration(status.SecondsUntilNextClaim)*time.Second)
}
