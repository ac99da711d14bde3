package main

import (
	"os"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/config"
	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the oec command tree. Configuration is loaded once before any
// subcommand runs.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oec",
		Short:         "OEC staking dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}

			logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

			if err := config.LoadConfig(); err != nil {
				log.Error().Err(err).Msg("Failed to load configuration")
				return err
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		CmdServe(),
		CmdPools(),
		CmdPositions(),
		CmdStake(),
		CmdWithdraw(),
		CmdEarlyWithdraw(),
		CmdClaim(),
		CmdExit(),
		CmdFaucet(),
		CmdWatch(),
		CmdROI(),
		CmdSyncPrices(),
	)

	return rootCmd
}
