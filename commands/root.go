package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yeremiapane/neighborhood-grub/config"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "grub",
	Short: "Neighborhood Grub marketplace backend",
	Long:  "Neighborhood Grub matches home chefs with diners through bids, offers, and a shared ledger.",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(idempotencyPurgeCmd)
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// boot loads config, sets up logging, and opens the database.
func boot() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	utils.InitLogger(cfg.LogFormat)
	utils.SetJWTSecret(cfg.JWTSecret)

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
