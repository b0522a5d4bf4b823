package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yeremiapane/neighborhood-grub/config"
	"github.com/yeremiapane/neighborhood-grub/database"
	"github.com/yeremiapane/neighborhood-grub/idempotency"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gopkg.in/yaml.v3"
)

// grub migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "AutoMigrate every marketplace table",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := boot()
		if err != nil {
			return err
		}
		return database.Migrate(db)
	},
}

// grub policy:show
var policyCmd = &cobra.Command{
	Use:   "policy:show",
	Short: "Print the effective marketplace policy as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(cfg.Policy)
	},
}

// grub idempotency:purge
var idempotencyPurgeCmd = &cobra.Command{
	Use:   "idempotency:purge",
	Short: "Delete expired idempotent responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := idempotency.Open(cfg.IdempotencyPath, idempotencyTTL)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Purge()
		if err != nil {
			return err
		}
		utils.InfoLogger.Infof("purged %d expired idempotent responses", n)
		fmt.Println(n)
		return nil
	},
}

const idempotencyTTL = 24 * time.Hour
