package commands

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/yeremiapane/neighborhood-grub/database"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"golang.org/x/crypto/bcrypt"
)

var adminFlags struct {
	username string
	email    string
	password string
}

// grub admin:create --username ops --email ops@example.com --password ...
var adminCreateCmd = &cobra.Command{
	Use:   "admin:create",
	Short: "Create an administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(adminFlags.password) < 8 {
			return errors.New("password must be at least 8 characters")
		}
		cfg, db, err := boot()
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(adminFlags.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		market := services.NewMarket(db, services.Options{Policy: &cfg.Policy})
		account, err := market.Accounts.Create(cmd.Context(), services.NewAccount{
			Username:     adminFlags.username,
			Email:        adminFlags.email,
			PasswordHash: string(hashed),
			Roles:        models.RoleAdmin,
		})
		if err != nil {
			return err
		}
		utils.InfoLogger.WithField("account_id", account.ID).Info("admin account created")
		return nil
	},
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminFlags.username, "username", "", "admin username")
	adminCreateCmd.Flags().StringVar(&adminFlags.email, "email", "", "admin email")
	adminCreateCmd.Flags().StringVar(&adminFlags.password, "password", "", "admin password")
	_ = adminCreateCmd.MarkFlagRequired("username")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(adminCreateCmd)
}
