package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chapel/internal/authz/models"
	authzstore "chapel/internal/authz/store"
	"chapel/internal/platform/config"
	"chapel/internal/platform/database"
	"chapel/internal/platform/logger"
	"chapel/pkg/domain"
	"chapel/pkg/email"
)

func newGrantAdminCmd() *cobra.Command {
	var (
		name string
		role string
	)
	cmd := &cobra.Command{
		Use:   "grant-admin <user-id> <email>",
		Short: "Insert or update an admin_users row",
		Long: `grant-admin writes the admin_users row the strict admin gate reads.
Use it to bootstrap the first administrator before the promote endpoint is configured.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			if !parsed.IsAdmin() {
				return fmt.Errorf("role %q does not grant administrator access", role)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

			ctx := cmd.Context()
			db, err := database.Open(ctx, cfg.DatabaseURL, 1)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}

			userID, address := args[0], args[1]
			if name == "" {
				name = email.DisplayName(address)
			}
			admin := models.AdminUser{ID: userID, Email: address, Name: name, Role: parsed}
			if err := authzstore.NewPostgres(db).UpsertAdmin(ctx, admin); err != nil {
				return err
			}
			log.Info("administrator granted", "user_id", userID, "role", parsed.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to one derived from the email)")
	cmd.Flags().StringVar(&role, "role", domain.RoleAdmin.String(), "admin or super_admin")
	return cmd
}
