package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/db"
	"github.com/suPer8Hu/remote-control/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		gdb, err := db.Connect(cfg.DBDSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		logger.Info("migration complete")
		return nil
	},
}

var (
	userTelegramID int64
	userName       string
)

var addUserCmd = &cobra.Command{
	Use:   "add-user",
	Short: "Allow a Telegram account to use the bot",
	Long: `Creates the principal for a Telegram user id, or replaces the username and
password of an existing one. The password is read from REMOTECTL_PASSWORD.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if userTelegramID == 0 {
			return errors.New("--telegram-id is required")
		}
		password := os.Getenv("REMOTECTL_PASSWORD")
		if len(password) < 8 {
			return errors.New("REMOTECTL_PASSWORD must hold at least 8 characters")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		_, repo, err := openStore()
		if err != nil {
			return err
		}
		p, err := repo.UpsertPrincipal(cmd.Context(), &models.Principal{
			TelegramID:   userTelegramID,
			Username:     strings.TrimSpace(userName),
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "principal %s ready for telegram id %d\n", p.ID, p.TelegramID)
		return nil
	},
}

var (
	integrationName     string
	integrationURL      string
	integrationDisabled bool
)

var addIntegrationCmd = &cobra.Command{
	Use:   "add-integration",
	Short: "Register a webhook that /webhook <name> can trigger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name := strings.ToLower(strings.TrimSpace(integrationName))
		if name == "" || integrationURL == "" {
			return errors.New("--name and --url are required")
		}
		_, repo, err := openStore()
		if err != nil {
			return err
		}
		it, err := repo.UpsertIntegration(cmd.Context(), &models.Integration{
			Name:       name,
			WebhookURL: integrationURL,
			Enabled:    !integrationDisabled,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "integration %s -> %s (enabled=%t)\n", it.Name, it.WebhookURL, it.Enabled)
		return nil
	},
}

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Print a bearer token for the /admin HTTP routes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		now := time.Now()
		tok, err := auth.SignJWT(tokenSubject, auth.AudienceAdmin, uuid.NewString(), cfg.JWTSecret, now, now.Add(tokenTTL))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	addUserCmd.Flags().Int64Var(&userTelegramID, "telegram-id", 0, "Telegram user id")
	addUserCmd.Flags().StringVar(&userName, "username", "", "display name")

	addIntegrationCmd.Flags().StringVar(&integrationName, "name", "", "integration name")
	addIntegrationCmd.Flags().StringVar(&integrationURL, "url", "", "absolute webhook url")
	addIntegrationCmd.Flags().BoolVar(&integrationDisabled, "disabled", false, "register without enabling")

	adminTokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	adminTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
