/**
 * @description
 * portalctl is a command-line client for the banking backend. It drives the same
 * View and TransferWorkflow as the portal-service, so a transfer from the terminal
 * goes through the identical verify-then-submit flow as one from the browser.
 *
 * @dependencies
 * - github.com/spf13/cobra: Command tree and flag parsing.
 * - github.com/spf13/viper: Binds flags to environment variables (PORTAL_TOKEN, BANK_API_BASE_URL).
 * - github.com/joho/godotenv: Loads a local .env file when present.
 */

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/transfa/portal-service/internal/app"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

const defaultBankAPIBaseURL = "http://localhost:8080/api"

// cli carries the settings shared by every subcommand.
type cli struct {
	settings *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{settings: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Online banking from the terminal",
		Long: `portalctl talks to the banking backend directly.

Log in once and export the printed token as PORTAL_TOKEN, or pass --token
to each command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api", defaultBankAPIBaseURL, "Banking API base URL (or set BANK_API_BASE_URL)")
	flags.String("token", "", "Bearer token from 'portalctl login' (or set PORTAL_TOKEN)")
	flags.Int64("account", 0, "Account ID to act on (default: first account)")
	flags.Duration("timeout", 30*time.Second, "Banking API request timeout")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	_ = c.settings.BindPFlag("api", flags.Lookup("api"))
	_ = c.settings.BindPFlag("token", flags.Lookup("token"))
	_ = c.settings.BindPFlag("account", flags.Lookup("account"))
	_ = c.settings.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = c.settings.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = c.settings.BindEnv("api", "BANK_API_BASE_URL", "API_BASE_URL")
	_ = c.settings.BindEnv("token", "PORTAL_TOKEN")

	rootCmd.AddCommand(c.loginCmd())
	rootCmd.AddCommand(c.balanceCmd())
	rootCmd.AddCommand(c.transactionsCmd())
	rootCmd.AddCommand(c.transferCmd())
	rootCmd.AddCommand(c.exportCmd())
	return rootCmd
}

func (c *cli) client() *bankclient.Client {
	return bankclient.NewClient(c.settings.GetString("api"), c.settings.GetDuration("timeout"))
}

func (c *cli) logger(cmd *cobra.Command) *slog.Logger {
	if !c.settings.GetBool("verbose") {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
}

// view builds a View for the configured token and loads the dashboard.
func (c *cli) view(cmd *cobra.Command, authMode domain.TransferAuthMode) (*app.View, error) {
	token := c.settings.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("no token: run 'portalctl login' and set PORTAL_TOKEN, or pass --token")
	}

	view := app.NewView(c.client().WithToken(token), app.ViewConfig{
		AuthMode: authMode,
		Logger:   c.logger(cmd),
	})
	if _, err := view.Load(cmd.Context()); err != nil {
		return nil, err
	}
	if accountID := c.settings.GetInt64("account"); accountID != 0 {
		if _, err := view.SelectAccount(cmd.Context(), accountID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", app.UserMessage(err))
		os.Exit(1)
	}
}
