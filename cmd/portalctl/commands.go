package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/transfa/portal-service/internal/app"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

func (c *cli) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a bearer token",
		Long: `Log in with username and password and print the bearer token.

Use it with: export PORTAL_TOKEN=$(portalctl login -u jane -p ...)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" || password == "" {
				return domain.NewValidationError("username", "Username and password are required.")
			}
			resp, err := c.client().Login(cmd.Context(), bankclient.LoginRequest{Username: username, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	return cmd
}

func (c *cli) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the balance of the active account",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := c.view(cmd, domain.AuthModePIN)
			if err != nil {
				return err
			}
			if _, err := view.Reveal(cmd.Context(), app.SecretBalance); err != nil {
				return err
			}
			balance, _ := view.Revealed(app.SecretBalance)
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s\nBalance %s\n", view.Dashboard().AccountNumber, balance)
			return view.Hide(app.SecretBalance)
		},
	}
}

func (c *cli) transactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transactions",
		Short: "List transactions of the active account",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := c.view(cmd, domain.AuthModePIN)
			if err != nil {
				return err
			}
			rows := view.Dashboard().Transactions
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tDESCRIPTION\tTYPE\tAMOUNT")
			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Timestamp, row.Description, row.Type, row.Amount)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) transferCmd() *cobra.Command {
	var to, amount, pin, password string
	var yes bool
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send money to another account",
		Long: `Send money to another account.

The recipient is verified first and their name is shown for confirmation.
Pass --pin for PIN authorization or --password for password authorization.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			authMode, secret := domain.AuthModePIN, pin
			if password != "" {
				authMode, secret = domain.AuthModePassword, password
			}
			parsed, err := domain.ParseAmount(amount)
			if err != nil {
				return err
			}

			view, err := c.view(cmd, authMode)
			if err != nil {
				return err
			}
			workflow := view.Transfer()
			workflow.Open()

			name, err := workflow.VerifyRecipient(cmd.Context(), to)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recipient: %s\n", name)

			if !yes {
				fmt.Fprintf(out, "Send %s to %s? [y/N]: ", app.FormatMoney(parsed), name)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if !strings.EqualFold(strings.TrimSpace(answer), "y") {
					workflow.Close()
					fmt.Fprintln(out, "Transfer cancelled.")
					return nil
				}
			}

			receipt, err := workflow.SubmitTransfer(cmd.Context(), parsed, secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Transfer successful! Sent %s to %s (%s).\n", app.FormatMoney(receipt.Amount), receipt.RecipientName, receipt.RecipientAccountNumber)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient account number")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount to send")
	cmd.Flags().StringVar(&pin, "pin", "", "Transaction PIN")
	cmd.Flags().StringVar(&password, "password", "", "Login password, for password-authorized transfers")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	cmd.MarkFlagsMutuallyExclusive("pin", "password")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions of the active account as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := c.view(cmd, domain.AuthModePIN)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return view.ExportTransactionsCSV(cmd.Context(), cmd.OutOrStdout())
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := view.ExportTransactionsCSV(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transactions written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "transactions.csv", "Output file, or - for stdout")
	return cmd
}
