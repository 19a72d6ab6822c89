package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "adops",
	Short: "Operator CLI for the adops credential service",
	Long:  "A CLI for inspecting and managing stored ad-platform credentials.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print responses as JSON instead of tables")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(disconnectCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(configCmd())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <owner-id> <account-id>",
		Short: "Check whether a live credential exists for an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			valid, err := newClient().credentialStatus(args[0], args[1])
			if err != nil {
				printError(err.Error())
				return nil
			}
			renderStatus(args[0], args[1], valid)
			return nil
		},
	}
}

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts <owner-id>",
		Short: "List connected accounts and their validity for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := newClient().accounts(args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			renderAccounts(accounts)
			return nil
		},
	}
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <owner-id> <account-id>",
		Short: "Delete the stored credential for one account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().disconnect(args[0], args[1]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Credential deleted.")
			return nil
		},
	}
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <owner-id>",
		Short: "Delete every stored credential for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirmed, _ := cmd.Flags().GetBool("yes")
			if !confirmed {
				printError("purge removes all credentials for the owner; re-run with --yes to confirm")
				return nil
			}
			if err := newClient().purge(args[0]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("All credentials deleted.")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Skip confirmation")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newClient().health()
			if err != nil {
				printError(err.Error())
				return nil
			}
			renderHealth(status)
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			path, _ := cmd.Flags().GetString("path")
			entries, err := newClient().auditLog(limit, path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			renderAudit(entries)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum entries to return")
	cmd.Flags().String("path", "", "Filter by request path prefix")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage CLI configuration"}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value (address, token, ca_cert)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := readConfigFile()
			switch args[0] {
			case "address":
				c.Address = args[1]
			case "token":
				c.Token = args[1]
			case "ca_cert":
				c.TLSCACert = args[1]
			default:
				printError("unknown config key: " + args[0])
				return nil
			}
			if err := c.write(); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Saved.")
			return nil
		},
	}

	cmd.AddCommand(setCmd)
	return cmd
}
