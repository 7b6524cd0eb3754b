package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Encrypt API keys left in legacy plaintext slots",
	Long: "Copy every non-empty legacy <provider>_api_key slot into an encrypted record. " +
		"Legacy slots are kept until cleanup-legacy is run.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusOnly, _ := cmd.Flags().GetBool("status")
		jsonOut, _ := cmd.Flags().GetBool("json")

		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		if statusOnly {
			statuses, err := v.MigrationStatus()
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(statuses)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SLOT\tPROVIDER\tLEGACY\tRECORD\tMIGRATED")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.LegacyKey, s.Provider,
					yesNo(s.HasLegacyValue), yesNo(s.HasNewRecord), yesNo(s.Migrated))
			}
			return w.Flush()
		}

		res := v.MigrateExistingKeys()
		if jsonOut {
			return printJSON(res)
		}
		for _, p := range res.Migrated {
			fmt.Printf("%s    %s\n", color.GreenString("OK"), p)
		}
		for _, p := range res.Skipped {
			fmt.Printf("SKIP  %s (already has a record)\n", p)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "%s  %s\n", color.RedString("FAIL"), e)
		}
		fmt.Printf("\n%d migrated, %d skipped, %d failed\n", res.Success, len(res.Skipped), res.Failed)
		if res.Failed > 0 {
			return fmt.Errorf("%d legacy slot(s) failed to migrate", res.Failed)
		}
		return nil
	},
}

var cleanupLegacyCmd = &cobra.Command{
	Use:   "cleanup-legacy",
	Short: "Remove legacy plaintext slots that have been migrated",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		removed, err := v.CleanupOldKeys(force)
		if err != nil {
			return err
		}
		fmt.Printf("%d legacy slot(s) removed\n", removed)
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	migrateCmd.Flags().Bool("status", false, "report legacy slots without migrating")
	migrateCmd.Flags().Bool("json", false, "output as JSON")
	cleanupLegacyCmd.Flags().Bool("force", false, "also remove slots that were never migrated")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cleanupLegacyCmd)
}
