package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benaskins/credvault/internal/credential"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the active storage backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		info := v.StorageInfo()
		if jsonOut {
			return printJSON(info)
		}

		names := make([]string, len(info.SupportedProviders))
		for i, p := range info.SupportedProviders {
			names[i] = p.String()
		}
		cfg, _ := loadConfig()

		fmt.Printf("Backend:          %s\n", info.Backend)
		fmt.Printf("Reason:           %s\n", info.Reason)
		fmt.Printf("Hardware AES:     %t\n", info.HardwareAES)
		fmt.Printf("Installation:     %s\n", info.InstallationID)
		if cfg != nil {
			fmt.Printf("Data dir:         %s\n", cfg.ResolvedDataDir())
			fmt.Printf("Audit log:        %s\n", cfg.AuditPath())
		}
		fmt.Printf("Key lifetime:     %d days\n", int(credential.Lifetime.Hours()/24))
		fmt.Printf("Providers:        %s\n", strings.Join(names, ", "))
		return nil
	},
}

func init() {
	infoCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(infoCmd)
}
