package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benaskins/credvault/internal/backend"
)

var secureCmd = &cobra.Command{
	Use:   "secure",
	Short: "Manage auxiliary secrets outside the provider key set",
}

var secureSetCmd = &cobra.Command{
	Use:   "set <name> [value]",
	Short: "Encrypt and store a named secret",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		} else {
			var err error
			if value, err = readSecret("Enter secret value: "); err != nil {
				return err
			}
		}

		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := v.SecureStore(args[0], value); err != nil {
			return err
		}
		fmt.Printf("Secret %q stored\n", args[0])
		return nil
	},
}

var secureGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Decrypt and print a named secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		val, err := v.SecureRetrieve(args[0])
		if errors.Is(err, backend.ErrNotFound) {
			return fmt.Errorf("secret %q not found", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var secureDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Short:   "Remove a named secret",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := v.SecureDelete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Secret %q deleted\n", args[0])
		return nil
	},
}

func init() {
	secureCmd.AddCommand(secureSetCmd)
	secureCmd.AddCommand(secureGetCmd)
	secureCmd.AddCommand(secureDeleteCmd)
	rootCmd.AddCommand(secureCmd)
}
