package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benaskins/credvault/internal/credential"
)

var setCmd = &cobra.Command{
	Use:   "set <provider> [key]",
	Short: "Encrypt and store a provider API key",
	Long: "Store an API key. If key is omitted it is read from the terminal without echo, " +
		"or from stdin when piped. With --from-command the key is the command's output.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := credential.ParseProvider(args[0])
		if err != nil {
			return err
		}

		fromCommand, _ := cmd.Flags().GetString("from-command")
		var value string
		switch {
		case len(args) == 2:
			value = args[1]
		case fromCommand != "":
			value, err = runKeyCommand(fromCommand)
			if err != nil {
				return fmt.Errorf("running --from-command: %w", err)
			}
		default:
			value, err = readSecret("Enter API key: ")
			if err != nil {
				return err
			}
		}

		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := v.SaveAPIKey(p, value); err != nil {
			return err
		}
		fmt.Printf("Key for %s stored (%s backend)\n", p, v.StorageInfo().Backend)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <provider>",
	Short: "Decrypt and print a provider API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := credential.ParseProvider(args[0])
		if err != nil {
			return err
		}
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		key, err := v.Lookup(p)
		switch {
		case errors.Is(err, credential.ErrNotFound):
			return fmt.Errorf("no key stored for %s", p)
		case errors.Is(err, credential.ErrExpired):
			return fmt.Errorf("key for %s had expired and was removed", p)
		case err != nil:
			return fmt.Errorf("key for %s is unavailable: %w", p, err)
		}
		fmt.Println(key)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <provider>",
	Short:   "Remove a provider API key",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := credential.ParseProvider(args[0])
		if err != nil {
			return err
		}
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := v.DeleteAPIKey(p); err != nil {
			return err
		}
		fmt.Printf("Key for %s deleted\n", p)
		return nil
	},
}

var deleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Remove the API key of every provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := confirm("Delete every stored API key? [y/N] ")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted")
				return nil
			}
		}

		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := v.DeleteAllKeys(); err != nil {
			return err
		}
		fmt.Println("All keys deleted")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored keys without decrypting them",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		items, err := v.ListAvailableKeys()
		if err != nil {
			return err
		}
		if jsonOut {
			if items == nil {
				items = []credential.KeyListItem{}
			}
			return printJSON(items)
		}

		if len(items) == 0 {
			fmt.Println("No keys stored")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tBACKEND\tCREATED\tEXPIRES\tLAST USED\tSTATUS")
		for _, item := range items {
			status := color.GreenString("%dd left", item.DaysUntilExpiry)
			switch {
			case item.IsExpired:
				status = color.RedString("expired")
			case item.DaysUntilExpiry <= 7:
				status = color.YellowString("%dd left", item.DaysUntilExpiry)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				item.Provider, item.Backend,
				formatDate(item.CreatedAt), formatDate(item.ExpiresAt), formatDate(item.LastUsedAt),
				status)
		}
		return w.Flush()
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete every expired key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, closeFn, err := openVault()
		if err != nil {
			return err
		}
		defer closeFn()

		removed, err := v.CleanupExpiredKeys()
		if err != nil {
			return err
		}
		fmt.Printf("%d expired key(s) removed\n", removed)
		return nil
	},
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// readSecret prompts without echo on a terminal, or reads stdin when piped.
func readSecret(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile("/dev/stdin")
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("refusing to continue without a terminal; pass --yes")
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// runKeyCommand executes a shell command and returns its stdout as the key,
// e.g. a password manager lookup.
func runKeyCommand(command string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return strings.TrimRight(string(output), "\r\n"), nil
}

func init() {
	setCmd.Flags().String("from-command", "", "shell command whose output is the key")
	deleteAllCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	listCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(deleteAllCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(sweepCmd)
}
