// Package cli implements the dbh command-line client. Each query command
// opens one database handle, runs a single statement and closes it again.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dbhandle/internal/config"
	"dbhandle/internal/handle"
)

var (
	version = "dev"
	commit  = "none"
)

// rootState is shared by every subcommand of one root command.
type rootState struct {
	conn     connFlags
	output   string
	profile  string
	logLevel string
}

func (s *rootState) logger() *slog.Logger {
	return config.NewLogger("text", config.ParseLevel(s.logLevel))
}

// withHandle opens a handle from the resolved flags, passes it to fn and
// closes it afterwards.
func (s *rootState) withHandle(cmd *cobra.Command, fn func(*handle.Handle) error) error {
	cfg, err := s.conn.handleConfig(s.logger())
	if err != nil {
		return err
	}
	return handle.With(cmd.Context(), cfg, fn)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			if handle.IsStatementError(err) {
				errObj["status"] = handle.Status(err)
			}
			_ = printJSON(os.Stdout, errObj)
		} else if handle.IsStatementError(err) {
			// Statement errors already carry the "error: " prefix.
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	s := &rootState{}

	rootCmd := &cobra.Command{
		Use:           "dbh",
		Short:         "Database handle CLI",
		Long:          "Run single SQL statements against MySQL, SQLite or DuckDB through one connection handle.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The config file is optional.
			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = newUserConfig()
			}
			p, err := cfg.ActiveProfile(s.profile)
			if err != nil {
				return err
			}

			// Precedence: flag > env > profile > default.
			if err := s.conn.resolve(cmd.Flags(), p); err != nil {
				return err
			}
			resolveString(cmd.Flags(), "output", "DBH_OUTPUT", p.Output, &s.output)
			if err := validateOutputFormat(s.output); err != nil {
				return err
			}

			if s.conn.passwordPrompt {
				pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				s.conn.password = pw
			}
			return nil
		},
	}

	s.conn.register(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVarP(&s.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&s.profile, "profile", "p", "", "Config profile to use")
	rootCmd.PersistentFlags().StringVar(&s.logLevel, "log-level", "error", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newFetchOneCmd(s))
	rootCmd.AddCommand(newFetchAllCmd(s))
	rootCmd.AddCommand(newCommitCmd(s))
	rootCmd.AddCommand(newRunCmd(s))

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
