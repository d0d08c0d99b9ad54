package cli

import (
	"os"

	"github.com/spf13/cobra"

	"dbhandle/internal/handle"
)

// stringArgs turns positional arguments into statement parameters.
func stringArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

func newFetchOneCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-one SQL [ARGS...]",
		Short: "Run a statement and print its first row",
		Example: `  dbh fetch-one "SELECT id, name FROM users WHERE id = ?" 42
  dbh --driver sqlite3 -d app.db -o json fetch-one "SELECT count(*) AS n FROM users"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withHandle(cmd, func(h *handle.Handle) error {
				row, err := h.FetchOne(cmd.Context(), args[0], stringArgs(args[1:])...)
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return printJSON(os.Stdout, row)
				}
				if row == nil {
					return printRows(os.Stdout, nil)
				}
				return printRows(os.Stdout, []handle.Row{row})
			})
		},
	}
}

func newFetchAllCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "fetch-all SQL [ARGS...]",
		Short:   "Run a statement and print every row",
		Example: `  dbh fetch-all "SELECT id, name FROM users WHERE active = ?" 1`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withHandle(cmd, func(h *handle.Handle) error {
				rows, err := h.FetchAll(cmd.Context(), args[0], stringArgs(args[1:])...)
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return printJSON(os.Stdout, rows)
				}
				return printRows(os.Stdout, rows)
			})
		},
	}
}

func newCommitCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "commit SQL [ARGS...]",
		Short:   "Run a write statement and commit it",
		Example: `  dbh commit "UPDATE users SET active = 0 WHERE id = ?" 42`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withHandle(cmd, func(h *handle.Handle) error {
				res, err := h.Commit(cmd.Context(), args[0], stringArgs(args[1:])...)
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return printJSON(os.Stdout, execResultJSON(res))
				}
				return printExecResult(os.Stdout, res)
			})
		},
	}
}

func execResultJSON(res handle.ExecResult) map[string]interface{} {
	return map[string]interface{}{
		"status":         res.Status,
		"rows_affected":  res.RowsAffected,
		"last_insert_id": res.LastInsertID,
	}
}
