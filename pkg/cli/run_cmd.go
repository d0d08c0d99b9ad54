package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dbhandle/internal/handle"
)

// Script is a sequence of statements run on one handle.
//
//	steps:
//	  - name: create
//	    op: commit
//	    sql: CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)
//	  - op: fetch-all
//	    sql: SELECT * FROM t WHERE id > ?
//	    args: [0]
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Step is one statement in a Script.
type Step struct {
	Name string `yaml:"name,omitempty"`
	Op   string `yaml:"op"`
	SQL  string `yaml:"sql"`
	Args []any  `yaml:"args,omitempty"`
}

const (
	opFetchOne = "fetch-one"
	opFetchAll = "fetch-all"
	opCommit   = "commit"
)

// normalizeOp accepts fetch-one, fetch_one and fetchone spellings.
func normalizeOp(op string) (string, error) {
	switch strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(op)), "_", ""), "-", "") {
	case "fetchone":
		return opFetchOne, nil
	case "fetchall":
		return opFetchAll, nil
	case "commit":
		return opCommit, nil
	default:
		return "", fmt.Errorf("unknown op %q: use fetch-one, fetch-all or commit", op)
	}
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Script
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("script has no steps")
		}
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	for i := range sc.Steps {
		st := &sc.Steps[i]
		op, err := normalizeOp(st.Op)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		st.Op = op
		for j, a := range st.Args {
			switch a.(type) {
			case nil, string, bool, int, int64, uint64, float64, time.Time:
			default:
				return nil, fmt.Errorf("step %d: args[%d]: unsupported type %T", i+1, j, a)
			}
		}
	}
	return &sc, nil
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Step   int    `json:"step"`
	Name   string `json:"name,omitempty"`
	Op     string `json:"op"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
}

// runScript executes steps in order. It stops at the first failure unless
// continueOnError is set, and reports how many steps failed.
func runScript(ctx context.Context, h *handle.Handle, sc *Script, continueOnError bool) ([]StepResult, int) {
	results := make([]StepResult, 0, len(sc.Steps))
	failed := 0
	for i, st := range sc.Steps {
		res := StepResult{Step: i + 1, Name: st.Name, Op: st.Op}
		var err error
		switch st.Op {
		case opFetchOne:
			var row handle.Row
			row, err = h.FetchOne(ctx, st.SQL, st.Args...)
			if row != nil {
				res.Result = row
			}
		case opFetchAll:
			var rows []handle.Row
			rows, err = h.FetchAll(ctx, st.SQL, st.Args...)
			if err == nil {
				res.Result = rows
			}
		case opCommit:
			var er handle.ExecResult
			er, err = h.Commit(ctx, st.SQL, st.Args...)
			if err == nil {
				res.Result = execResultJSON(er)
			}
		}
		res.Status = handle.Status(err)
		results = append(results, res)
		if err != nil {
			failed++
			if !continueOnError {
				break
			}
		}
	}
	return results, failed
}

func printStepResults(w io.Writer, results []StepResult) error {
	for _, r := range results {
		label := r.Op
		if r.Name != "" {
			label = r.Name + ", " + r.Op
		}
		_, _ = fmt.Fprintf(w, "== step %d (%s) ==\n", r.Step, label)
		if r.Status != handle.StatusSuccess {
			_, _ = fmt.Fprintln(w, r.Status)
			continue
		}
		var err error
		switch v := r.Result.(type) {
		case handle.Row:
			err = printRows(w, []handle.Row{v})
		case []handle.Row:
			err = printRows(w, v)
		case map[string]interface{}:
			_, err = fmt.Fprintf(w, "%s (rows affected: %v, last insert id: %v)\n", r.Status, v["rows_affected"], v["last_insert_id"])
		default:
			err = printRows(w, nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func newRunCmd(s *rootState) *cobra.Command {
	var continueOnError bool

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a YAML script of statements on one connection",
		Long: `Run a YAML script of statements in order on a single handle.

Each step names an op (fetch-one, fetch-all, commit), the sql to run and
optional args bound to its ? placeholders. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			sc, err := ParseScript(data)
			if err != nil {
				return err
			}

			var (
				results []StepResult
				failed  int
			)
			err = s.withHandle(cmd, func(h *handle.Handle) error {
				results, failed = runScript(cmd.Context(), h, sc, continueOnError)
				return nil
			})
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				err = printJSON(os.Stdout, results)
			} else {
				err = printStepResults(os.Stdout, results)
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d steps failed", failed, len(sc.Steps))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep running steps after a failure")

	return cmd
}
