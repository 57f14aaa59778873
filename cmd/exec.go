package cmd

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nsxbet/ddlguard/pkg/executor"
	"github.com/nsxbet/ddlguard/pkg/hook"
	"github.com/nsxbet/ddlguard/pkg/probe"
	"github.com/nsxbet/ddlguard/pkg/statement"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] <sql-file|->",
	Short: "Run SQL statements through the statement policy",
	Long: `Exec runs every statement in a file against the database named by --dsn.
Each statement is checked first; execution stops at the first statement
that is rejected or fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DSN == "" {
		return errors.New("exec requires a database, set --dsn or DDLGUARD_DSN")
	}

	script, err := readSQL(cmd, args[0])
	if err != nil {
		return err
	}
	stmts, err := statement.Parse(script)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m, reg := newMetrics(cfg)
	defer writeMetrics(cmd, reg)

	slot := &hook.Slot{}
	standard := executor.New(db)
	ext := hook.NewExtension(slot, standard,
		hook.WithProber(probe.NewSQL(db)),
		hook.WithMetrics(m),
		hook.WithProbeFailure(cfg.FailurePolicy()),
		hook.WithLogger(log),
	)
	ext.Install()
	defer ext.Uninstall()

	w := cmd.OutOrStdout()
	for _, stmt := range stmts {
		call := &hook.Call{
			Statement:  stmt,
			Query:      stmt.Text(),
			TopLevel:   true,
			Context:    hook.ContextTopLevel,
			Completion: &hook.Completion{},
		}
		if err := hook.Run(ctx, slot, standard, call); err != nil {
			if hook.IsPolicyViolation(err) {
				fmt.Fprintf(w, "[REJECTED] line %d: %s\n", stmt.Line(), err)
				return ErrRejected
			}
			fmt.Fprintf(w, "[FAILED] line %d: %s\n", stmt.Line(), err)
			return errors.Wrapf(err, "statement at line %d failed", stmt.Line())
		}
		fmt.Fprintf(w, "[OK] line %d: %s %d\n", stmt.Line(), call.Completion.Tag, call.Completion.Rows)
	}

	slog.Debug("All statements executed", "count", len(stmts))
	return nil
}
