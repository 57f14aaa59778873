package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nsxbet/ddlguard/pkg/guard"
)

// ErrRejected is returned by check --fail-on-reject when a statement was rejected.
var ErrRejected = errors.New("one or more statements were rejected")

var checkCmd = &cobra.Command{
	Use:   "check [flags] <sql-file|->",
	Short: "Check SQL statements against the statement policy",
	Long: `Check evaluates every statement in a file against the statement policy
without executing anything.

CREATE INDEX asks whether its table already holds rows. The answer comes
from the database named by --dsn, from the snapshot named by --schema, or,
with neither, every table is considered empty.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	// Flags for check command
	checkCmd.Flags().String("schema", "", "path to database schema snapshot (JSON or YAML)")
	checkCmd.Flags().StringP("output", "o", "text", "output format (text, json, yaml)")
	checkCmd.Flags().Bool("fail-on-reject", false, "exit with non-zero code if a statement is rejected")

	// Bind flags to viper
	_ = viper.BindPFlag("schema", checkCmd.Flags().Lookup("schema"))
	_ = viper.BindPFlag("output", checkCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("fail-on-reject", checkCmd.Flags().Lookup("fail-on-reject"))
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Debug("Starting check command", "args", args)

	script, err := readSQL(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var db *sql.DB
	if cfg.DSN != "" {
		if db, err = openDB(ctx, cfg); err != nil {
			return err
		}
		defer db.Close()
	}
	prober, err := newProber(db, cfg)
	if err != nil {
		return err
	}

	m, reg := newMetrics(cfg)
	defer writeMetrics(cmd, reg)

	g := guard.New(nil,
		guard.WithProber(prober),
		guard.WithMetrics(m),
		guard.WithProbeFailure(cfg.FailurePolicy()),
		guard.WithLogger(log),
		guard.WithCacheSize(cfg.CacheSize),
	)
	result, err := g.Run(ctx, script)
	if err != nil {
		return err
	}

	if err := outputResults(cmd.OutOrStdout(), result, cfg.Output); err != nil {
		return err
	}

	if result.HasRejections() && viper.GetBool("fail-on-reject") {
		return ErrRejected
	}
	return nil
}

func outputResults(w io.Writer, result *guard.Result, format string) error {
	switch format {
	case "json":
		return outputJSON(w, result)
	case "yaml":
		return outputYAML(w, result)
	case "text":
		return outputText(w, result)
	default:
		return errors.Errorf("unsupported output format: %s", format)
	}
}

func outputJSON(w io.Writer, result *guard.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(w io.Writer, result *guard.Result) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	return encoder.Encode(result)
}

func outputText(w io.Writer, result *guard.Result) error {
	if len(result.Outcomes) == 0 {
		fmt.Fprintln(w, "No statements found.")
		return nil
	}

	for _, o := range result.Outcomes {
		switch o.Status {
		case guard.StatusRejected:
			fmt.Fprintf(w, "[REJECTED] line %d: %s\n", o.Line, o.Message)
			fmt.Fprintf(w, "  %s\n", o.Statement)
		case guard.StatusFailed:
			fmt.Fprintf(w, "[FAILED] line %d: %s\n", o.Line, o.Message)
		default:
			fmt.Fprintf(w, "[OK] line %d: %s\n", o.Line, o.Kind)
		}
	}

	fmt.Fprintf(w, "\nSummary: %d statement(s), %d forwarded, %d rejected, %d failed\n",
		result.Summary.Total, result.Summary.Forwarded, result.Summary.Rejected, result.Summary.Failed)
	return nil
}
