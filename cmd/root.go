package cmd

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/nsxbet/ddlguard/pkg/catalog"
	"github.com/nsxbet/ddlguard/pkg/config"
	"github.com/nsxbet/ddlguard/pkg/logger"
	"github.com/nsxbet/ddlguard/pkg/metrics"
	"github.com/nsxbet/ddlguard/pkg/probe"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ddlguard",
	Short: "A statement policy guard for PostgreSQL",
	Long: `ddlguard checks DDL and utility statements against a compiled-in
compatibility policy and rejects the ones that use unsupported features,
such as temporary tables, table inheritance, non-SQL function languages or
indexes on tables that already hold data.

Use "check" for a dry run and "exec" to run approved statements against a
database.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.ddlguard.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output")
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().Bool("metrics", false, "print policy counters in Prometheus text format to stderr after the run")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	_ = viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("metrics", rootCmd.PersistentFlags().Lookup("metrics"))
}

// initConfig wires the config file and DDLGUARD_* environment variables.
func initConfig() {
	config.InitViper(viper.GetViper(), cfgFile)
}

// loadConfig returns the validated configuration and a logger for it.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	switch {
	case viper.GetBool("debug"):
		level = slog.LevelDebug
	case viper.GetBool("verbose") && level > slog.LevelInfo:
		level = slog.LevelInfo
	}
	log := logger.NewWithLevel(level)
	slog.SetDefault(log.GetSlogLogger())
	return cfg, log, nil
}

// readSQL reads a script from path, or from stdin when path is "-".
func readSQL(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read SQL file: %s", path)
	}
	return string(data), nil
}

// openDB opens and pings the configured database.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Driver)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", cfg.Driver)
	}
	return db, nil
}

// newProber picks the live database, the schema snapshot or the empty prober,
// in that order.
func newProber(db *sql.DB, cfg *config.Config) (probe.Prober, error) {
	if db != nil {
		return probe.NewSQL(db), nil
	}
	if cfg.Schema != "" {
		meta, err := catalog.LoadFromFile(cfg.Schema)
		if err != nil {
			return nil, err
		}
		slog.Debug("Loaded schema snapshot", "file", cfg.Schema, "database", meta.Name)
		return probe.NewCatalog(catalog.NewFinder(meta, &catalog.FinderContext{})), nil
	}
	return probe.Empty, nil
}

// newMetrics returns counters on a fresh registry when metrics are enabled,
// and nils otherwise.
func newMetrics(cfg *config.Config) (*metrics.Metrics, *prometheus.Registry) {
	if !cfg.Metrics {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	return metrics.New(reg), reg
}

// writeMetrics prints the counters gathered in reg to the command's stderr.
func writeMetrics(cmd *cobra.Command, reg *prometheus.Registry) {
	if reg == nil {
		return
	}
	if err := metrics.WriteText(cmd.ErrOrStderr(), reg); err != nil {
		slog.Warn("Failed to write metrics", "error", err)
	}
}
