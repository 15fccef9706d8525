// Package cli implements the ratemykey CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rcliao/ratemykey/internal/cache"
	"github.com/rcliao/ratemykey/internal/config"
	"github.com/rcliao/ratemykey/internal/engine"
	"github.com/rcliao/ratemykey/internal/logger"
	"github.com/rcliao/ratemykey/internal/outlier"
	"github.com/rcliao/ratemykey/internal/store"
)

var (
	cfgFile string

	// v collects flag bindings; config.Load layers file and env under them.
	v = viper.New()

	cfg *config.Config
	log *zap.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "ratemykey",
	Short: "Anomaly scores for actor action streams",
	Long: "Scores how unusual an actor's recent actions are compared to every other actor in the same context.\n" +
		"Serve it over HTTP, score one-off events locally, or replay recorded traffic against a running server.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, v)
		if err != nil {
			return err
		}
		if err := cfg.Err(); err != nil {
			return err
		}
		log, err = logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	flags.StringP("db", "d", "", "Database path (default: $RATEMYKEY_DATABASE_PATH or ~/.ratemykey/ratemykey.db)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	v.BindPFlag("database.path", flags.Lookup("db"))
	v.BindPFlag("logging.level", flags.Lookup("log-level"))
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Database.Path)
}

// newEngine builds the scoring engine from the loaded configuration.
func newEngine(st engine.Store) (*engine.Engine, error) {
	opts := cache.Options{
		Grace:  cfg.Cache.Grace,
		Margin: cfg.Cache.Margin,
	}
	if cfg.Cache.ShadowEnabled {
		shadow, err := cache.NewShadow(cfg.Cache.ShadowSize)
		if err != nil {
			return nil, fmt.Errorf("create shadow cache: %w", err)
		}
		opts.Shadow = shadow
	}

	return engine.New(st, engine.Config{
		Window:       cfg.Scoring.Window,
		LedgerCap:    cfg.Scoring.LedgerCap,
		Thresholds:   outlier.Thresholds{SZ: cfg.Scoring.SZLimit, NZ: cfg.Scoring.NZLimit},
		PruneTimeout: cfg.Scoring.PruneTimeout,
		MaxSkew:      cfg.Scoring.MaxSkew,
		Cache:        opts,
	}, log), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
