package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/ratemykey/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scoring service",
		Long:  "Serve /ratemykey, /reset, /healthz and /metrics until interrupted.",
		Run:   runServe,
	}

	cmd.Flags().String("host", "", "Listen host (default 0.0.0.0)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (default 5000)")
	v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	v.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	eng, err := newEngine(s)
	if err != nil {
		exitErr("create engine", err)
	}
	defer eng.Close()

	srv := server.New(eng, s, log, server.Options{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting ratemykey",
		zap.String("db", cfg.Database.Path),
		zap.Float64("sz_limit", cfg.Scoring.SZLimit),
		zap.Float64("nz_limit", cfg.Scoring.NZLimit),
		zap.Duration("window", cfg.Scoring.Window))

	if err := srv.Run(ctx); err != nil {
		exitErr("serve", err)
	}
}
