package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/ratemykey/internal/feed"
	"github.com/rcliao/ratemykey/internal/model"
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "http://localhost:5000", "Base URL of the ratemykey server")
	cmd.Flags().Float64("rate", 0, "Maximum events per second (0 = unlimited)")
	cmd.Flags().IntP("workers", "w", 1, "Concurrent requests; above 1, per-actor order is not preserved")
	cmd.Flags().BoolP("verbose", "v", false, "Print every rating")
}

func init() {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Replay an Okta system-log export",
		Long: "Replay a JSON-lines Okta export against a running server. Every record is sent twice:\n" +
			"keyed by ipAddress in okta_by_ip and by alternateid in okta_by_user, with action eventType:result.",
		Run: runFeed,
	}

	cmd.Flags().String("file", "", "JSON-lines export to replay (required)")
	cmd.Flags().IntP("limit", "l", 0, "Replay at most this many lines (0 = all)")
	addClientFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runFeed(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("file")
	limit, _ := cmd.Flags().GetInt("limit")
	if path == "" {
		exitErr("feed", fmt.Errorf("--file is required"))
	}

	f, err := os.Open(path)
	if err != nil {
		exitErr("open export", err)
	}
	parsed, err := feed.ParseOkta(f, limit)
	f.Close()
	if err != nil {
		exitErr("parse export", err)
	}
	log.Info("export loaded",
		zap.String("file", path),
		zap.Int("lines", parsed.Lines),
		zap.Int("events", len(parsed.Events)),
		zap.Int("skipped", parsed.Skipped))

	replay(cmd, parsed.Events)
}

// replayOptions are the client flags shared by feed and generate.
type replayOptions struct {
	URL     string
	Rate    float64
	Workers int
	Verbose bool
}

func clientOptions(cmd *cobra.Command) replayOptions {
	var o replayOptions
	o.URL, _ = cmd.Flags().GetString("url")
	o.Rate, _ = cmd.Flags().GetFloat64("rate")
	o.Workers, _ = cmd.Flags().GetInt("workers")
	o.Verbose, _ = cmd.Flags().GetBool("verbose")
	return o
}

// replay sends events with the client flags of cmd and prints a summary.
func replay(cmd *cobra.Command, events []model.ActionEvent) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	sum, err := replayEvents(ctx, clientOptions(cmd), events, os.Stdout)
	stop()

	b, _ := json.MarshalIndent(map[string]any{
		"events":   len(events),
		"sent":     sum.Sent,
		"failed":   sum.Failed,
		"outliers": sum.Outliers,
	}, "", "  ")
	fmt.Fprintln(os.Stderr, string(b))
	if err != nil {
		exitErr("replay", err)
	}
}

// replayEvents sends events and, when verbose, writes every rating to out as
// a JSON line. All ratings are written before it returns, error or not.
func replayEvents(ctx context.Context, o replayOptions, events []model.ActionEvent, out io.Writer) (feed.Summary, error) {
	client := feed.NewClient(o.URL, feed.ClientOptions{
		RatePerSecond: o.Rate,
		Workers:       o.Workers,
		Logger:        log,
	})

	var onResult func(model.ActionEvent, *model.Result, error)
	if o.Verbose {
		enc := json.NewEncoder(out)
		results := make(chan *model.Result)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for res := range results {
				enc.Encode(res)
			}
		}()
		defer func() {
			close(results)
			<-done
		}()
		onResult = func(_ model.ActionEvent, res *model.Result, err error) {
			if err == nil {
				results <- res
			}
		}
	}

	return client.Replay(ctx, events, onResult)
}
