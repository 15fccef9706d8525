package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rcliao/ratemykey/internal/model"
)

// DateLayout is how event times are sent to the service.
const DateLayout = time.RFC3339Nano

// Client sends events to a ratemykey server.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	workers int
	logger  *zap.Logger
}

// ClientOptions configures a Client. RatePerSecond <= 0 disables limiting.
type ClientOptions struct {
	RatePerSecond float64
	Workers       int
	Timeout       time.Duration
	Logger        *zap.Logger
}

func NewClient(baseURL string, opts ClientOptions) *Client {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		workers: opts.Workers,
		logger:  opts.Logger,
	}
}

// RequestError is a non-2xx answer from the service.
type RequestError struct {
	Status int
	Code   string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("status %d %s: %s", e.Status, e.Code, e.Reason)
}

// Send records one event and returns the service's rating.
func (c *Client) Send(ctx context.Context, ev model.ActionEvent) (*model.Result, error) {
	q := url.Values{}
	q.Set("context", ev.Context)
	q.Set("key", ev.Key)
	q.Set("action", ev.Action)
	if !ev.Timestamp.IsZero() {
		q.Set("date", ev.Timestamp.UTC().Format(DateLayout))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ratemykey?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return nil, &RequestError{Status: resp.StatusCode, Code: body.Code, Reason: body.Reason}
	}

	var res model.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}

// Summary counts the outcome of a replay.
type Summary struct {
	Sent     int64
	Failed   int64
	Outliers int64
}

// Replay sends every event, at most workers at a time and no faster than the
// configured rate. Per-event failures are counted and logged; only
// cancellation stops the replay early. onResult, if set, is called for each
// event and must be safe for concurrent use.
func (c *Client) Replay(ctx context.Context, events []model.ActionEvent, onResult func(model.ActionEvent, *model.Result, error)) (Summary, error) {
	var sent, failed, outliers atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, ev := range events {
		if err := c.limiter.Wait(gctx); err != nil {
			break
		}
		ev := ev
		g.Go(func() error {
			res, err := c.Send(gctx, ev)
			if onResult != nil {
				onResult(ev, res, err)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				c.logger.Warn("event rejected",
					zap.String("context", ev.Context),
					zap.String("key", ev.Key),
					zap.Error(err))
				return nil
			}
			sent.Add(1)
			if res.Rating.Outlier {
				outliers.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return Summary{Sent: sent.Load(), Failed: failed.Load(), Outliers: outliers.Load()}, err
}
