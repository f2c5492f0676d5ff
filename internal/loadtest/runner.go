package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/janisto/hello-bench/internal/platform/timeutil"
)

// Defaults applied by Run when the corresponding option is zero.
const (
	DefaultURL     = "http://localhost:8080/api/hello"
	DefaultName    = "default"
	DefaultTimeout = 60 * time.Second
	DefaultTick    = 100 * time.Millisecond
)

// DefaultSleep is the benchmark's pause between iterations. Run does not
// apply it: a zero Options.Sleep means back-to-back iterations.
const DefaultSleep = time.Second

// Options configures a run.
type Options struct {
	URL    string
	Name   string
	Stages []Stage
	// Sleep is the pause between iterations of one virtual user; zero
	// disables it.
	Sleep   time.Duration
	Timeout time.Duration
	// MaxRPS caps the aggregate request rate; 0 leaves it unbounded.
	MaxRPS float64
	// Tick is how often the virtual-user count is re-evaluated.
	Tick   time.Duration
	Client *http.Client
	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Name == "" {
		o.Name = DefaultName
	}
	if len(o.Stages) == 0 {
		o.Stages = DefaultStages()
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Tick == 0 {
		o.Tick = DefaultTick
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Client == nil {
		o.Client = &http.Client{
			Timeout: o.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: max(MaxTarget(o.Stages), 2),
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
}

func (o *Options) validate() error {
	var errs []error
	u, err := url.Parse(o.URL)
	if err != nil {
		errs = append(errs, fmt.Errorf("url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("url: unsupported scheme %q", u.Scheme))
	}
	if strings.ContainsAny(o.Name, `/\`) || o.Name == "." || o.Name == ".." {
		errs = append(errs, fmt.Errorf("name: %q is not a valid file name", o.Name))
	}
	if o.Sleep < 0 {
		errs = append(errs, errors.New("sleep: must not be negative"))
	}
	if o.MaxRPS < 0 {
		errs = append(errs, errors.New("max rps: must not be negative"))
	}
	if o.Tick < 0 {
		errs = append(errs, errors.New("tick: must not be negative"))
	}
	for i, st := range o.Stages {
		if st.Duration <= 0 || st.Target < 0 {
			errs = append(errs, fmt.Errorf("stage %d: invalid %s", i, st))
		}
	}
	return errors.Join(errs...)
}

// Run executes the staged profile against opts.URL and returns the summary.
// Cancelling ctx stops the run early; the partial summary is still returned.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	r := &runner{opts: opts, rec: newRecorder()}
	if opts.MaxRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), max(1, int(opts.MaxRPS)))
	}

	summary := &Summary{
		RunID:     uuid.NewString(),
		Name:      opts.Name,
		URL:       opts.URL,
		StartedAt: timeutil.Now(),
		Stages:    opts.Stages,
	}
	log := opts.Logger.With(zap.String("runId", summary.RunID), zap.String("name", opts.Name))
	log.Info("load test started",
		zap.String("url", opts.URL),
		zap.Duration("duration", TotalDuration(opts.Stages)),
		zap.Int("maxVUs", MaxTarget(opts.Stages)),
	)

	start := time.Now()
	vusMax := r.schedule(ctx, log)
	elapsed := time.Since(start)

	r.rec.summarize(summary, elapsed, vusMax)
	log.Info("load test finished",
		zap.Duration("elapsed", elapsed),
		zap.Int64("requests", summary.Metrics.HTTPReqs.Count),
		zap.Float64("p95Ms", summary.Metrics.HTTPReqDuration.P95),
		zap.Float64("failureRate", summary.Metrics.HTTPReqFailed.Rate),
		zap.Bool("passed", summary.Passed()),
	)
	return summary, nil
}

type runner struct {
	opts    Options
	rec     *recorder
	limiter *rate.Limiter
}

// schedule adjusts the running virtual users every tick until the stages
// are exhausted or ctx ends, then waits for all of them to return. It
// reports the highest number of concurrently running virtual users.
func (r *runner) schedule(ctx context.Context, log *zap.Logger) int {
	g, gctx := errgroup.WithContext(ctx)
	var stops []chan struct{}
	vusMax := 0

	adjust := func(target int) {
		for len(stops) < target {
			stop := make(chan struct{})
			stops = append(stops, stop)
			g.Go(func() error {
				r.vu(gctx, stop)
				return nil
			})
		}
		for len(stops) > target {
			last := len(stops) - 1
			close(stops[last])
			stops = stops[:last]
		}
		vusMax = max(vusMax, len(stops))
	}

	total := TotalDuration(r.opts.Stages)
	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()

	start := time.Now()
	lastLog := start
	adjust(TargetAt(r.opts.Stages, 0))
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed >= total {
				break loop
			}
			adjust(TargetAt(r.opts.Stages, elapsed))
			if now.Sub(lastLog) >= time.Second {
				lastLog = now
				log.Debug("load test progress", zap.Duration("elapsed", elapsed), zap.Int("vus", len(stops)))
			}
		}
	}

	adjust(0)
	_ = g.Wait()
	return vusMax
}

// vu runs iterations until stop is closed or ctx ends. Closing stop (ramp-down)
// lets an in-flight request finish and be recorded; cancelling ctx aborts it,
// and the aborted request is not recorded.
func (r *runner) vu(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}
		s := r.iterate(ctx)
		if ctx.Err() != nil {
			return
		}
		r.rec.record(s)

		if r.opts.Sleep > 0 {
			timer := time.NewTimer(r.opts.Sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (r *runner) iterate(ctx context.Context) sample {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.URL, nil)
	if err != nil {
		return sample{err: err}
	}
	start := time.Now()
	resp, err := r.opts.Client.Do(req)
	if err != nil {
		return sample{duration: time.Since(start), err: err}
	}
	_, err = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return sample{duration: time.Since(start), status: resp.StatusCode, err: err}
}
