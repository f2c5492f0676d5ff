package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/janisto/hello-bench/internal/loadtest"
	applog "github.com/janisto/hello-bench/internal/platform/logging"
)

// errThresholds marks a completed run whose thresholds did not hold.
var errThresholds = errors.New("thresholds failed")

type runFlags struct {
	url     string
	name    string
	stages  []string
	sleep   time.Duration
	timeout time.Duration
	maxRPS  float64
	out     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := 0
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errThresholds) {
			fmt.Fprintln(os.Stderr, err)
		}
		code = 1
	}
	stop()
	_ = applog.Sync()
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loadtest",
		Short:         "Load-test the hello endpoint",
		Long:          "loadtest drives an HTTP endpoint with a staged virtual-user profile and checks latency and failure thresholds.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		return applog.SetLevel(logLevel)
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the staged load profile and write a JSON summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.url, "url", envOr("API_URL", loadtest.DefaultURL), "target URL (env API_URL)")
	cmd.Flags().StringVar(&f.name, "name", envOr("API_NAME", loadtest.DefaultName), "API name used in the summary file name (env API_NAME)")
	cmd.Flags().StringArrayVar(&f.stages, "stage", nil, "stage as <duration>:<target>, repeatable (default 5s:5000 10s:5000 10s:9000 1s:0)")
	cmd.Flags().DurationVar(&f.sleep, "sleep", loadtest.DefaultSleep, "pause between iterations of one virtual user")
	cmd.Flags().DurationVar(&f.timeout, "timeout", loadtest.DefaultTimeout, "per-request timeout")
	cmd.Flags().Float64Var(&f.maxRPS, "max-rps", 0, "cap on aggregate requests per second (0 = unlimited)")
	cmd.Flags().StringVar(&f.out, "out", "results", "directory for the JSON summary")
	return cmd
}

func run(ctx context.Context, w io.Writer, f *runFlags) error {
	stages, err := loadtest.ParseStages(f.stages)
	if err != nil {
		return err
	}

	summary, err := loadtest.Run(ctx, loadtest.Options{
		URL:     f.url,
		Name:    f.name,
		Stages:  stages,
		Sleep:   f.sleep,
		Timeout: f.timeout,
		MaxRPS:  f.maxRPS,
		Logger:  applog.Logger(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Test complete")
	fmt.Fprintf(w, "API: %s\n", summary.Name)
	fmt.Fprintf(w, "URL: %s\n", summary.URL)
	printReport(w, summary)

	path, err := loadtest.WriteSummary(f.out, summary)
	if err != nil {
		return err
	}
	applog.Logger().Info("summary written", zap.String("path", path))

	if !summary.Passed() {
		return errThresholds
	}
	return nil
}

func printReport(w io.Writer, s *loadtest.Summary) {
	m := s.Metrics
	fmt.Fprintf(w, "\nhttp_reqs..........: %d (%.1f/s)\n", m.HTTPReqs.Count, m.HTTPReqs.Rate)
	fmt.Fprintf(w, "http_req_duration..: avg=%.2fms med=%.2fms p(90)=%.2fms p(95)=%.2fms max=%.2fms\n",
		m.HTTPReqDuration.Avg, m.HTTPReqDuration.Med, m.HTTPReqDuration.P90, m.HTTPReqDuration.P95, m.HTTPReqDuration.Max)
	fmt.Fprintf(w, "http_req_failed....: %.2f%%\n", m.HTTPReqFailed.Rate*100)
	fmt.Fprintf(w, "vus_max............: %d\n", m.VUsMax)
	for _, c := range s.Checks {
		fmt.Fprintf(w, "check %-22q %d passed, %d failed\n", c.Name, c.Passes, c.Fails)
	}
	for _, th := range s.Thresholds {
		mark := "ok"
		if !th.OK {
			mark = "FAILED"
		}
		fmt.Fprintf(w, "threshold %s %s: %s (%.4g)\n", th.Metric, th.Expression, mark, th.Value)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
