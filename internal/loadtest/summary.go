package loadtest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/janisto/hello-bench/internal/platform/timeutil"
)

// Check names recorded for every iteration.
const (
	CheckStatusOK     = "status is 200"
	CheckResponseTime = "response time < 500ms"
)

// Threshold limits.
const (
	MaxP95Duration = 500 * time.Millisecond
	MaxFailureRate = 0.01
)

// TrendStats summarises a duration series in milliseconds.
type TrendStats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Med float64 `json:"med"`
	Max float64 `json:"max"`
	P90 float64 `json:"p(90)"`
	P95 float64 `json:"p(95)"`
}

// RateStats counts how many samples matched (Passes) versus not (Fails).
type RateStats struct {
	Rate   float64 `json:"rate"`
	Passes int64   `json:"passes"`
	Fails  int64   `json:"fails"`
}

// CounterStats is a total plus its per-second rate over the run.
type CounterStats struct {
	Count int64   `json:"count"`
	Rate  float64 `json:"rate"`
}

// Metrics mirrors the well-known load-test metric names.
type Metrics struct {
	HTTPReqDuration TrendStats   `json:"http_req_duration"`
	HTTPReqFailed   RateStats    `json:"http_req_failed"`
	HTTPReqs        CounterStats `json:"http_reqs"`
	Iterations      CounterStats `json:"iterations"`
	VUsMax          int          `json:"vus_max"`
}

// CheckResult aggregates one named check across all iterations.
type CheckResult struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// ThresholdResult records whether a metric stayed within its limit.
type ThresholdResult struct {
	Metric     string  `json:"metric"`
	Expression string  `json:"expression"`
	Value      float64 `json:"value"`
	OK         bool    `json:"ok"`
}

// Summary is the result of one run, written as JSON at the end.
type Summary struct {
	RunID      string            `json:"runId"`
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	StartedAt  timeutil.Time     `json:"startedAt"`
	Duration   float64           `json:"durationSeconds"`
	Stages     []Stage           `json:"stages"`
	Metrics    Metrics           `json:"metrics"`
	Checks     []CheckResult     `json:"checks"`
	Thresholds []ThresholdResult `json:"thresholds"`
}

// Passed reports whether every threshold held.
func (s *Summary) Passed() bool {
	for _, th := range s.Thresholds {
		if !th.OK {
			return false
		}
	}
	return true
}

// WriteSummary writes s to dir/summary-<name>.json and returns the path.
func WriteSummary(dir string, s *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	path := filepath.Join(dir, "summary-"+s.Name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// sample is one completed request.
type sample struct {
	duration time.Duration
	status   int
	err      error
}

func (s sample) failed() bool {
	return s.err != nil || s.status < 200 || s.status >= 400
}

// recorder collects samples from all virtual users.
type recorder struct {
	mu         sync.Mutex
	durations  []float64
	failed     int64
	iterations int64
	checks     [2]CheckResult
}

func newRecorder() *recorder {
	return &recorder{
		checks: [2]CheckResult{{Name: CheckStatusOK}, {Name: CheckResponseTime}},
	}
}

func (r *recorder) record(s sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.iterations++
	r.durations = append(r.durations, float64(s.duration)/float64(time.Millisecond))
	if s.failed() {
		r.failed++
	}
	tally(&r.checks[0], s.err == nil && s.status == 200)
	tally(&r.checks[1], s.duration < MaxP95Duration)
}

func tally(c *CheckResult, ok bool) {
	if ok {
		c.Passes++
	} else {
		c.Fails++
	}
}

// summarize fills the metric, check and threshold sections of s.
func (r *recorder) summarize(s *Summary, elapsed time.Duration, vusMax int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := slices.Clone(r.durations)
	slices.Sort(sorted)
	total := int64(len(sorted))

	s.Duration = elapsed.Seconds()
	s.Metrics = Metrics{
		HTTPReqDuration: trend(sorted),
		HTTPReqFailed: RateStats{
			Rate:   ratio(r.failed, total),
			Passes: r.failed,
			Fails:  total - r.failed,
		},
		HTTPReqs:   CounterStats{Count: total, Rate: perSecond(total, elapsed)},
		Iterations: CounterStats{Count: r.iterations, Rate: perSecond(r.iterations, elapsed)},
		VUsMax:     vusMax,
	}
	s.Checks = slices.Clone(r.checks[:])
	s.Thresholds = evaluate(s.Metrics)
}

func evaluate(m Metrics) []ThresholdResult {
	p95Limit := float64(MaxP95Duration) / float64(time.Millisecond)
	return []ThresholdResult{
		{
			Metric:     "http_req_duration",
			Expression: fmt.Sprintf("p(95)<%g", p95Limit),
			Value:      m.HTTPReqDuration.P95,
			OK:         m.HTTPReqDuration.P95 < p95Limit,
		},
		{
			Metric:     "http_req_failed",
			Expression: fmt.Sprintf("rate<%g", MaxFailureRate),
			Value:      m.HTTPReqFailed.Rate,
			OK:         m.HTTPReqFailed.Rate < MaxFailureRate,
		},
	}
}

func trend(sorted []float64) TrendStats {
	if len(sorted) == 0 {
		return TrendStats{}
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return TrendStats{
		Avg: sum / float64(len(sorted)),
		Min: sorted[0],
		Med: percentile(sorted, 50),
		Max: sorted[len(sorted)-1],
		P90: percentile(sorted, 90),
		P95: percentile(sorted, 95),
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}

func ratio(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func perSecond(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}
