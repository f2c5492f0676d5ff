// Package loadtest drives an HTTP endpoint with a staged virtual-user profile
// and evaluates latency and failure thresholds over the collected samples.
package loadtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Stage ramps the virtual-user count linearly from the previous stage's
// target to Target over Duration. The first stage starts from zero.
type Stage struct {
	Duration time.Duration
	Target   int
}

func (s Stage) String() string {
	return fmt.Sprintf("%s:%d", s.Duration, s.Target)
}

// stageJSON is the wire form of Stage, e.g. {"duration":"5s","target":5000}.
type stageJSON struct {
	Duration string `json:"duration"`
	Target   int    `json:"target"`
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(stageJSON{Duration: s.Duration.String(), Target: s.Target})
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw stageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := time.ParseDuration(raw.Duration)
	if err != nil {
		return fmt.Errorf("stage duration: %w", err)
	}
	s.Duration = d
	s.Target = raw.Target
	return nil
}

// DefaultStages is the benchmark profile: ramp to 5000, hold, ramp to 9000,
// then drop to zero.
func DefaultStages() []Stage {
	return []Stage{
		{Duration: 5 * time.Second, Target: 5000},
		{Duration: 10 * time.Second, Target: 5000},
		{Duration: 10 * time.Second, Target: 9000},
		{Duration: 1 * time.Second, Target: 0},
	}
}

// ParseStage parses "<duration>:<target>", e.g. "10s:100".
func ParseStage(s string) (Stage, error) {
	d, t, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Stage{}, fmt.Errorf("stage %q: expected <duration>:<target>", s)
	}
	dur, err := time.ParseDuration(d)
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: %w", s, err)
	}
	if dur <= 0 {
		return Stage{}, fmt.Errorf("stage %q: duration must be positive", s)
	}
	target, err := strconv.Atoi(t)
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: %w", s, err)
	}
	if target < 0 {
		return Stage{}, fmt.Errorf("stage %q: target must not be negative", s)
	}
	return Stage{Duration: dur, Target: target}, nil
}

// ParseStages parses every entry, joining all errors.
func ParseStages(specs []string) ([]Stage, error) {
	stages := make([]Stage, 0, len(specs))
	var errs []error
	for _, spec := range specs {
		st, err := ParseStage(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		stages = append(stages, st)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return stages, nil
}

// TotalDuration is the sum of all stage durations.
func TotalDuration(stages []Stage) time.Duration {
	var total time.Duration
	for _, st := range stages {
		total += st.Duration
	}
	return total
}

// TargetAt returns the interpolated virtual-user count at elapsed. Past the
// last stage it returns zero.
func TargetAt(stages []Stage, elapsed time.Duration) int {
	from := 0
	for _, st := range stages {
		if elapsed < st.Duration {
			frac := float64(elapsed) / float64(st.Duration)
			return int(math.Round(float64(from) + frac*float64(st.Target-from)))
		}
		elapsed -= st.Duration
		from = st.Target
	}
	return 0
}

// MaxTarget is the highest virtual-user count any stage reaches.
func MaxTarget(stages []Stage) int {
	highest := 0
	for _, st := range stages {
		highest = max(highest, st.Target)
	}
	return highest
}
