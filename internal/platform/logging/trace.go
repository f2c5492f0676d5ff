package logging

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sync"

	"go.uber.org/zap"
)

const (
	traceparentHeader = "traceparent"
	cloudTraceHeader  = "X-Cloud-Trace-Context"
)

// W3C Trace Context format: {version}-{trace-id}-{parent-id}-{trace-flags}
// Example: 00-ab42124a3c573678d4d8b21ba52df3bf-d21f7bc17caa5aba-01
var traceparentRe = regexp.MustCompile(`^([0-9a-fA-F]{2})-([0-9a-fA-F]{32})-([0-9a-fA-F]{16})-([0-9a-fA-F]{2})$`)

// Legacy Google format: TRACE_ID/SPAN_ID;o=OPTIONS, span id in decimal.
var cloudTraceRe = regexp.MustCompile(`^([0-9a-fA-F]{32})/(\d+)(?:;o=([01]))?$`)

var (
	projectIDOnce   sync.Once
	cachedProjectID string
)

type spanContext struct {
	traceID string
	spanID  string
	sampled bool
}

func parseTraceparent(header string) (spanContext, bool) {
	m := traceparentRe.FindStringSubmatch(header)
	if len(m) != 5 {
		return spanContext{}, false
	}
	return spanContext{traceID: m[2], spanID: m[3], sampled: m[4] == "01"}, true
}

func parseCloudTrace(header string) (spanContext, bool) {
	m := cloudTraceRe.FindStringSubmatch(header)
	if len(m) != 4 {
		return spanContext{}, false
	}
	return spanContext{traceID: m[1], spanID: m[2], sampled: m[3] == "1"}, true
}

// spanFromRequest prefers traceparent and falls back to X-Cloud-Trace-Context.
func spanFromRequest(r *http.Request) (spanContext, bool) {
	if sc, ok := parseTraceparent(r.Header.Get(traceparentHeader)); ok {
		return sc, true
	}
	return parseCloudTrace(r.Header.Get(cloudTraceHeader))
}

func (sc spanContext) resource(projectID string) string {
	if projectID == "" || sc.traceID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", projectID, sc.traceID)
}

func (sc spanContext) fields(projectID string) []zap.Field {
	resource := sc.resource(projectID)
	if resource == "" {
		return nil
	}
	return []zap.Field{
		zap.String("logging.googleapis.com/trace", resource),
		zap.String("logging.googleapis.com/spanId", sc.spanID),
		zap.Bool("logging.googleapis.com/trace_sampled", sc.sampled),
	}
}

func loggerWithTrace(base *zap.Logger, sc spanContext, projectID, requestID string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	fields := sc.fields(projectID)
	if requestID != "" {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveProjectID() string {
	projectIDOnce.Do(func() {
		cachedProjectID = firstNonEmpty(
			os.Getenv("GOOGLE_CLOUD_PROJECT"),
			os.Getenv("GCP_PROJECT"),
			os.Getenv("GCLOUD_PROJECT"),
			os.Getenv("PROJECT_ID"),
		)
	})
	return cachedProjectID
}
