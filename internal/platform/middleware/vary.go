package middleware

import (
	"net/http"
	"strings"
)

// Vary returns middleware that lists the given request headers in the Vary
// response header. Values already present (for example Origin, added by the
// CORS middleware) are not repeated.
func Vary(headers ...string) func(http.Handler) http.Handler {
	if len(headers) == 0 {
		headers = []string{"Accept"}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			EnsureVary(w.Header(), headers...)
			next.ServeHTTP(w, r)
		})
	}
}

// EnsureVary appends values to the Vary header, skipping ones already listed.
func EnsureVary(h http.Header, values ...string) {
	seen := make(map[string]struct{})
	for _, line := range h.Values("Vary") {
		for part := range strings.SplitSeq(line, ",") {
			if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
				seen[p] = struct{}{}
			}
		}
	}
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		h.Add("Vary", v)
	}
}
