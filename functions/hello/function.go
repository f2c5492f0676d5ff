// Package hello serves the greeting endpoint as an HTTP Cloud Function.
package hello

import (
	"net/http"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
)

const (
	message     = "Hello Java - Quarkus"
	contentType = "text/plain"
)

var body = []byte(message)

func init() {
	functions.HTTP("Hello", helloHandler)
}

// helloHandler answers GET with the fixed plaintext greeting. Query strings
// and request bodies are ignored.
func helloHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
