package health

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2/negotiation"
	"github.com/fxamacker/cbor/v2"
)

// Data is the payload for the health endpoint.
type Data struct {
	Message string `json:"message"`
}

var (
	healthy    = Data{Message: "healthy"}
	formats    = []string{"application/json", "application/cbor"}
	cborBody   []byte
	cborEncErr error
)

func init() {
	cborBody, cborEncErr = cbor.Marshal(healthy)
}

// Handler is a plain HTTP liveness probe. It sits outside the huma API so
// probes keep working whatever happens to the versioned routes.
func Handler(w http.ResponseWriter, r *http.Request) {
	if cborEncErr == nil && negotiation.SelectQValueFast(r.Header.Get("Accept"), formats) == "application/cbor" {
		w.Header().Set("Content-Type", "application/cbor")
		_, _ = w.Write(cborBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthy)
}
