package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/hello-bench/internal/http/v1/hello"
)

// Prefix is the path every versioned operation is mounted under.
const Prefix = "/api"

// Register wires all API operations into the provided router.
func Register(api huma.API) {
	hello.Register(api)
}
