package hello

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	applog "github.com/janisto/hello-bench/internal/platform/logging"
)

const operationID = "get-hello"

// body is shared by every response; writers never modify it.
var body = []byte(Message)

// Register wires the greeting route into the provided API router.
func Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: operationID,
		Method:      http.MethodGet,
		Path:        "/hello",
		Summary:     "Get the static greeting",
		Description: "Returns a fixed plaintext greeting. Used as a latency benchmark target.",
		Tags:        []string{"Hello"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Greeting",
				Content: map[string]*huma.MediaType{
					ContentType: {
						Schema: &huma.Schema{Type: huma.TypeString, Examples: []any{Message}},
					},
				},
			},
		},
	}, getHandler)
}

func getHandler(ctx context.Context, _ *struct{}) (*GetOutput, error) {
	applog.LogDebug(ctx, "hello served", zap.String("operation", operationID))
	return &GetOutput{ContentType: ContentType, Body: body}, nil
}
