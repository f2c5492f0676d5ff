package hello

// Message is the fixed greeting returned by GET /hello. It never varies.
const Message = "Hello Java - Quarkus"

// ContentType is the media type of the greeting body.
const ContentType = "text/plain"

// GetOutput carries the raw greeting bytes. huma writes []byte bodies as-is,
// bypassing content negotiation.
type GetOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}
