package mcpserver

import (
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const sessionIDHeader = "Mcp-Session-Id"

// DualTransportHandler serves streamable HTTP and legacy SSE clients on
// the same path.
type DualTransportHandler struct {
	streamable *mcp.StreamableHTTPHandler
	sse        *mcp.SSEHandler
}

// NewDualTransportHandler creates a new DualTransportHandler.
func NewDualTransportHandler(getServer func(*http.Request) *mcp.Server) *DualTransportHandler {
	return &DualTransportHandler{
		streamable: mcp.NewStreamableHTTPHandler(getServer, nil),
		sse:        mcp.NewSSEHandler(getServer, nil),
	}
}

func (h *DualTransportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Query().Has("sessionid"):
		// SSE message post for an open session
		h.sse.ServeHTTP(w, r)
	case r.Method == http.MethodGet && r.Header.Get(sessionIDHeader) == "" && acceptsEventStream(r):
		// Streamable sessions open their GET stream with a session header.
		h.sse.ServeHTTP(w, r)
	default:
		h.streamable.ServeHTTP(w, r)
	}
}

func acceptsEventStream(r *http.Request) bool {
	for _, value := range r.Header.Values("Accept") {
		for _, candidate := range strings.Split(value, ",") {
			mediaType := strings.TrimSpace(strings.SplitN(candidate, ";", 2)[0])
			if mediaType == "text/event-stream" || mediaType == "*/*" {
				return true
			}
		}
	}
	return false
}
