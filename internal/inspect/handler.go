package inspect

import (
	"html"
	"net/http"

	"github.com/google/uuid"
)

// DefaultEndpointName is the path segment the handler is mounted under
const DefaultEndpointName = "HttpCallDetailsViewer"

// Logger receives the rendered report of every request
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Handler serves inspection reports. It never rejects a request.
type Handler struct {
	logger Logger
}

// NewHandler creates a handler. A nil logger disables the diagnostic trail.
func NewHandler(logger Logger) *Handler {
	return &Handler{logger: logger}
}

// Route returns the mux pattern for the given endpoint name
func Route(endpointName string) string {
	if endpointName == "" {
		endpointName = DefaultEndpointName
	}
	return "POST /api/" + endpointName
}

// NewMux mounts the handler on a fresh ServeMux
func NewMux(endpointName string, logger Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(Route(endpointName), NewHandler(logger))
	return mux
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := NewReport(NewRequest(r))

	body, err := report.Render()
	if err != nil {
		// The report is the response; fall back to the plain fields.
		if h.logger != nil {
			h.logger.Error("Rendering report failed: %v", err)
		}
		body = []byte("<pre>" + html.EscapeString(report.HeaderBlock()+"\n\nToken: "+report.Token+"\nDecoded: "+report.Decoded) + "</pre>")
	}

	if h.logger != nil {
		h.logger.Info("Received request %s. Details: %s", uuid.NewString(), body)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
