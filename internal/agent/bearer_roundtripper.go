package agent

import (
	"net/http"
)

// bearerRoundTripper is an HTTP RoundTripper that attaches a captured access
// token to every request it sends
type bearerRoundTripper struct {
	transport http.RoundTripper
	token     string
	logger    *Logger
}

// newBearerRoundTripper creates a RoundTripper that sets "Authorization: Bearer <token>".
// The token is attached verbatim; expiry is left for the receiver to judge.
func newBearerRoundTripper(token string, base http.RoundTripper, logger *Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerRoundTripper{
		transport: base,
		token:     token,
		logger:    logger,
	}
}

// RoundTrip implements the http.RoundTripper interface
func (rt *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())

	if rt.token != "" {
		clonedReq.Header.Set("Authorization", "Bearer "+rt.token)
		rt.logger.InfoVerbose("Attached bearer token to %s %s", clonedReq.Method, clonedReq.URL.Redacted())
	}

	return rt.transport.RoundTrip(clonedReq)
}
