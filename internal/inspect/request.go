package inspect

import (
	"net/http"
	"sort"
	"strings"
)

const (
	headerAuthorization = "Authorization"
	headerHost          = "Host"
	bearerPrefix        = "Bearer "
)

// Header is a single header line. Repeated headers produce one Header per value.
type Header struct {
	Name  string
	Value string
}

// Request is the part of an inbound HTTP request shown in the report
type Request struct {
	Method      string
	Protocol    string
	Path        string
	QueryString string
	Headers     []Header

	// Authorization holds the raw Authorization header when HasAuthorization is set
	Authorization    string
	HasAuthorization bool
}

// NewRequest captures the displayable parts of r.
//
// Headers are listed Host first, then by name in sorted order, not in the
// order they arrived: net/http does not keep wire order. Values of a repeated
// header keep their arrival order.
func NewRequest(r *http.Request) Request {
	req := Request{
		Method:      r.Method,
		Protocol:    r.Proto,
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
	}

	if r.Host != "" {
		req.Headers = append(req.Headers, Header{Name: headerHost, Value: r.Host})
	}

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range r.Header[name] {
			req.Headers = append(req.Headers, Header{Name: name, Value: value})
		}
	}

	if values := r.Header.Values(headerAuthorization); len(values) > 0 {
		req.Authorization = values[0]
		req.HasAuthorization = true
	}

	return req
}

// BearerToken returns the token carried in the Authorization header.
// The scheme must be the literal "Bearer " prefix; anything else yields false.
func (r Request) BearerToken() (string, bool) {
	if !r.HasAuthorization || !strings.HasPrefix(r.Authorization, bearerPrefix) {
		return "", false
	}
	return r.Authorization[len(bearerPrefix):], true
}
