package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Token endpoint paths, relative to the API base.
const (
	PathLogin   = "auth/token/"
	PathRefresh = "auth/token/refresh/"
	PathVerify  = "auth/token/verify/"
)

// Request describes one API call. The body is kept as bytes so the call can be
// sent a second time after a token refresh.
type Request struct {
	Method string
	// Path is relative to the API base and may carry a query string.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// id is sent as X-Request-ID and shared by the original and the retried call.
	id string
}

// NewRequest returns a body-less request.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: make(http.Header)}
}

// NewJSONRequest returns a request whose body is v encoded as JSON. A nil v
// produces no body.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	req := NewRequest(method, path)
	if v == nil {
		return req, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req.Body = body
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// ID returns the request id, empty until the request is first executed.
func (r *Request) ID() string { return r.id }

// endpoint returns the path without leading slash or query, for matching
// against the token endpoints.
func endpoint(path string) string {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return path
}

// recoverable reports whether a 401 on path may be answered by refreshing. The
// login and refresh calls themselves never are: a 401 there is the final answer.
func recoverable(path string) bool {
	switch endpoint(path) {
	case PathLogin, PathRefresh:
		return false
	}
	return true
}
