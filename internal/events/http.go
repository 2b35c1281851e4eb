package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the resolve endpoint receives a request.
type HTTPStart struct {
	RequestID string
	Method    string
	Path      string
}

// HTTPFinish is emitted after the resolve endpoint wrote its response.
type HTTPFinish struct {
	RequestID string
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
}

// NewHTTPStart builds an HTTPStart from r.
func NewHTTPStart(rid string, r *http.Request) HTTPStart {
	return HTTPStart{RequestID: rid, Method: r.Method, Path: r.URL.Path}
}
