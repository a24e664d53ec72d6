// Package capture defines the data model for captured HTTP exchanges and
// the storage backends that hold them.
package capture

import (
	"sort"
	"strings"
	"time"
)

// Request is one captured HTTP request.
type Request struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Path        string            `json:"path"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	BodyDecoded string            `json:"body_decoded,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Host        string            `json:"host"`
	Port        int               `json:"port"`
	Scheme      string            `json:"scheme"`
}

// Response is the response paired with a captured request, when one was seen.
type Response struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	BodyDecoded string            `json:"body_decoded,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	ElapsedMS   float64           `json:"response_time_ms"`
}

// Exchange is a captured request and its optional response. The analysis
// engine treats exchanges as immutable input.
type Exchange struct {
	Request  Request   `json:"request"`
	Response *Response `json:"response,omitempty"`
}

// Header returns a request header by name, case-insensitively.
// Captured header maps preserve whatever casing the client sent.
func (r *Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HasHeader reports whether a request header is present, case-insensitively.
func (r *Request) HasHeader(name string) bool {
	if _, ok := r.Headers[name]; ok {
		return true
	}
	for k := range r.Headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// Status returns the response status code, or 0 when no response was captured.
func (e *Exchange) Status() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// SortChronological orders exchanges oldest first. Stores may return
// exchanges in either direction, so anything order-sensitive resorts.
func SortChronological(exchanges []Exchange) {
	sort.SliceStable(exchanges, func(i, j int) bool {
		return exchanges[i].Request.Timestamp.Before(exchanges[j].Request.Timestamp)
	})
}
