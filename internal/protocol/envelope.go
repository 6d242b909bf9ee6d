package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedRequest = errors.New("protocol: malformed request")
	ErrEmptyBody        = errors.New("protocol: empty request body")
)

// Request is one inbound service request. The correlation ID is opaque:
// whatever JSON value the client sent comes back verbatim on the
// response. An empty Isolate targets root scope.
type Request struct {
	Method  string            `json:"method"`
	Params  map[string]string `json:"params,omitempty"`
	ID      json.RawMessage   `json:"id,omitempty"`
	Isolate string            `json:"isolate,omitempty"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("%w: missing method", ErrMalformedRequest)
	}
	return nil
}

// Param returns a named parameter, "" when absent.
func (r Request) Param(name string) string {
	return r.Params[name]
}

// Response is the single terminal outcome of one request. Exactly one of
// Result and Error is set.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// WireError is the structured error half of a response.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("protocol: code=%d %s", e.Code, e.Message)
}

// Event is one unsolicited stream item, distinguishable from responses
// by the event tag. Isolate is empty for root-scoped events.
type Event struct {
	Event   string          `json:"event"`
	Isolate string          `json:"isolate,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ParseRequest decodes one request envelope.
func ParseRequest(data []byte) (Request, error) {
	if len(data) == 0 {
		return Request{}, ErrEmptyBody
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}
