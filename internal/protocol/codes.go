package protocol

import (
	"encoding/json"
	"fmt"
)

// Machine-readable error codes, JSON-RPC flavored. Every code here is
// recoverable: the dispatcher converts all of them into a structured
// error response and the process keeps running.
const (
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeHandlerFailure     = -32000
	CodeInvalidID          = -32001
	CodeContextUnreachable = -32002
)

// Event kinds pushed on the stream.
const (
	EventEcho    = "echo"
	EventInspect = "inspect"
	EventGraph   = "graph"
)

// ResultResponse builds a success response around v. A value that cannot
// marshal is a handler bug and comes back as a HandlerFailure response
// rather than a half-written result.
func ResultResponse(id json.RawMessage, v any) Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return ErrorResponse(id, CodeHandlerFailure, fmt.Sprintf("result not serializable: %v", err))
	}
	return Response{ID: id, Result: raw}
}

// ErrorResponse builds a structured error response.
func ErrorResponse(id json.RawMessage, code int, message string) Response {
	return Response{ID: id, Error: &WireError{Code: code, Message: message}}
}
