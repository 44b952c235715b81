// Package jsonrpc holds the JSON-RPC 2.0 message types spoken by the MCP
// transports.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// AnyMessage is a generic JSON-RPC message (request, notification, or response).
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// Response represents a JSON-RPC response.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// Notification builds a server-initiated notification.
func Notification(method string, params any) (*Request, error) {
	req := &Request{JSONRPCVersion: ProtocolVersion, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = b
	}
	return req, nil
}

// Decode parses one framed message. Syntax errors are reported with
// ErrorCodeParseError; well-formed JSON that is not a JSON-RPC 2.0 message is
// reported with ErrorCodeInvalidRequest. The ID is returned whenever it could
// be recovered so that the caller can address the error response.
func Decode(data []byte) (*AnyMessage, *Error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, NewError(ErrorCodeParseError, "parse error")
	}
	var m AnyMessage
	if err := json.Unmarshal(data, &m); err != nil {
		var probe struct {
			ID *RequestID `json:"id"`
		}
		_ = json.Unmarshal(data, &probe)
		return &AnyMessage{ID: probe.ID}, NewError(ErrorCodeInvalidRequest, "invalid request: %v", err)
	}
	return &m, nil
}

// UnmarshalJSON enforces JSON-RPC 2.0 message structure.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type raw AnyMessage
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	if r.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("expected jsonrpc %q, got %q", ProtocolVersion, r.JSONRPCVersion)
	}

	hasResult := len(r.Result) > 0
	hasError := r.Error != nil
	switch {
	case r.Method != "" && (hasResult || hasError):
		return fmt.Errorf("request cannot carry result or error")
	case r.Method == "" && hasResult && hasError:
		return fmt.Errorf("response cannot carry both result and error")
	case r.Method == "" && !hasResult && !hasError:
		return fmt.Errorf("message has neither method nor result")
	}

	*m = AnyMessage(r)
	return nil
}

// Type returns "request", "notification" or "response".
func (m *AnyMessage) Type() string {
	if m.Method != "" {
		if m.ID.IsNil() {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// AsRequest returns the message as a Request if it is a request or
// notification, otherwise nil.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{
		JSONRPCVersion: m.JSONRPCVersion,
		Method:         m.Method,
		Params:         m.Params,
		ID:             m.ID,
	}
}

// AsResponse returns the message as a Response if it is a response,
// otherwise nil.
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}
	return &Response{
		JSONRPCVersion: m.JSONRPCVersion,
		Result:         m.Result,
		Error:          m.Error,
		ID:             m.ID,
	}
}
