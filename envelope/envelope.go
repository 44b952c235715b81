// Package envelope defines the uniform response returned by every content
// operation and the closed error taxonomy used to classify failures.
//
// Every dispatch ends in exactly one Envelope: either Success with data, or a
// failure carrying an ErrorBody whose Code is one of the Kind constants. Raw
// transport errors never leave the dispatch core; they are funnelled through
// Classify and FromError first.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of error codes surfaced to callers.
type Kind string

const (
	KindUnauthorized      Kind = "Unauthorized"
	KindNotFound          Kind = "NotFound"
	KindValidationFailed  Kind = "ValidationFailed"
	KindBulkLimitExceeded Kind = "BulkLimitExceeded"
	KindRemoteFailure     Kind = "RemoteFailure"
	KindInternal          Kind = "Internal"
)

// Kinds lists every Kind in taxonomy order.
var Kinds = []Kind{
	KindUnauthorized,
	KindNotFound,
	KindValidationFailed,
	KindBulkLimitExceeded,
	KindRemoteFailure,
	KindInternal,
}

// Valid reports whether k belongs to the taxonomy.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Envelope is the response wrapper. Exactly one of Data and Error is set.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error half of an Envelope.
type ErrorBody struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// empty stands in for operations that succeed without a payload so that a
// successful envelope always carries data.
type empty struct{}

// Success wraps data in a successful envelope. A nil payload is replaced with
// an empty object.
func Success(data any) Envelope {
	if data == nil {
		data = empty{}
	}
	return Envelope{Success: true, Data: data}
}

// Failure builds an error envelope. Unknown kinds are coerced to KindInternal
// and an empty message is replaced by the kind name.
func Failure(kind Kind, message string, details any) Envelope {
	if !kind.Valid() {
		kind = KindInternal
	}
	if strings.TrimSpace(message) == "" {
		message = string(kind)
	}
	return Envelope{Error: &ErrorBody{Code: kind, Message: message, Details: details}}
}

// Failuref is Failure with a formatted message and no details.
func Failuref(kind Kind, format string, args ...any) Envelope {
	return Failure(kind, fmt.Sprintf(format, args...), nil)
}

// Code returns the error code of a failed envelope, or "" on success.
func (e Envelope) Code() Kind {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

// Check verifies the exactly-one-of invariant.
func (e Envelope) Check() error {
	switch {
	case e.Success && e.Error != nil:
		return fmt.Errorf("envelope: success with error %q", e.Error.Code)
	case e.Success && e.Data == nil:
		return fmt.Errorf("envelope: success without data")
	case !e.Success && e.Error == nil:
		return fmt.Errorf("envelope: failure without error")
	case !e.Success && e.Data != nil:
		return fmt.Errorf("envelope: failure with data")
	}
	return nil
}

// JSON renders the envelope as compact JSON. Payloads that cannot be encoded
// are reported as an Internal failure rather than dropped.
func (e Envelope) JSON() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		fallback, _ := json.Marshal(Failuref(KindInternal, "encode response: %v", err))
		return fallback
	}
	return b
}

// Map renders the envelope as a generic JSON object, suitable for structured
// tool output.
func (e Envelope) Map() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(e.JSON(), &m); err != nil {
		return map[string]any{"success": false}
	}
	return m
}
