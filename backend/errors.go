package backend

import (
	"fmt"
	"net/http"
)

// Error is a failure reported by the content API. It exposes the structured
// status the envelope classifier inspects.
type Error struct {
	Status   int
	Code     string
	Message  string
	Resource string
	ID       string
	Details  any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("content API %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("content API %d: %s", e.Status, msg)
}

// StatusCode returns the HTTP status of the failed call.
func (e *Error) StatusCode() int { return e.Status }

// ResourceID returns the identifier the failed call targeted, if known.
func (e *Error) ResourceID() string { return e.ID }

// ErrorDetails returns diagnostic details preserved for the caller.
func (e *Error) ErrorDetails() map[string]any {
	d := map[string]any{"status": e.Status}
	if e.Code != "" {
		d["code"] = e.Code
	}
	if e.Message != "" {
		d["message"] = e.Message
	}
	if e.Resource != "" {
		d["resource"] = e.Resource
	}
	if e.Details != nil {
		d["details"] = e.Details
	}
	return d
}

// NotFound builds the error returned when id does not exist.
func NotFound(resource, id string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: resource + " not found", Resource: resource, ID: id}
}
