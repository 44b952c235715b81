package envelope

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UnauthorizedMessage is the fixed explanation returned for every credential
// rejection.
const UnauthorizedMessage = "The content backend rejected the API token. Check that apiToken is valid, has not been revoked, and has access to the requested environment."

// Issue is a single validation problem. Path is never empty; failures that
// are not attributable to a property use "input".
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports argument issues found before any remote call.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid arguments"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Message)
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// Error is a failure that has already been assigned a Kind. Classify returns
// its Kind unchanged.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// statusCoder is implemented by backend errors that carry an HTTP-like status.
type statusCoder interface {
	StatusCode() int
}

// detailer is implemented by backend errors that expose diagnostic details.
type detailer interface {
	ErrorDetails() map[string]any
}

// resourceIdentifier is implemented by backend errors that know which
// identifier was being looked up.
type resourceIdentifier interface {
	ResourceID() string
}

// Classify maps an arbitrary failure onto the taxonomy. Precedence:
// pre-classified errors, structured status (401/403, then 404, any other
// status is RemoteFailure), validation results, message signals for
// unstructured errors (authorization, then not-found), and finally
// RemoteFailure for anything else.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var ce *Error
	if errors.As(err, &ce) && ce.Kind.Valid() {
		return ce.Kind
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindUnauthorized
		case http.StatusNotFound:
			return KindNotFound
		}
		if sc.StatusCode() > 0 {
			return KindRemoteFailure
		}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidationFailed
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid_authorization", "invalid api token"):
		return KindUnauthorized
	case containsAny(msg, "404", "not found", "not_found"):
		return KindNotFound
	}
	return KindRemoteFailure
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Target names what an operation was acting on. It feeds the not-found
// message.
type Target struct {
	Entity string
	ID     string
}

// FromError classifies err and renders the matching error envelope with the
// stable message for its kind.
func FromError(err error, target Target) Envelope {
	if err == nil {
		return Failure(KindInternal, "operation failed without an error", nil)
	}
	kind := Classify(err)
	switch kind {
	case KindUnauthorized:
		return Failure(kind, UnauthorizedMessage, remoteDetails(err))

	case KindNotFound:
		return Failure(kind, notFoundMessage(err, target), remoteDetails(err))

	case KindValidationFailed:
		var ve *ValidationError
		if errors.As(err, &ve) {
			return Validation(ve.Issues)
		}
		return Failure(kind, err.Error(), nil)

	case KindRemoteFailure:
		return Failure(kind, err.Error(), remoteDetails(err))

	default:
		var ce *Error
		if errors.As(err, &ce) {
			return Failure(kind, ce.Error(), ce.Details)
		}
		return Failure(kind, err.Error(), nil)
	}
}

// Validation renders a ValidationFailed envelope for the given issues.
func Validation(issues []Issue) Envelope {
	if len(issues) == 0 {
		issues = []Issue{{Path: "input", Message: "invalid arguments"}}
	}
	msg := (&ValidationError{Issues: issues}).Error()
	return Failure(KindValidationFailed, msg, map[string]any{"issues": issues})
}

func notFoundMessage(err error, target Target) string {
	id := target.ID
	if id == "" {
		var ri resourceIdentifier
		if errors.As(err, &ri) {
			id = ri.ResourceID()
		}
	}
	entity := target.Entity
	if entity == "" {
		entity = "Resource"
	}
	if id == "" {
		return fmt.Sprintf("%s not found.", entity)
	}
	return fmt.Sprintf("%s with id %q not found.", entity, id)
}

func remoteDetails(err error) any {
	var d detailer
	if errors.As(err, &d) {
		if m := d.ErrorDetails(); len(m) > 0 {
			return m
		}
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Details != nil {
		return ce.Details
	}
	return map[string]any{"message": err.Error()}
}
