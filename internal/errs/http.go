package errs

import (
	"errors"
	"net/http"
	"strings"
)

// FieldError is a field-level validation error.
//
//	{ "field": "number", "error": "is required" }
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ActionType is a string-based enum describing what the client should do.
type ActionType string

const (
	// ActionTypeRedirect tells the client to navigate to Action.Value.
	ActionTypeRedirect ActionType = "redirect"
)

// Action is an optional "what to do next" hint for the client.
type Action struct {
	Type    ActionType `json:"type"`
	Message string     `json:"message"`
	Value   string     `json:"value"`
}

// HTTPError is the error type rendered to API clients as JSON.
//
//   - Code: machine-friendly code (e.g. "SEASON_ALREADY_EXISTS").
//   - Message: human-friendly message.
//   - Status: HTTP status code.
//   - Override: the message is safe to show verbatim to end users.
//   - Errors: per-field validation errors.
//   - Action: optional client instruction.
type HTTPError struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Status   int          `json:"status"`
	Override bool         `json:"override"`
	Errors   []FieldError `json:"errors"`
	Action   *Action      `json:"action"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is reports whether target is also an *HTTPError. It does not compare
// codes; use StatusOf or the Is* helpers for that.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)
	return ok
}

// MakeUpperCaseWithUnderscores turns "Bad Request" into "BAD_REQUEST".
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an
// *HTTPError anywhere in its chain.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err is a 404 HTTPError.
func IsNotFound(err error) bool {
	return err != nil && StatusOf(err) == http.StatusNotFound
}

// IsConflict reports whether err is a 409 HTTPError.
func IsConflict(err error) bool {
	return err != nil && StatusOf(err) == http.StatusConflict
}

// IsValidation reports whether err is a 400 HTTPError.
func IsValidation(err error) bool {
	return err != nil && StatusOf(err) == http.StatusBadRequest
}
