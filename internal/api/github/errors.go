package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

var (
	// ErrNotFound matches responses for missing releases or repositories.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists matches create requests rejected because the resource exists.
	ErrAlreadyExists = errors.New("already exists")
)

// codeAlreadyExists is the validation code of a duplicate resource.
const codeAlreadyExists = "already_exists"

// APIError is a non-2xx response from the releases API.
// Use errors.Is with ErrNotFound or ErrAlreadyExists to classify it.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int
	// Message is the response message, or the body when it is not JSON.
	Message string
	// Fields lists field-level failures of 422 responses.
	Fields []FieldError
}

// FieldError is one field-level failure, e.g. Release.tag_name already_exists.
type FieldError struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

func (f FieldError) String() string {
	reason := f.Code
	if f.Message != "" {
		reason = f.Message
	}

	return f.Resource + "." + f.Field + ": " + reason
}

func (e *APIError) Error() string {
	message := fmt.Sprintf("releases api: %d %s", e.StatusCode, e.Message)
	if len(e.Fields) == 0 {
		return message
	}

	fields := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		fields = append(fields, field.String())
	}

	return message + " (" + strings.Join(fields, "; ") + ")"
}

// Is classifies the response for errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrAlreadyExists:
		return e.StatusCode == http.StatusUnprocessableEntity &&
			slices.ContainsFunc(e.Fields, func(f FieldError) bool { return f.Code == codeAlreadyExists })
	default:
		return false
	}
}

// newAPIError decodes an error body; bodies that are not JSON become the message.
func newAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var payload struct {
		Message string       `json:"message"`
		Errors  []FieldError `json:"errors"`
	}

	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		apiError.Message = payload.Message
		apiError.Fields = payload.Errors

		return apiError
	}

	apiError.Message = strings.TrimSpace(string(body))
	if apiError.Message == "" {
		apiError.Message = http.StatusText(statusCode)
	}

	return apiError
}
