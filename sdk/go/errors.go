package clinicmail

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the clinicmail API
const (
	CodeInvalidRequest   = "invalid_request"
	CodeNotFound         = "not_found"
	CodeEmailTaken       = "email_taken"
	CodeTemplateNotFound = "template_not_found"
	CodeNoPatients       = "no_patients"
	CodeFileTooLarge     = "file_too_large"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeInternal         = "internal_error"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinicmail: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseAPIError decodes the {"error":{...}} envelope. Bodies that are not an
// envelope, such as a proxy's HTML page, keep their text under code "unknown".
func parseAPIError(statusCode int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		return &APIError{StatusCode: statusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Code: "unknown", Message: string(body)}
}

// IsAPIError unwraps err to an *APIError.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode reports whether err is an API error with the given code.
func HasCode(err error, code string) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == code
}

// IsNotFound reports a 404, whether for a patient or an empty patient list.
func IsNotFound(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsRateLimited reports that the server refused a send for exceeding its limit.
func IsRateLimited(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusTooManyRequests
}
