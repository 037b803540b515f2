package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed OData call into the gateway's taxonomy.
type ErrorKind int

const (
	// KindGeneric covers protocol-level failures with no specific class,
	// including errors embedded in 200 responses.
	KindGeneric ErrorKind = iota
	// KindValidation marks bad caller input caught before any network I/O.
	KindValidation
	// KindAuthentication maps 401-class failures.
	KindAuthentication
	// KindAuthorization maps 403-class failures, including CSRF handshake
	// permission errors.
	KindAuthorization
	// KindNotFound maps 404-class failures.
	KindNotFound
	// KindServer maps 5xx-class failures and timeouts.
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	default:
		return "generic"
	}
}

// APIError is the single error type surfaced for remote-call failures.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// ErrorKindOf extracts the taxonomy kind from err, or KindGeneric if err is
// not an APIError.
func ErrorKindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindGeneric
}

// StatusCodeOf extracts the HTTP status from err, defaulting to 500 for
// unclassified failures.
func StatusCodeOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return apiErr.StatusCode
	}
	return 500
}

func newValidationError(format string, args ...interface{}) *APIError {
	return &APIError{Kind: KindValidation, StatusCode: 400, Message: fmt.Sprintf(format, args...)}
}

// classifyStatus maps an HTTP error status to the taxonomy, attaching the
// extracted error detail.
func classifyStatus(statusCode int, detail string) *APIError {
	switch {
	case statusCode == 401:
		if detail == "" {
			detail = "Invalid credentials"
		}
		return &APIError{Kind: KindAuthentication, StatusCode: statusCode, Message: "Authentication failed: " + detail, Detail: detail}
	case statusCode == 403:
		if detail == "" {
			detail = "Insufficient permissions"
		}
		return &APIError{Kind: KindAuthorization, StatusCode: statusCode, Message: "Authorization failed: " + detail, Detail: detail}
	case statusCode == 404:
		if detail == "" {
			detail = "Invalid service path or entity set"
		}
		return &APIError{Kind: KindNotFound, StatusCode: statusCode, Message: "Resource not found: " + detail, Detail: detail}
	case statusCode >= 500:
		if detail == "" {
			detail = "Internal server error"
		}
		return &APIError{Kind: KindServer, StatusCode: statusCode, Message: "Server error: " + detail, Detail: detail}
	default:
		return &APIError{Kind: KindGeneric, StatusCode: statusCode, Message: fmt.Sprintf("HTTP error %d: %s", statusCode, detail), Detail: detail}
	}
}

// classifyEmbedded classifies an error message found inside a 200 response
// by scanning it for status-like substrings. Both protocol generations
// report failures this way.
func classifyEmbedded(message string) *APIError {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "404", "not found", "not published"):
		return &APIError{Kind: KindNotFound, StatusCode: 404, Message: "API error: " + message, Detail: message}
	case containsAny(lower, "403", "forbidden", "access denied"):
		return &APIError{Kind: KindAuthorization, StatusCode: 403, Message: "API error: " + message, Detail: message}
	case containsAny(lower, "401", "unauthorized"):
		return &APIError{Kind: KindAuthentication, StatusCode: 401, Message: "API error: " + message, Detail: message}
	default:
		return &APIError{Kind: KindGeneric, StatusCode: 200, Message: "API error: " + message, Detail: message}
	}
}

func containsAny(s string, patterns ...string) bool {
	for _, pattern := range patterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}
