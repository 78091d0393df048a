package papercut

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"regexp"
	"strconv"
	"strings"
)

// ErrorCategory represents different categories of remote API errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// ErrCallTimeout is reported when a single remote call exceeds the configured
// per-call timeout while the caller's context is still live.
var ErrCallTimeout = errors.New("remote call timed out")

// APIError provides enhanced error information for remote API operations.
type APIError struct {
	Operation  string        // The operation that failed
	Category   ErrorCategory // Error category
	FaultCode  int           // XML-RPC fault code, if the server answered with a fault
	HTTPStatus int           // HTTP status, if the server answered with a non-2xx status
	Message    string        // Human-readable message
	Login      string        // Account involved in the operation (if applicable)
	Retryable  bool          // Whether the error is retryable
	Cause      error         // Underlying error
}

func (e *APIError) Error() string {
	var parts []string

	switch {
	case e.FaultCode != 0:
		parts = append(parts, fmt.Sprintf("papercut %s failed (fault %d)", e.Operation, e.FaultCode))
	case e.HTTPStatus != 0:
		parts = append(parts, fmt.Sprintf("papercut %s failed (HTTP %d)", e.Operation, e.HTTPStatus))
	default:
		parts = append(parts, fmt.Sprintf("papercut %s failed", e.Operation))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.Login != "" {
		parts = append(parts, fmt.Sprintf("login: %s", e.Login))
	}

	return strings.Join(parts, " - ")
}

func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// StatusError is produced by the transport for non-2xx HTTP responses.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.Status)
}

var faultPattern = regexp.MustCompile(`^Fault\((-?\d+)\):\s*(.*)$`)

// NewAPIError classifies err as returned by the transport.
func NewAPIError(operation string, err error) *APIError {
	if err == nil {
		return nil
	}

	apiErr := &APIError{
		Operation: operation,
		Cause:     err,
	}

	var statusErr *StatusError
	var serverErr rpc.ServerError

	switch {
	case errors.Is(err, ErrCallTimeout):
		apiErr.Category = ErrorCategoryConnection
		apiErr.Retryable = true
		apiErr.Message = err.Error()

	case errors.As(err, &statusErr):
		apiErr.HTTPStatus = statusErr.StatusCode
		apiErr.Category, apiErr.Retryable = categorizeStatus(statusErr.StatusCode)
		apiErr.Message = statusErr.Error()

	case errors.As(err, &serverErr):
		code, msg := parseFault(string(serverErr))
		apiErr.FaultCode = code
		apiErr.Message = msg
		apiErr.Category = categorizeFault(msg)
		apiErr.Retryable = apiErr.Category == ErrorCategoryServer

	case errors.Is(err, rpc.ErrShutdown):
		apiErr.Category = ErrorCategoryConnection
		apiErr.Retryable = true
		apiErr.Message = err.Error()

	default:
		apiErr.Category = categorizeGenericError(err)
		apiErr.Retryable = isGenericErrorRetryable(err)
		apiErr.Message = err.Error()
	}

	return apiErr
}

// WrapError wraps an error with operation context. Context errors pass
// through untouched so callers can recognise cancellation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Operation == "" {
			apiErr.Operation = operation
		}
		return apiErr
	}

	return NewAPIError(operation, err)
}

func withLogin(err error, login string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Login == "" {
		apiErr.Login = login
	}
	return err
}

func parseFault(s string) (int, string) {
	m := faultPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, s
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, m[2]
	}
	return code, m[2]
}

func categorizeStatus(code int) (ErrorCategory, bool) {
	switch {
	case code == 401:
		return ErrorCategoryAuthentication, false
	case code == 403:
		return ErrorCategoryPermission, false
	case code == 404:
		return ErrorCategoryNotFound, false
	case code == 408 || code == 429:
		return ErrorCategoryServer, true
	case code >= 500:
		return ErrorCategoryServer, true
	default:
		return ErrorCategoryValidation, false
	}
}

// categorizeFault categorizes a server fault by its message. Any fault that
// matches nothing is treated as a validation failure.
func categorizeFault(msg string) ErrorCategory {
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, "already exists", "duplicate"):
		return ErrorCategoryConflict
	case containsAny(lower, "does not exist", "not found", "unknown user", "no such"):
		return ErrorCategoryNotFound
	case containsAny(lower, "authentication", "auth token", "invalid token", "not authorised", "not authorized"):
		return ErrorCategoryAuthentication
	case containsAny(lower, "permission", "access denied"):
		return ErrorCategoryPermission
	case containsAny(lower, "temporarily unavailable", "busy", "try again", "timeout", "timed out"):
		return ErrorCategoryServer
	default:
		return ErrorCategoryValidation
	}
}

// categorizeGenericError categorizes transport-level errors.
func categorizeGenericError(err error) ErrorCategory {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorCategoryConnection
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, "connection", "network", "timeout", "broken pipe", "eof", "no such host") {
		return ErrorCategoryConnection
	}

	if containsAny(errStr, "authentication", "credentials") {
		return ErrorCategoryAuthentication
	}

	return ErrorCategoryUnknown
}

// isGenericErrorRetryable determines if a transport-level error is retryable.
func isGenericErrorRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"connection",
		"timeout",
		"network",
		"broken pipe",
		"connection reset",
		"unexpected eof",
		"temporary failure",
		"temporarily unavailable",
	}

	return containsAny(errStr, retryablePatterns...)
}

func containsAny(s string, patterns ...string) bool {
	for _, pattern := range patterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}

	return categorizeGenericError(err)
}

// IsNotFoundError checks if an error indicates a "not found" condition.
func IsNotFoundError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsConflictError checks if an error indicates a conflict (already exists).
func IsConflictError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryConflict
}

// IsAuthenticationError checks if an error indicates an authentication problem.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// IsPermissionError checks if an error indicates a permission problem.
func IsPermissionError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryPermission
}
