// Package apperr defines the API error taxonomy. Every error that crosses the
// HTTP boundary carries a stable code and status; anything unrecognized is
// surfaced as internal_error and logged with full detail server-side only.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an API-visible error with a stable code and HTTP status.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Canonical error codes.
const (
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeBadRequest        = "bad_request"
	CodeNotFound          = "not_found"
	CodeFileTooLarge      = "file_too_large"
	CodeStorageLimit      = "storage_limit_exceeded"
	CodeUploadLimit       = "upload_limit_exceeded"
	CodeAPIKeyLimit       = "api_key_limit_exceeded"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeGracePeriod       = "grace_period"
	CodeInternal          = "internal_error"
)

func Unauthorized() *Error {
	return &Error{Code: CodeUnauthorized, Status: 401, Message: "Invalid or missing API key"}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Status: 403, Message: message}
}

func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Status: 400, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Status: 404, Message: message}
}

func FileTooLarge(maxSize int64) *Error {
	return &Error{Code: CodeFileTooLarge, Status: 413, Message: fmt.Sprintf("File exceeds maximum size of %s", FormatBytes(maxSize))}
}

func StorageLimit() *Error {
	return &Error{Code: CodeStorageLimit, Status: 413, Message: "Storage limit exceeded"}
}

func UploadLimit() *Error {
	return &Error{Code: CodeUploadLimit, Status: 403, Message: "Monthly upload limit reached. Upgrade your plan for more uploads."}
}

func APIKeyLimit(limit int) *Error {
	return &Error{Code: CodeAPIKeyLimit, Status: 403, Message: fmt.Sprintf("API key limit reached (%d keys). Upgrade your plan for more.", limit)}
}

func RateLimitExceeded() *Error {
	return &Error{Code: CodeRateLimitExceeded, Status: 429, Message: "Rate limit exceeded"}
}

func GracePeriod() *Error {
	return &Error{Code: CodeGracePeriod, Status: 403, Message: "Account is in grace period. Uploads are disabled. Please resubscribe to continue."}
}

func Internal() *Error {
	return &Error{Code: CodeInternal, Status: 500, Message: "An unexpected error occurred"}
}

// From converts any error to an *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal()
}

// Write renders the error as the API's JSON error envelope.
func Write(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": e.Code, "message": e.Message},
	})
}

// FormatBytes renders a byte count for error messages.
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%d KB", bytes/1024)
	}
	return fmt.Sprintf("%d MB", bytes/(1024*1024))
}
