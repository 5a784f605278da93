package middleware

import (
	"net/http"
	"time"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggerMiddleware logs every request at debug level.
func LoggerMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.RequestURI()).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}

// RequestLogger records API-key requests to the request log, fire-and-forget.
// The error code is derived from the response status.
func RequestLogger(logSvc service.RequestLogService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			key, ok := APIKeyFromContext(r.Context())
			if !ok {
				return
			}

			entry := model.RequestLog{
				UserID:         key.UserID,
				APIKeyID:       key.ID,
				Method:         r.Method,
				Endpoint:       r.URL.Path,
				StatusCode:     rec.status,
				ResponseTimeMs: time.Since(start).Milliseconds(),
			}
			if code := errorCodeForStatus(rec.status); code != "" {
				entry.ErrorCode = &code
			}
			if size := r.ContentLength; size > 0 {
				entry.FileSizeBytes = &size
			}
			if ip := clientIP(r); ip != "" {
				entry.IPAddress = &ip
			}
			logSvc.Record(entry)
		})
	}
}

// errorCodeForStatus maps a response status to the taxonomy code most likely
// to have produced it. Empty for successes.
func errorCodeForStatus(status int) string {
	switch {
	case status < 400:
		return ""
	case status == http.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case status == http.StatusForbidden:
		return apperr.CodeForbidden
	case status == http.StatusNotFound:
		return apperr.CodeNotFound
	case status == http.StatusRequestEntityTooLarge:
		return apperr.CodeFileTooLarge
	case status == http.StatusTooManyRequests:
		return apperr.CodeRateLimitExceeded
	case status < 500:
		return apperr.CodeBadRequest
	default:
		return apperr.CodeInternal
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
