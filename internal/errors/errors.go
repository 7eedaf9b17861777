// Package errors builds gofulmen error envelopes for octolens, maps GitHub
// client errors onto them and writes them as JSON responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/github"
	"github.com/namelens/octolens/internal/metrics"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/server/middleware"
)

// Error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// New creates an envelope with the given code.
func New(code, message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(code, message)
}

// User Errors (400-level)
func NewInvalidInputError(message string) *errors.ErrorEnvelope { return New(CodeInvalidInput, message) }

func NewNotFoundError(message string) *errors.ErrorEnvelope { return New(CodeNotFound, message) }

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return New(CodeMethodNotAllowed, message)
}

// Server Errors (500-level)
func NewInternalError(message string) *errors.ErrorEnvelope {
	envelope, _ := New(CodeInternal, message).WithSeverity(errors.SeverityHigh)
	return envelope
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	envelope, _ := New(CodeServiceUnavailable, message).WithSeverity(errors.SeverityMedium)
	return envelope
}

// Wrap attaches err as the cause of a new envelope and picks up the request
// ID from ctx as the correlation ID.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message).
		WithCorrelationID(correlationIDFrom(ctx))
	return withCause(envelope, err)
}

// Cause returns the error an envelope was built from, or err itself when it
// is not an envelope.
func Cause(err error) error {
	var envelope *errors.ErrorEnvelope
	if !stderrors.As(err, &envelope) || envelope == nil {
		return err
	}
	if original, ok := envelope.Original.(error); ok && original != nil {
		return original
	}
	return err
}

// EnsureEnvelope normalizes any error into an ErrorEnvelope. GitHub client
// errors keep their meaning: quota errors become RATE_LIMITED with the wait
// attached and API statuses map to the matching code.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		envelope, _ := New(CodeInternal, "unexpected nil error").WithSeverity(errors.SeverityCritical)
		return envelope
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		details := map[string]interface{}{"retry_after_seconds": int(rateErr.Wait.Seconds())}
		if rateErr.Resource != "" {
			details["resource"] = rateErr.Resource
		}
		if !rateErr.Rate.IsZero() {
			details["rate_limit"] = rateErr.Rate
		}
		env := withCause(New(CodeRateLimited, rateErr.Message).WithDetails(details), err)
		env, _ = env.WithSeverity(errors.SeverityMedium)
		return env
	}

	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		details := map[string]interface{}{"retry_after_seconds": int(abuseErr.RetryAfter.Seconds())}
		env := withCause(New(CodeRateLimited, abuseErr.Message).WithDetails(details), err)
		env, _ = env.WithSeverity(errors.SeverityMedium)
		return env
	}

	var apiErr *github.ErrorResponse
	if stderrors.As(err, &apiErr) {
		code := CodeExternalService
		switch apiErr.StatusCode() {
		case http.StatusNotFound:
			code = CodeNotFound
		case http.StatusUnauthorized:
			code = CodeUnauthorized
		case http.StatusForbidden:
			code = CodeForbidden
		}
		env := New(code, apiErr.Message)
		if apiErr.DocumentationURL != "" {
			env = env.WithDetails(map[string]interface{}{"documentation_url": apiErr.DocumentationURL})
		}
		return withCause(env, err)
	}

	if stderrors.Is(err, github.ErrInvalidLogin) {
		return withCause(New(CodeInvalidInput, err.Error()), err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		env := withCause(New(CodeTimeout, "upstream request timed out"), err)
		env, _ = env.WithSeverity(errors.SeverityMedium)
		return env
	}

	env := withCause(New(CodeInternal, "unexpected error"), err)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// withCause records err on the envelope and mirrors its text into the
// envelope context.
func withCause(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}
	envelope.Original = err

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope writes envelope as JSON, logging it and counting it.
// Only envelope details reach the caller; context stays in the logs.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}

	if envelope.CorrelationID == "" {
		var ctx context.Context
		if r != nil {
			ctx = r.Context()
		}
		envelope = envelope.WithCorrelationID(correlationIDFrom(ctx))
	}

	statusCode := HTTPStatusFromCode(envelope.Code)
	if retry, ok := envelope.Details["retry_after_seconds"].(int); ok && retry > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			RequestID: envelope.CorrelationID,
			Details:   responseDetails(envelope),
		},
	})
}

func responseDetails(envelope *errors.ErrorEnvelope) map[string]any {
	if len(envelope.Details) == 0 {
		return nil
	}
	details := make(map[string]any, len(envelope.Details))
	for key, value := range envelope.Details {
		details[key] = value
	}
	return details
}

// correlationIDFrom gets the request ID from context, falling back to a
// generated correlation ID.
func correlationIDFrom(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return errors.GenerateCorrelationID()
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
		zap.String("request_id", envelope.CorrelationID),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	metrics.RecordError(envelope.Code, statusCode)
	if r == nil {
		return
	}
	endpoint := "/unknown"
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		endpoint = rctx.RoutePattern()
	}
	metrics.RecordErrorByEndpoint(endpoint, envelope.Code)
}
