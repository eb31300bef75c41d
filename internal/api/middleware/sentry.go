package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

// SentryMiddleware runs each request inside a Sentry transaction named after
// its chi route pattern, so /v1/chunks/{id} is one transaction rather than
// one per chunk. Panics are reported and re-raised.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		options := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}
		if trace := r.Header.Get(sentry.SentryTraceHeader); trace != "" {
			options = append(options, sentry.ContinueFromHeaders(trace, r.Header.Get(sentry.SentryBaggageHeader)))
		}

		transaction := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, options...)
		defer transaction.Finish()

		r = r.WithContext(sentry.SetHubOnContext(transaction.Context(), hub))
		hub.Scope().SetRequest(r)
		if requestID := GetRequestID(r.Context()); requestID != "" {
			hub.Scope().SetTag("request_id", requestID)
			transaction.SetTag("request_id", requestID)
		}

		defer func() {
			if err := recover(); err != nil {
				transaction.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), err)
				panic(err)
			}
		}()

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		pattern := routePattern(r)
		if pattern != "" {
			transaction.Name = r.Method + " " + pattern
			transaction.Source = sentry.SourceRoute
		}
		transaction.Status = httpStatusToSpanStatus(status)
		transaction.SetData("http.response.status_code", status)

		if caller := requestCaller(r); caller != "" {
			hub.Scope().SetTag("caller", caller)
			transaction.SetTag("caller", caller)
		}
		if strings.HasPrefix(pattern, "/v1/workspaces/{id}") {
			transaction.SetTag("workspace_id", chi.URLParam(r, "id"))
		}

		// Handlers capture their own exceptions; this records the status.
		if status >= 500 {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d on %s", status, transaction.Name))
		}
	})
}

// routePattern is the matched chi pattern, known only after routing ran.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

var spanStatuses = map[int]sentry.SpanStatus{
	http.StatusBadRequest:            sentry.SpanStatusInvalidArgument,
	http.StatusUnauthorized:          sentry.SpanStatusUnauthenticated,
	http.StatusForbidden:             sentry.SpanStatusPermissionDenied,
	http.StatusNotFound:              sentry.SpanStatusNotFound,
	http.StatusConflict:              sentry.SpanStatusAlreadyExists,
	http.StatusRequestEntityTooLarge: sentry.SpanStatusOutOfRange,
	http.StatusTooManyRequests:       sentry.SpanStatusResourceExhausted,
	499:                              sentry.SpanStatusCanceled,
	http.StatusNotImplemented:        sentry.SpanStatusUnimplemented,
	http.StatusBadGateway:            sentry.SpanStatusUnavailable,
	http.StatusServiceUnavailable:    sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:        sentry.SpanStatusDeadlineExceeded,
}

// httpStatusToSpanStatus maps an HTTP status to a Sentry span status. 502 is
// what the API answers when the embedding provider fails.
func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	if s, ok := spanStatuses[status]; ok {
		return s
	}
	switch {
	case status >= 200 && status < 400:
		return sentry.SpanStatusOK
	case status >= 400 && status < 500:
		return sentry.SpanStatusInvalidArgument
	case status >= 500:
		return sentry.SpanStatusInternalError
	default:
		return sentry.SpanStatusUnknown
	}
}
