// Package middleware provides the HTTP middleware shared by the public and console routes.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// CorrelationIDHeader ties together the requests of one client operation.
	CorrelationIDHeader = "X-Correlation-ID"
	// RequestIDHeader identifies a single request. Error responses carry it.
	RequestIDHeader = "X-Request-ID"
)

type correlationIDKey struct{}

type requestIDKey struct{}

type requestStartKey struct{}

// Correlation assigns request and correlation ids, echoing both in the response.
// An incoming correlation id is kept; the request id is kept only when the
// caller sent a well-formed one.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(CorrelationIDHeader)
		if correlationID == "" || len(correlationID) > 64 {
			correlationID = newID()
		}
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = newID()
		}

		ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
		ctx = context.WithValue(ctx, requestStartKey{}, time.Now())

		w.Header().Set(CorrelationIDHeader, correlationID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID returns the correlation id stored in ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// GetRequestStartTime returns when Correlation saw the request.
func GetRequestStartTime(ctx context.Context) time.Time {
	t, _ := ctx.Value(requestStartKey{}).(time.Time)
	return t
}

// WithCorrelationID returns a copy of ctx carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// LoggerWithCorrelation adds the ids found in ctx to logger.
func LoggerWithCorrelation(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := make([]zap.Field, 0, 2)
	if id := GetCorrelationID(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// PropagateHeaders copies the correlation id onto an outgoing request, such
// as a tenant fan-out call.
func PropagateHeaders(ctx context.Context, req *http.Request) {
	if id := GetCorrelationID(ctx); id != "" {
		req.Header.Set(CorrelationIDHeader, id)
	}
}

func newID() string {
	return uuid.NewString()
}
