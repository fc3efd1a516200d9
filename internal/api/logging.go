package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("rewards.ledger/api")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestMiddleware opens a server span, attaches a request-scoped logger to
// the context and records access logs and request metrics.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		logger := s.logger.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		if sc := span.SpanContext(); sc.HasTraceID() {
			logger = logger.With().Str("trace_id", sc.TraceID().String()).Logger()
		}
		ctx = logger.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(ctx)
		next.ServeHTTP(rec, req)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		span.SetName(route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rec.status),
		)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}

		observeRequest(route, rec.status, elapsed)
		zerolog.Ctx(ctx).Info().
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

// loggerFrom returns the request logger, or the server logger outside a request.
func (s *Server) loggerFrom(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &s.logger
	}
	return l
}

func withLogFields(ctx context.Context, fields map[string]any) {
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Fields(fields)
	})
}

func (s *Server) logEvent(ctx context.Context, event string, fields map[string]any) {
	s.loggerFrom(ctx).Info().
		Str("event", event).
		Fields(fields).
		Msg("")
}
