package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/salonbook/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request and tags it with the branch
// and acting user once the actor middleware has run.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("salonbook/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, method, route, status, time.Since(start))...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, "request error")
		case status == http.StatusUnprocessableEntity:
			// Cash without an open register, closing an unopened day.
			span.AddEvent("precondition_failed")
		}
	}
}

func requestAttributes(c *gin.Context, method, route string, status int, elapsed time.Duration) []attribute.KeyValue {
	ctx := c.Request.Context()
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
		attribute.Int64("http.server_duration_ms", elapsed.Milliseconds()),
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}
	branchID := c.Param("branchId")
	if branchID == "" {
		branchID = obscontext.BranchIDFromContext(ctx)
	}
	if branchID != "" {
		attrs = append(attrs, attribute.String("branch_id", branchID))
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType == "user" && actorID != "" {
		attrs = append(attrs, attribute.String("user_id", actorID))
	}
	return attrs
}
