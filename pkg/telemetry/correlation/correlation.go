package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// PayloadKey is the key under which event payloads carry the correlation id.
const PayloadKey = "correlation_id"

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating a ULID when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// InjectIntoPayload stamps an outgoing event payload with correlation and trace ids.
func InjectIntoPayload(ctx context.Context, payload map[string]any) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload[PayloadKey]; !ok {
		_, cid := EnsureCorrelationID(ctx)
		payload[PayloadKey] = cid
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		payload["trace_id"] = sc.TraceID().String()
		payload["span_id"] = sc.SpanID().String()
	}
	return payload
}

// ContextFromPayload restores the correlation id carried by an event payload.
func ContextFromPayload(ctx context.Context, payload map[string]any) context.Context {
	if cid, ok := payload[PayloadKey].(string); ok {
		return ContextWithCorrelationID(ctx, cid)
	}
	return ctx
}
