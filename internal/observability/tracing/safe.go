package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"request_id":              {},
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"branch_id":               {},
	"user_id":                 {},
	"job":                     {},
	"topic":                   {},
}

// SafeAttributes keeps only attributes known to carry no customer data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError strips the error message down to its type so request bodies are
// never copied into span events.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New("request failed")
}

// ExtractContext reads W3C trace headers into ctx.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
