package exporter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ClientFactory creates the outbound client of one repository partition.
type ClientFactory func(ctx context.Context, endpoint, token string) (sdktrace.SpanExporter, error)

// Endpoint returns the trace intake URL of repository (owner/repo).
func Endpoint(baseURL, repository string) string {
	return strings.TrimSuffix(baseURL, "/") + "/v1/repos/" + repository + "/ci/traces"
}

// OTLPClientFactory returns a factory of OTLP/HTTP protobuf exporters that
// authenticate with a bearer token and never retry.
func OTLPClientFactory(client *http.Client, timeout time.Duration) ClientFactory {
	return func(ctx context.Context, endpoint, token string) (sdktrace.SpanExporter, error) {
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(endpoint),
			otlptracehttp.WithHeaders(map[string]string{
				"Authorization": "Bearer " + token,
			}),
			otlptracehttp.WithTimeout(timeout),
			otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
		}
		if client != nil {
			opts = append(opts, otlptracehttp.WithHTTPClient(client))
		}
		return otlptracehttp.New(ctx, opts...)
	}
}
