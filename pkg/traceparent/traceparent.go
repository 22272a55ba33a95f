// Package traceparent encodes span identity into the single token handed to
// processes launched by a build, and decodes it back.
//
// The format is the W3C trace-context header value with the sampled flag
// always set: 00-<32 hex trace id>-<16 hex span id>-01.
package traceparent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// EnvTraceparent carries the token into child processes.
	EnvTraceparent = "MERGIFY_TRACEPARENT"
	// EnvTraceID and EnvSpanID carry the raw identifiers for tools that do
	// not parse the token.
	EnvTraceID = "MERGIFY_TRACE_ID"
	EnvSpanID  = "MERGIFY_SPAN_ID"

	version = "00"
	flags   = "01"

	tokenLength = 2 + 1 + 32 + 1 + 16 + 1 + 2
)

// ErrMalformedToken is matched by every decode failure.
var ErrMalformedToken = errors.New("malformed traceparent token")

// MalformedTokenError describes why a token could not be decoded.
type MalformedTokenError struct {
	Token  string
	Reason string
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("malformed traceparent token %q: %s", e.Token, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedToken) hold for every decode failure.
func (e *MalformedTokenError) Is(target error) bool {
	return target == ErrMalformedToken
}

// Encode serializes the identifiers into a token.
func Encode(traceID trace.TraceID, spanID trace.SpanID) string {
	return version + "-" + traceID.String() + "-" + spanID.String() + "-" + flags
}

// Decode parses a token produced by Encode. Any other flag value is
// accepted as long as it is two hex digits.
func Decode(token string) (trace.TraceID, trace.SpanID, error) {
	malformed := func(reason string) (trace.TraceID, trace.SpanID, error) {
		return trace.TraceID{}, trace.SpanID{}, &MalformedTokenError{Token: token, Reason: reason}
	}

	if len(token) != tokenLength {
		return malformed(fmt.Sprintf("expected %d characters, got %d", tokenLength, len(token)))
	}

	parts := strings.Split(token, "-")
	if len(parts) != 4 {
		return malformed("expected 4 dash-separated fields")
	}

	if parts[0] != version {
		return malformed("unsupported version " + parts[0])
	}

	if !isLowerHex(parts[3]) {
		return malformed("flags are not hex")
	}

	if !isLowerHex(parts[1]) {
		return malformed("trace id is not lowercase hex")
	}
	traceID, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return malformed("invalid trace id")
	}

	if !isLowerHex(parts[2]) {
		return malformed("span id is not lowercase hex")
	}
	spanID, err := trace.SpanIDFromHex(parts[2])
	if err != nil {
		return malformed("invalid span id")
	}

	return traceID, spanID, nil
}

// SpanContext decodes token into a remote span context.
func SpanContext(token string) (trace.SpanContext, error) {
	traceID, spanID, err := Decode(token)
	if err != nil {
		return trace.SpanContext{}, err
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), nil
}

// ContextWithToken returns ctx with the decoded remote parent attached. A
// token that cannot be decoded leaves ctx untouched: no parent context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	sc, err := SpanContext(token)
	if err != nil {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// FromContext renders the span carried by ctx through the W3C propagator.
// Unsampled or absent span contexts yield no token.
func FromContext(ctx context.Context) (string, bool) {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	token := carrier.Get("traceparent")
	if token == "" {
		return "", false
	}
	if _, _, err := Decode(token); err != nil {
		return "", false
	}
	return token, true
}

// FromEnv reads the token with the given lookup function, typically
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (trace.SpanContext, bool) {
	token, ok := lookup(EnvTraceparent)
	if !ok || token == "" {
		return trace.SpanContext{}, false
	}
	sc, err := SpanContext(strings.TrimSpace(token))
	if err != nil {
		return trace.SpanContext{}, false
	}
	return sc, true
}

// Environ returns the variables to inject for the token. It is empty when
// the token cannot be decoded.
func Environ(token string) map[string]string {
	traceID, spanID, err := Decode(token)
	if err != nil {
		return map[string]string{}
	}
	return map[string]string{
		EnvTraceparent: token,
		EnvTraceID:     traceID.String(),
		EnvSpanID:      spanID.String(),
	}
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return s != ""
}
