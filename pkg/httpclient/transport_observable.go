package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
)

// observableTransport records metrics for every request. It deliberately
// opens no span: the requests it carries are span exports themselves.
type observableTransport struct {
	base    http.RoundTripper
	metrics *Metrics
	logger  observability.Logger
}

func (t *observableTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	host := req.URL.Host

	resp, err := t.base.RoundTrip(req)

	if t.metrics != nil {
		t.metrics.duration.WithLabelValues(host, req.Method).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		kind := classifyError(err)
		if t.metrics != nil {
			t.metrics.errors.WithLabelValues(host, kind).Inc()
			t.metrics.requests.WithLabelValues(host, req.Method, "error").Inc()
		}
		t.logger.Debug(req.Context(), "outbound request failed",
			observability.String("host", host),
			observability.String("method", req.Method),
			observability.String("error_type", kind),
			observability.Error(err),
		)
		return resp, err
	}

	if t.metrics != nil {
		t.metrics.requests.WithLabelValues(host, req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	}
	if resp.StatusCode >= 400 {
		t.logger.Debug(req.Context(), "outbound request rejected",
			observability.String("host", host),
			observability.String("method", req.Method),
			observability.Int("status_code", resp.StatusCode),
		)
	}
	return resp, nil
}

// classifyError categorizes transport errors for metrics.
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network_timeout"
		}
		return "network_error"
	}

	return "unknown"
}
