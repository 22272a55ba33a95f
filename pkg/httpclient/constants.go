package httpclient

import "time"

const (
	// DefaultTimeout bounds a whole request when the caller sets no deadline.
	DefaultTimeout = 30 * time.Second

	// MetricsNamespace prefixes every collector of this package.
	MetricsNamespace = "pipetrace"
)
