package httputil

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "mpawatch/1.0 (marine protected area health monitor)"
)

// NewClient returns an HTTP client with standard timeout configuration.
// Timeouts apply per request only; paginated fetches have no overall deadline.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}
