package client

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
)

// CreateOptimizedTransport creates an HTTP transport with connection pool
// settings tuned for repeated calls against a single upstream host.
func CreateOptimizedTransport(insecureSkipVerify bool) *http.Transport {
	// #nosec G402 -- InsecureSkipVerify is user-configurable for development/testing
	return &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// CreateUpstreamClient creates the HTTP client used for buffered calls to
// the upstream provider. Timeout bounds the whole request.
func CreateUpstreamClient(timeout time.Duration, insecureSkipVerify bool) (*http.Client, error) {
	transport := CreateOptimizedTransport(insecureSkipVerify)

	c, err := httpclient.NewClient(
		httpclient.WithTimeout(timeout),
		httpclient.WithTransport(transport),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	return c, nil
}

// CreateStreamingClient creates the HTTP client used for streamed calls.
// No overall timeout: a stream lives until the upstream closes it or the
// caller cancels the request context. Idle detection is handled by the
// gateway, not the transport.
func CreateStreamingClient(insecureSkipVerify bool) (*http.Client, error) {
	transport := CreateOptimizedTransport(insecureSkipVerify)

	c, err := httpclient.NewClient(
		httpclient.WithTransport(transport),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming client: %w", err)
	}

	return c, nil
}
