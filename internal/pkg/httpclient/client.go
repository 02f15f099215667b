// Package httpclient provides the shared HTTP client construction and error
// types used by the registry transport.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New creates an HTTP client suitable for long-lived blocking queries.
//
// No client-level timeout is set: a blocking query legitimately holds the
// connection open for the full wait duration, so deadlines must come from the
// request context.
func New() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
