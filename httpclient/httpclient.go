/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/netutil"
)

// DefaultRequestType is used in logs and metrics when no request type is specified.
const DefaultRequestType = "external"

// Opts provides options for NewWithOpts function.
type Opts struct {
	// UserAgent is set to the requests that don't carry their own User-Agent header.
	UserAgent string

	// RequestType is a type of request, e.g. the upstream name ("musicbrainz", "coverart").
	RequestType string

	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector.
	Collector MetricsCollector
}

// New creates an HTTP client with the round tripper chain enabled by the configuration.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates an HTTP client. The outgoing request passes the round trippers in the order:
// request id, user agent, metrics, logging and then the delegate transport.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		transport, err := newTransport(cfg)
		if err != nil {
			return nil, err
		}
		delegate = transport
	}

	if cfg.Log.Enabled {
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, LoggingRoundTripperOpts{
			LoggerProvider:       opts.LoggerProvider,
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
		})
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}, nil
}

// newTransport clones the default transport. Custom DNS servers from the configuration are used if any.
func newTransport(cfg *Config) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if len(cfg.DNS.Servers) == 0 {
		return transport, nil
	}
	resolver, err := netutil.NewCustomDNSResolver(cfg.DNS.Servers, time.Duration(cfg.DNS.Timeout))
	if err != nil {
		return nil, fmt.Errorf("create dns resolver: %w", err)
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second, Resolver: resolver}
	transport.DialContext = dialer.DialContext
	return transport, nil
}
