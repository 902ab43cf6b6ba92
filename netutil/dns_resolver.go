/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers for the outbound HTTP client.
package netutil

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// NewCustomDNSResolver creates a resolver that queries the given DNS servers ("host:port") over UDP
// in round-robin order instead of the ones configured in the system.
// It's useful when the proxy runs in a network where the system resolver is slow or unreliable.
func NewCustomDNSResolver(addrs []string, timeout time.Duration) (*net.Resolver, error) {
	if len(addrs) == 0 {
		return nil, errors.New("at least one DNS server address is required")
	}
	for _, addr := range addrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, err
		}
	}
	servers := append([]string(nil), addrs...)
	var next atomic.Uint32
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			idx := (next.Add(1) - 1) % uint32(len(servers)) //nolint:gosec // server count is small
			return d.DialContext(ctx, "udp", servers[idx])
		},
	}, nil
}
