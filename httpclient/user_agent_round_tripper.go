/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "net/http"

const headerUserAgent = "User-Agent"

// UserAgentRoundTripper stamps outgoing requests with the application User-Agent.
// MusicBrainz throttles or rejects clients that don't identify themselves.
type UserAgentRoundTripper struct {
	Delegate  http.RoundTripper
	UserAgent string

	// Override replaces a User-Agent the request already carries.
	// By default such a request is passed through untouched.
	Override bool
}

// NewUserAgentRoundTripper returns a round tripper that fills User-Agent only when it's missing.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{Delegate: delegate, UserAgent: userAgent}
}

// RoundTrip implements http.RoundTripper. The passed request is never mutated.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.UserAgent == "" || (!rt.Override && req.Header.Get(headerUserAgent) != "") {
		return rt.Delegate.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(headerUserAgent, rt.UserAgent)
	return rt.Delegate.RoundTrip(clone)
}
