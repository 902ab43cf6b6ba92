/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/musicranker/mbproxy/scheduler"
)

// DefaultMaxResponseSize bounds the upstream payload read into memory.
const DefaultMaxResponseSize = 10 << 20

// HTTPTransportOpts represents options for HTTPTransport.
type HTTPTransportOpts struct {
	// Header is sent with every request unless the descriptor sets the same header.
	Header http.Header

	// MaxResponseSize is a maximum size of the upstream payload. DefaultMaxResponseSize is used if it's zero.
	MaxResponseSize int64
}

// HTTPTransport implements scheduler.Transport over HTTP.
type HTTPTransport struct {
	baseURL         *url.URL
	client          *http.Client
	header          http.Header
	maxResponseSize int64
}

var _ scheduler.Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport. Relative descriptor URLs are resolved against baseURL.
func NewHTTPTransport(baseURL string, client *http.Client, opts HTTPTransportOpts) (*HTTPTransport, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("base url %q should be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = DefaultMaxResponseSize
	}
	return &HTTPTransport{
		baseURL:         parsedURL,
		client:          client,
		header:          opts.Header,
		maxResponseSize: opts.MaxResponseSize,
	}, nil
}

// BaseURL returns the URL relative descriptor URLs are resolved against.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL.String()
}

// Do executes the request described by desc and returns the raw response body.
func (t *HTTPTransport) Do(ctx context.Context, desc scheduler.Descriptor) (scheduler.Body, error) {
	req, err := t.newRequest(ctx, desc)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseSize+1))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if len(body) > maxErrorBodyLen {
			body = body[:maxErrorBodyLen]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: body}
	}
	if readErr != nil {
		return nil, fmt.Errorf("read upstream response body: %w", readErr)
	}
	if int64(len(body)) > t.maxResponseSize {
		return nil, fmt.Errorf("upstream response body exceeds %d bytes", t.maxResponseSize)
	}
	return body, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, desc scheduler.Descriptor) (*http.Request, error) {
	reqURL, err := t.resolveURL(desc.URL)
	if err != nil {
		return nil, err
	}
	if len(desc.Query) != 0 {
		query := reqURL.Query()
		for key, values := range desc.Query {
			query[key] = values
		}
		reqURL.RawQuery = query.Encode()
	}

	method := desc.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(desc.Body) != 0 {
		body = bytes.NewReader(desc.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new upstream request: %w", err)
	}
	for key, values := range t.header {
		req.Header[key] = append([]string(nil), values...)
	}
	for key, values := range desc.Header {
		req.Header[key] = append([]string(nil), values...)
	}
	return req, nil
}

func (t *HTTPTransport) resolveURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse descriptor url %q: %w", rawURL, err)
	}
	if parsed.IsAbs() {
		return parsed, nil
	}
	// Joined in escaped form so escaped characters of the descriptor path (like %2F) stay escaped once.
	escapedPath := strings.TrimSuffix(t.baseURL.EscapedPath(), "/") + "/" + strings.TrimPrefix(parsed.EscapedPath(), "/")
	unescapedPath, err := url.PathUnescape(escapedPath)
	if err != nil {
		return nil, fmt.Errorf("unescape descriptor url path %q: %w", escapedPath, err)
	}
	resolved := *t.baseURL
	resolved.Path = unescapedPath
	resolved.RawPath = escapedPath
	resolved.RawQuery = parsed.RawQuery
	return &resolved, nil
}
