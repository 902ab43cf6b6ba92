/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides the limiters behind the inbound rate-limiting middleware.
// Two algorithms are available: leaky bucket (GCRA) and sliding window.
// Limits may be global or tracked per key (e.g. client IP) with an LRU bound on the number of keys.
package ratelimit
