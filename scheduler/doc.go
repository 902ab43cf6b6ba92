/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package scheduler serializes requests to a rate-limited upstream.
// Requests are executed one at a time in submission order,
// and consecutive dispatches are spaced by at least a configured minimum interval.
package scheduler
