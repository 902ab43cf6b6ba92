/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package upstream executes request descriptors produced by the proxy handlers against
// an upstream HTTP API (MusicBrainz, Cover Art Archive).
// Non-2xx responses are reported as *StatusError so callers can react to specific statuses (e.g. 404).
package upstream
