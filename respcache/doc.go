/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package respcache provides a TTL cache of raw upstream responses keyed by the inbound request.
// The in-memory LRU tier may be backed by an optional second tier (see redistier and disktier subpackages).
package respcache
