/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package proxyapi contains HTTP handlers of the MusicBrainz / Cover Art Archive proxy.
// Every handler serves a response from the cache or submits a request descriptor to the scheduler
// of the corresponding upstream and caches the successful result.
package proxyapi
