/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi writes JSON responses and errors of the proxy API.
// Errors are encoded as {"error": {"domain": "...", "code": "...", "message": "..."}}.
package restapi
