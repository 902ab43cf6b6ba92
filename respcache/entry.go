/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"encoding/binary"
	"errors"
	"time"
)

const entryHeaderSize = 8

// ErrMalformedEntry is returned by DecodeEntry when the data is too short to hold an entry.
var ErrMalformedEntry = errors.New("malformed cache entry")

// EncodeEntry serializes a response body with its expiration time for persistent tiers.
// The layout is the expiration time in Unix nanoseconds (8 bytes, big-endian) followed by the body.
func EncodeEntry(body []byte, expiresAt time.Time) []byte {
	data := make([]byte, entryHeaderSize+len(body))
	binary.BigEndian.PutUint64(data, uint64(expiresAt.UnixNano()))
	copy(data[entryHeaderSize:], body)
	return data
}

// DecodeEntry is the inverse of EncodeEntry.
func DecodeEntry(data []byte) (body []byte, expiresAt time.Time, err error) {
	if len(data) < entryHeaderSize {
		return nil, time.Time{}, ErrMalformedEntry
	}
	expiresAt = time.Unix(0, int64(binary.BigEndian.Uint64(data)))
	return data[entryHeaderSize:], expiresAt, nil
}
