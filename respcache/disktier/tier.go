/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package disktier implements a persistent second-level response cache tier on top of LevelDB.
// It lets a single instance keep its cache across restarts.
package disktier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	leveldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/respcache"
	"github.com/musicranker/mbproxy/retry"
)

// Defaults for Options.
const (
	DefaultOpenRetryInterval = 500 * time.Millisecond
	DefaultOpenRetries       = 10
)

var entryKeyPrefix = []byte("e:")

// Tier stores responses in a LevelDB database. Expired entries are skipped on read
// and reclaimed by DeleteExpired.
type Tier struct {
	db     *leveldb.DB
	logger log.FieldLogger
	now    func() time.Time
}

var _ respcache.Tier = (*Tier)(nil)

// Options represents options for the Tier.
type Options struct {
	Logger log.FieldLogger

	// OpenRetries is a number of repeated attempts to open the database, e.g. while the previous
	// process still holds its lock during a restart. DefaultOpenRetries is used if it's zero, negative value disables retries.
	OpenRetries int

	// OpenRetryInterval is a delay between attempts. DefaultOpenRetryInterval is used if it's zero.
	OpenRetryInterval time.Duration

	// Now may be hooked in tests. It defaults to time.Now.
	Now func() time.Time
}

// Open opens (or creates) the database at path. A corrupted database is reported immediately,
// other failures are retried according to the options.
func Open(ctx context.Context, path string, opts Options) (*Tier, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenRetries == 0 {
		opts.OpenRetries = DefaultOpenRetries
	}
	if opts.OpenRetryInterval == 0 {
		opts.OpenRetryInterval = DefaultOpenRetryInterval
	}

	var db *leveldb.DB
	openDB := func(context.Context) (err error) {
		db, err = leveldb.OpenFile(path, nil)
		return err
	}
	var err error
	if opts.OpenRetries < 0 {
		err = openDB(ctx)
	} else {
		policy := retry.NewConstantBackoffPolicy(opts.OpenRetryInterval, opts.OpenRetries)
		isRetryable := func(err error) bool { return !leveldberrors.IsCorrupted(err) }
		notify := func(err error, next time.Duration) {
			opts.Logger.Warn("failed to open leveldb, will retry",
				log.String("path", path), log.Duration("retry_in", next), log.Error(err))
		}
		err = retry.DoWithRetry(ctx, policy, isRetryable, notify, openDB)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &Tier{db: db, logger: opts.Logger, now: opts.Now}, nil
}

// Get returns a stored response if it's present and not expired.
func (t *Tier) Get(_ context.Context, key string) (body []byte, expiresAt time.Time, found bool, err error) {
	data, err := t.db.Get(entryKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("leveldb get %q: %w", key, err)
	}
	if body, expiresAt, err = respcache.DecodeEntry(data); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decode entry %q: %w", key, err)
	}
	if !expiresAt.After(t.now()) {
		return nil, time.Time{}, false, nil
	}
	return body, expiresAt, true, nil
}

// Set stores a response until expiresAt.
func (t *Tier) Set(_ context.Context, key string, body []byte, expiresAt time.Time) error {
	if !expiresAt.After(t.now()) {
		return nil
	}
	if err := t.db.Put(entryKey(key), respcache.EncodeEntry(body, expiresAt), nil); err != nil {
		return fmt.Errorf("leveldb put %q: %w", key, err)
	}
	return nil
}

// DeleteExpired removes expired and undecodable entries and returns how many were removed.
func (t *Tier) DeleteExpired() int {
	now := t.now()
	batch := new(leveldb.Batch)
	it := t.db.NewIterator(util.BytesPrefix(entryKeyPrefix), nil)
	for it.Next() {
		_, expiresAt, err := respcache.DecodeEntry(it.Value())
		if err != nil || !expiresAt.After(now) {
			batch.Delete(bytes.Clone(it.Key()))
		}
	}
	it.Release()
	if err := it.Error(); err != nil {
		t.logger.Error("iterate leveldb entries", log.Error(err))
		return 0
	}
	if batch.Len() == 0 {
		return 0
	}
	if err := t.db.Write(batch, nil); err != nil {
		t.logger.Error("delete expired leveldb entries", log.Error(err))
		return 0
	}
	return batch.Len()
}

// Close closes the database.
func (t *Tier) Close() error {
	return t.db.Close()
}

func entryKey(key string) []byte {
	return append(append(make([]byte, 0, len(entryKeyPrefix)+len(key)), entryKeyPrefix...), key...)
}
