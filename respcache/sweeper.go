/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"context"
	"time"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/service"
)

// DefaultSweepInterval is how often expired entries are reclaimed by the sweeper.
const DefaultSweepInterval = time.Minute

// ExpiredDeleter is implemented by Cache and by tiers that need active reclamation of expired entries.
type ExpiredDeleter interface {
	DeleteExpired() int
}

// ExpiredDeleterFunc is an adapter to allow the use of ordinary functions as ExpiredDeleter.
type ExpiredDeleterFunc func() int

// DeleteExpired calls f().
func (f ExpiredDeleterFunc) DeleteExpired() int {
	return f()
}

// NewSweeper returns a service unit that periodically deletes expired entries from the given storages.
func NewSweeper(interval time.Duration, logger log.FieldLogger, storages ...ExpiredDeleter) *service.WorkerUnit {
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	logger = log.NewPrefixedLogger(logger, "cache sweeper: ")
	worker := service.WorkerFunc(func(ctx context.Context) error {
		deleted := 0
		for _, s := range storages {
			deleted += s.DeleteExpired()
		}
		if deleted > 0 {
			logger.Debug("expired entries deleted", log.Int("deleted", deleted))
		}
		return nil
	})
	return service.NewWorkerUnit(service.NewPeriodicWorkerWithOpts(worker, interval, logger,
		service.PeriodicWorkerOpts{InitialDelay: interval}))
}
