package database

import (
	"context"
	"time"
)

type DBPool = dbPool

// WithNewPool is an option to override the default newPool function.
func WithNewPool(newPool func(ctx context.Context, dsn string) (DBPool, error)) Options {
	return func(opts *options) {
		opts.newPool = newPool
	}
}

// WithTimeProvider is an option to override the clock.
func WithTimeProvider(now func() time.Time) Options {
	return func(opts *options) {
		opts.now = now
	}
}
