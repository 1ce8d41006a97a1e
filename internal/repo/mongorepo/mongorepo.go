// Package mongorepo implements the repo package's four entity stores on top
// of MongoDB, following the same per-collection client idiom used by the
// checkpoint and store Mongo backends: one collection per entity, a shared
// timeout applied to every operation, indexes created once at construction.
package mongorepo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const defaultTimeout = 5 * time.Second

// Options configures every store in this package.
type Options struct {
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

func (o Options) validate() error {
	if o.Client == nil {
		return errors.New("mongo client is required")
	}
	if o.Database == "" {
		return errors.New("database name is required")
	}
	return nil
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultTimeout
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}

// Ping is embedded by every store in this package to satisfy
// goa.design/clue/health.Pinger.
type pingable struct {
	client *mongodriver.Client
}

func (p pingable) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.client.Ping(ctx, readpref.Primary())
}

func applyMetadataFilter(filter bson.M, field string, subset map[string]any) {
	for k, v := range subset {
		filter[field+"."+k] = v
	}
}

func sortDir(desc bool) int {
	if desc {
		return -1
	}
	return 1
}

var errNoDocuments = mongodriver.ErrNoDocuments
