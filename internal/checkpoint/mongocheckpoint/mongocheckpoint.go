// Package mongocheckpoint implements checkpoint.Factory on top of MongoDB.
// Each acquisition opens a handle bound to the shared *mongo.Client (the
// driver pools connections internally without exposing an application-
// visible lock), matching spec §4.3/§5: per-request acquisition without a
// pool whose own locking would serialize concurrent streaming runs.
package mongocheckpoint

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/google/uuid"

	"github.com/flowmind/agentrt/internal/checkpoint"
)

const (
	defaultCollection = "checkpoints"
	defaultTimeout    = 5 * time.Second
)

// Options configures the Mongo-backed checkpointer factory.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Factory implements checkpoint.Factory.
type Factory struct {
	client  *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

type snapshotDocument struct {
	ThreadID     string         `bson:"thread_id"`
	CheckpointNS string         `bson:"checkpoint_ns"`
	CheckpointID string         `bson:"checkpoint_id"`
	Values       map[string]any `bson:"values"`
	Next         []string       `bson:"next,omitempty"`
	Tasks        []string       `bson:"tasks,omitempty"`
	Metadata     map[string]any `bson:"metadata,omitempty"`
	CreatedAt    time.Time      `bson:"created_at"`
}

// New builds a Factory and ensures its indexes exist.
func New(opts Options) (*Factory, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "thread_id", Value: 1},
			{Key: "checkpoint_ns", Value: 1},
			{Key: "created_at", Value: -1},
		},
	}); err != nil {
		return nil, err
	}
	return &Factory{client: opts.Client, coll: coll, timeout: timeout}, nil
}

func (f *Factory) Name() string { return "checkpoint-mongo" }

func (f *Factory) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return f.client.Ping(ctx, readpref.Primary())
}

// Acquire returns a handle bound to this factory's collection. There is no
// per-acquisition connection or lock to release beyond Close, which is a
// no-op here because the driver owns connection pooling.
func (f *Factory) Acquire(context.Context) (checkpoint.Checkpointer, error) {
	return &mongoCheckpointer{factory: f}, nil
}

type mongoCheckpointer struct {
	factory *Factory
}

func (c *mongoCheckpointer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.factory.timeout)
}

func (c *mongoCheckpointer) GetState(ctx context.Context, threadID, ns string) (checkpoint.Snapshot, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"thread_id": threadID, "checkpoint_ns": ns}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc snapshotDocument
	if err := c.factory.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return checkpoint.Snapshot{}, checkpoint.ErrNotFound
		}
		return checkpoint.Snapshot{}, err
	}
	return docToSnapshot(doc), nil
}

func (c *mongoCheckpointer) GetHistory(ctx context.Context, threadID, ns string, limit int, before string) ([]checkpoint.Snapshot, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"thread_id": threadID, "checkpoint_ns": ns}
	if before != "" {
		// Resolve the before checkpoint's timestamp so pagination is based
		// on time, not on document insertion order.
		var anchor snapshotDocument
		if err := c.factory.coll.FindOne(ctx, bson.M{"thread_id": threadID, "checkpoint_ns": ns, "checkpoint_id": before}).Decode(&anchor); err == nil {
			filter["created_at"] = bson.M{"$lt": anchor.CreatedAt}
		}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := c.factory.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []checkpoint.Snapshot
	for cur.Next(ctx) {
		var doc snapshotDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, docToSnapshot(doc))
	}
	return out, cur.Err()
}

func (c *mongoCheckpointer) Put(ctx context.Context, snap checkpoint.Snapshot) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if snap.CheckpointID == "" {
		snap.CheckpointID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	doc := snapshotDocument{
		ThreadID:     snap.ThreadID,
		CheckpointNS: snap.CheckpointNS,
		CheckpointID: snap.CheckpointID,
		Values:       snap.Values,
		Next:         snap.Next,
		Tasks:        snap.Tasks,
		Metadata:     snap.Metadata,
		CreatedAt:    snap.CreatedAt,
	}
	_, err := c.factory.coll.InsertOne(ctx, doc)
	return err
}

func (c *mongoCheckpointer) Delete(ctx context.Context, threadID, ns string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.factory.coll.DeleteMany(ctx, bson.M{"thread_id": threadID, "checkpoint_ns": ns})
	return err
}

func (c *mongoCheckpointer) Close(context.Context) error { return nil }

func docToSnapshot(doc snapshotDocument) checkpoint.Snapshot {
	return checkpoint.Snapshot{
		ThreadID:     doc.ThreadID,
		CheckpointNS: doc.CheckpointNS,
		CheckpointID: doc.CheckpointID,
		Values:       doc.Values,
		Next:         doc.Next,
		Tasks:        doc.Tasks,
		Metadata:     doc.Metadata,
		CreatedAt:    doc.CreatedAt,
	}
}
