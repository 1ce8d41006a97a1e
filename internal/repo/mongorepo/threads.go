package mongorepo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

const (
	defaultThreadsCollection        = "threads"
	defaultThreadSnapshotCollection = "thread_snapshots"
)

// Threads implements repo.ThreadRepo on MongoDB. State snapshots live in a
// separate append-only collection so GetState/GetHistory never touch the
// owner-scoped thread document (spec §3.2).
type Threads struct {
	pingable
	coll    *mongodriver.Collection
	snaps   *mongodriver.Collection
	timeout time.Duration
}

// NewThreads builds a Threads store and ensures its indexes exist.
func NewThreads(ctx context.Context, opts Options) (*Threads, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	coll := opts.Client.Database(opts.Database).Collection(defaultThreadsCollection)
	snaps := opts.Client.Database(opts.Database).Collection(defaultThreadSnapshotCollection)
	ictx, cancel := withTimeout(ctx, opts.timeout())
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "thread_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := snaps.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return nil, err
	}
	return &Threads{pingable: pingable{client: opts.Client}, coll: coll, snaps: snaps, timeout: opts.timeout()}, nil
}

func (s *Threads) Name() string { return "threads-mongo" }

type threadDocument struct {
	ID         string         `bson:"thread_id"`
	Status     string         `bson:"status"`
	Values     map[string]any `bson:"values,omitempty"`
	Config     map[string]any `bson:"config,omitempty"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Interrupts map[string]any `bson:"interrupts,omitempty"`
	OwnerID    string         `bson:"owner_id"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

func fromThread(t model.Thread) threadDocument {
	return threadDocument{
		ID: t.ID, Status: string(t.Status), Values: t.Values, Config: t.Config,
		Metadata: t.Metadata, Interrupts: t.Interrupts, OwnerID: t.OwnerID,
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (d threadDocument) toThread() model.Thread {
	return model.Thread{
		ID: d.ID, Status: model.ThreadStatus(d.Status), Values: d.Values, Config: d.Config,
		Metadata: d.Metadata, Interrupts: d.Interrupts, OwnerID: d.OwnerID,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type snapshotDocument struct {
	ThreadID     string         `bson:"thread_id"`
	CheckpointNS string         `bson:"checkpoint_ns"`
	CheckpointID string         `bson:"checkpoint_id"`
	Values       map[string]any `bson:"values"`
	Next         []string       `bson:"next,omitempty"`
	Metadata     map[string]any `bson:"metadata,omitempty"`
	CreatedAt    time.Time      `bson:"created_at"`
}

func fromSnapshot(s model.ThreadStateSnapshot) snapshotDocument {
	return snapshotDocument{
		ThreadID: s.ThreadID, CheckpointNS: s.CheckpointNS, CheckpointID: s.CheckpointID,
		Values: s.Values, Next: s.Next, Metadata: s.Metadata, CreatedAt: s.CreatedAt,
	}
}

func (d snapshotDocument) toSnapshot() model.ThreadStateSnapshot {
	return model.ThreadStateSnapshot{
		ThreadID: d.ThreadID, CheckpointNS: d.CheckpointNS, CheckpointID: d.CheckpointID,
		Values: d.Values, Next: d.Next, Metadata: d.Metadata, CreatedAt: d.CreatedAt,
	}
}

func (s *Threads) Create(ctx context.Context, t model.Thread, ifExists repo.IfExists) (model.Thread, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	now := time.Now().UTC()
	if t.Status == "" {
		t.Status = model.ThreadStatusIdle
	}
	t.CreatedAt, t.UpdatedAt = now, now

	if ifExists == repo.IfExistsDoNothing {
		doc := fromThread(t)
		filter := bson.M{"thread_id": t.ID}
		_, err := s.coll.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.UpdateOne().SetUpsert(true))
		if err != nil {
			return model.Thread{}, err
		}
		var existing threadDocument
		if err := s.coll.FindOne(ctx, filter).Decode(&existing); err != nil {
			return model.Thread{}, err
		}
		return existing.toThread(), nil
	}

	if _, err := s.coll.InsertOne(ctx, fromThread(t)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return model.Thread{}, repo.ErrConflict
		}
		return model.Thread{}, err
	}
	return t, nil
}

func (s *Threads) Get(ctx context.Context, ownerID, id string) (model.Thread, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"thread_id": id}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	var doc threadDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.Thread{}, repo.ErrNotFound
		}
		return model.Thread{}, err
	}
	return doc.toThread(), nil
}

func (s *Threads) Patch(ctx context.Context, ownerID, id string, patch repo.ThreadPatch) (model.Thread, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"thread_id": id}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Metadata != nil {
		set["metadata"] = patch.Metadata
	}
	if patch.Config != nil {
		set["config"] = patch.Config
	}
	res := s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, options.FindOneAndUpdate().SetReturnDocument(options.After))
	var doc threadDocument
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.Thread{}, repo.ErrNotFound
		}
		return model.Thread{}, err
	}
	return doc.toThread(), nil
}

func (s *Threads) Delete(ctx context.Context, ownerID, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"thread_id": id}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	res, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	_, err = s.snaps.DeleteMany(ctx, bson.M{"thread_id": id})
	return err
}

func (s *Threads) Search(ctx context.Context, f repo.Filter) ([]model.Thread, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if len(f.IDs) > 0 {
		filter["thread_id"] = bson.M{"$in": f.IDs}
	}
	applyMetadataFilter(filter, "metadata", f.Metadata)
	applyMetadataFilter(filter, "values", f.Values)

	sortField := "created_at"
	if f.SortBy != "" {
		sortField = f.SortBy
	}
	findOpts := options.Find().SetSort(bson.D{{Key: sortField, Value: sortDir(f.SortOrder == repo.SortDesc)}})
	if f.Offset > 0 {
		findOpts.SetSkip(int64(f.Offset))
	}
	if f.Limit > 0 {
		findOpts.SetLimit(int64(f.Limit))
	}
	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Thread
	for cur.Next(ctx) {
		var doc threadDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toThread())
	}
	return out, cur.Err()
}

func (s *Threads) Count(ctx context.Context, f repo.Filter) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	applyMetadataFilter(filter, "metadata", f.Metadata)
	n, err := s.coll.CountDocuments(ctx, filter)
	return int(n), err
}

func (s *Threads) SetStatus(ctx context.Context, id string, status model.ThreadStatus) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.coll.UpdateOne(ctx, bson.M{"thread_id": id},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Threads) AppendStateSnapshot(ctx context.Context, snap model.ThreadStateSnapshot) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if _, err := s.snaps.InsertOne(ctx, fromSnapshot(snap)); err != nil {
		return err
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"thread_id": snap.ThreadID},
		bson.M{"$set": bson.M{"values": snap.Values, "updated_at": snap.CreatedAt}})
	return err
}

// GetState is intentionally unscoped by owner (spec §3.2).
func (s *Threads) GetState(ctx context.Context, id string) (model.ThreadStateSnapshot, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	findOpts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc snapshotDocument
	if err := s.snaps.FindOne(ctx, bson.M{"thread_id": id}, findOpts).Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.ThreadStateSnapshot{}, repo.ErrNotFound
		}
		return model.ThreadStateSnapshot{}, err
	}
	return doc.toSnapshot(), nil
}

// GetHistory is intentionally unscoped by owner (spec §3.2).
func (s *Threads) GetHistory(ctx context.Context, id string, limit int) ([]model.ThreadStateSnapshot, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.snaps.Find(ctx, bson.M{"thread_id": id}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.ThreadStateSnapshot
	for cur.Next(ctx) {
		var doc snapshotDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toSnapshot())
	}
	return out, cur.Err()
}
