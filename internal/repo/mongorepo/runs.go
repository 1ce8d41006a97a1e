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

const defaultRunsCollection = "runs"

// Runs implements repo.RunRepo on MongoDB.
type Runs struct {
	pingable
	coll    *mongodriver.Collection
	timeout time.Duration
}

// NewRuns builds a Runs store and ensures its indexes exist.
func NewRuns(ctx context.Context, opts Options) (*Runs, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	coll := opts.Client.Database(opts.Database).Collection(defaultRunsCollection)
	ictx, cancel := withTimeout(ctx, opts.timeout())
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return nil, err
	}
	return &Runs{pingable: pingable{client: opts.Client}, coll: coll, timeout: opts.timeout()}, nil
}

func (s *Runs) Name() string { return "runs-mongo" }

type runDocument struct {
	ID                string            `bson:"run_id"`
	ThreadID          string            `bson:"thread_id"`
	AssistantID       string            `bson:"assistant_id"`
	Status            string            `bson:"status"`
	Phase             string            `bson:"phase,omitempty"`
	MultitaskStrategy string            `bson:"multitask_strategy"`
	Kwargs            map[string]any    `bson:"kwargs,omitempty"`
	Metadata          map[string]any    `bson:"metadata,omitempty"`
	OwnerID           string            `bson:"owner_id"`
	CreatedAt         time.Time         `bson:"created_at"`
	UpdatedAt         time.Time         `bson:"updated_at"`
}

func fromRun(r model.Run) runDocument {
	return runDocument{
		ID: r.ID, ThreadID: r.ThreadID, AssistantID: r.AssistantID, Status: string(r.Status),
		Phase: string(r.Phase), MultitaskStrategy: string(r.MultitaskStrategy), Kwargs: r.Kwargs,
		Metadata: r.Metadata, OwnerID: r.OwnerID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (d runDocument) toRun() model.Run {
	return model.Run{
		ID: d.ID, ThreadID: d.ThreadID, AssistantID: d.AssistantID, Status: model.RunStatus(d.Status),
		Phase: model.RunPhase(d.Phase), MultitaskStrategy: model.MultitaskStrategy(d.MultitaskStrategy),
		Kwargs: d.Kwargs, Metadata: d.Metadata, OwnerID: d.OwnerID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (s *Runs) Create(ctx context.Context, r model.Run) (model.Run, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if _, err := s.coll.InsertOne(ctx, fromRun(r)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return model.Run{}, repo.ErrConflict
		}
		return model.Run{}, err
	}
	return r, nil
}

func (s *Runs) Get(ctx context.Context, ownerID, id string) (model.Run, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"run_id": id}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	var doc runDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.Run{}, repo.ErrNotFound
		}
		return model.Run{}, err
	}
	return doc.toRun(), nil
}

func (s *Runs) Delete(ctx context.Context, ownerID, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"run_id": id}
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
	return nil
}

func (s *Runs) Search(ctx context.Context, f repo.Filter) ([]model.Run, error) {
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
		filter["run_id"] = bson.M{"$in": f.IDs}
	}
	applyMetadataFilter(filter, "metadata", f.Metadata)

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
	var out []model.Run
	for cur.Next(ctx) {
		var doc runDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRun())
	}
	return out, cur.Err()
}

func (s *Runs) Count(ctx context.Context, f repo.Filter) (int, error) {
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

func (s *Runs) SetStatus(ctx context.Context, id string, status model.RunStatus, phase model.RunPhase) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	set := bson.M{"status": string(status), "updated_at": time.Now().UTC()}
	if phase != "" {
		set["phase"] = string(phase)
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"run_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Runs) ListByThread(ctx context.Context, ownerID, threadID string) ([]model.Run, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"thread_id": threadID}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Run
	for cur.Next(ctx) {
		var doc runDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRun())
	}
	return out, cur.Err()
}

// GetActiveRun returns the most recent non-terminal run on the thread. The
// terminal statuses are enumerated explicitly since Mongo has no notion of
// the RunStatus.IsTerminal method.
func (s *Runs) GetActiveRun(ctx context.Context, ownerID, threadID string) (model.Run, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{
		"thread_id": threadID,
		"status": bson.M{"$nin": []string{
			string(model.RunStatusSuccess), string(model.RunStatusError),
			string(model.RunStatusTimeout), string(model.RunStatusInterrupted),
		}},
	}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	findOpts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc runDocument
	if err := s.coll.FindOne(ctx, filter, findOpts).Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.Run{}, repo.ErrNotFound
		}
		return model.Run{}, err
	}
	return doc.toRun(), nil
}
