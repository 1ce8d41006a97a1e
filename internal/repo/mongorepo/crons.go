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

const defaultCronsCollection = "crons"

// Crons implements repo.CronRepo on MongoDB.
type Crons struct {
	pingable
	coll    *mongodriver.Collection
	timeout time.Duration
}

// NewCrons builds a Crons store and ensures its indexes exist.
func NewCrons(ctx context.Context, opts Options) (*Crons, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	coll := opts.Client.Database(opts.Database).Collection(defaultCronsCollection)
	ictx, cancel := withTimeout(ctx, opts.timeout())
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "cron_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "next_run_date", Value: 1}},
	}); err != nil {
		return nil, err
	}
	return &Crons{pingable: pingable{client: opts.Client}, coll: coll, timeout: opts.timeout()}, nil
}

func (s *Crons) Name() string { return "crons-mongo" }

type cronDocument struct {
	ID             string         `bson:"cron_id"`
	AssistantID    string         `bson:"assistant_id"`
	ThreadID       string         `bson:"thread_id,omitempty"`
	Schedule       string         `bson:"schedule"`
	Payload        map[string]any `bson:"payload,omitempty"`
	EndTime        *time.Time     `bson:"end_time,omitempty"`
	NextRunDate    *time.Time     `bson:"next_run_date,omitempty"`
	OnRunCompleted string         `bson:"on_run_completed"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
	OwnerID        string         `bson:"owner_id"`
	CreatedAt      time.Time      `bson:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at"`
}

func fromCron(c model.Cron) cronDocument {
	return cronDocument{
		ID: c.ID, AssistantID: c.AssistantID, ThreadID: c.ThreadID, Schedule: c.Schedule,
		Payload: c.Payload, EndTime: c.EndTime, NextRunDate: c.NextRunDate,
		OnRunCompleted: string(c.OnRunCompleted), Metadata: c.Metadata,
		OwnerID: c.OwnerID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (d cronDocument) toCron() model.Cron {
	return model.Cron{
		ID: d.ID, AssistantID: d.AssistantID, ThreadID: d.ThreadID, Schedule: d.Schedule,
		Payload: d.Payload, EndTime: d.EndTime, NextRunDate: d.NextRunDate,
		OnRunCompleted: model.CronCompletionPolicy(d.OnRunCompleted), Metadata: d.Metadata,
		OwnerID: d.OwnerID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (s *Crons) Create(ctx context.Context, c model.Cron) (model.Cron, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if _, err := s.coll.InsertOne(ctx, fromCron(c)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return model.Cron{}, repo.ErrConflict
		}
		return model.Cron{}, err
	}
	return c, nil
}

func (s *Crons) Get(ctx context.Context, ownerID, id string) (model.Cron, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"cron_id": id}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	var doc cronDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.Cron{}, repo.ErrNotFound
		}
		return model.Cron{}, err
	}
	return doc.toCron(), nil
}

func (s *Crons) Delete(ctx context.Context, ownerID, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"cron_id": id}
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

func (s *Crons) Search(ctx context.Context, f repo.Filter) ([]model.Cron, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if len(f.IDs) > 0 {
		filter["cron_id"] = bson.M{"$in": f.IDs}
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
	var out []model.Cron
	for cur.Next(ctx) {
		var doc cronDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toCron())
	}
	return out, cur.Err()
}

func (s *Crons) Count(ctx context.Context, f repo.Filter) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	applyMetadataFilter(filter, "metadata", f.Metadata)
	n, err := s.coll.CountDocuments(ctx, filter)
	return int(n), err
}

func (s *Crons) SetNextRunDate(ctx context.Context, id string, next *time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.coll.UpdateOne(ctx, bson.M{"cron_id": id},
		bson.M{"$set": bson.M{"next_run_date": next, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Crons) ListDue(ctx context.Context, asOf time.Time) ([]model.Cron, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{
		"next_run_date": bson.M{"$ne": nil, "$lte": asOf},
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Cron
	for cur.Next(ctx) {
		var doc cronDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toCron())
	}
	return out, cur.Err()
}
