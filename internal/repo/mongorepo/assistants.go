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

const defaultAssistantsCollection = "assistants"

// Assistants implements repo.AssistantRepo on MongoDB.
type Assistants struct {
	pingable
	coll    *mongodriver.Collection
	timeout time.Duration
}

// NewAssistants builds an Assistants store and ensures its indexes exist.
func NewAssistants(ctx context.Context, opts Options) (*Assistants, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	coll := opts.Client.Database(opts.Database).Collection(defaultAssistantsCollection)
	ictx, cancel := withTimeout(ctx, opts.timeout())
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "assistant_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	return &Assistants{pingable: pingable{client: opts.Client}, coll: coll, timeout: opts.timeout()}, nil
}

func (s *Assistants) Name() string { return "assistants-mongo" }

type assistantDocument struct {
	ID          string                `bson:"assistant_id"`
	GraphID     string                `bson:"graph_id"`
	Name        string                `bson:"name"`
	Description string                `bson:"description,omitempty"`
	Version     int                   `bson:"version"`
	Config      model.AssistantConfig `bson:"config"`
	Context     map[string]any        `bson:"context,omitempty"`
	Metadata    map[string]any        `bson:"metadata,omitempty"`
	OwnerID     string                `bson:"owner_id"`
	CreatedAt   time.Time             `bson:"created_at"`
	UpdatedAt   time.Time             `bson:"updated_at"`
}

func fromAssistant(a model.Assistant) assistantDocument {
	return assistantDocument{
		ID: a.ID, GraphID: a.GraphID, Name: a.Name, Description: a.Description,
		Version: a.Version, Config: a.Config, Context: a.Context, Metadata: a.Metadata,
		OwnerID: a.OwnerID, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (d assistantDocument) toAssistant() model.Assistant {
	return model.Assistant{
		ID: d.ID, GraphID: d.GraphID, Name: d.Name, Description: d.Description,
		Version: d.Version, Config: d.Config, Context: d.Context, Metadata: d.Metadata,
		OwnerID: d.OwnerID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (s *Assistants) Create(ctx context.Context, a model.Assistant, ifExists repo.IfExists) (model.Assistant, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt, a.Version = now, now, 1

	if ifExists == repo.IfExistsDoNothing {
		doc := fromAssistant(a)
		filter := bson.M{"assistant_id": a.ID}
		update := bson.M{"$setOnInsert": doc}
		_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
		if err != nil {
			return model.Assistant{}, err
		}
		var existing assistantDocument
		if err := s.coll.FindOne(ctx, filter).Decode(&existing); err != nil {
			return model.Assistant{}, err
		}
		return existing.toAssistant(), nil
	}

	doc := fromAssistant(a)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return model.Assistant{}, repo.ErrConflict
		}
		return model.Assistant{}, err
	}
	return a, nil
}

func (s *Assistants) Get(ctx context.Context, ownerID, id string) (model.Assistant, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"assistant_id": id}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	var doc assistantDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.Assistant{}, repo.ErrNotFound
		}
		return model.Assistant{}, err
	}
	return doc.toAssistant(), nil
}

func (s *Assistants) Patch(ctx context.Context, ownerID, id string, patch repo.AssistantPatch) (model.Assistant, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"assistant_id": id}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.GraphID != nil {
		set["graph_id"] = *patch.GraphID
	}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Config != nil {
		set["config"] = *patch.Config
	}
	if patch.Context != nil {
		set["context"] = patch.Context
	}
	if patch.Metadata != nil {
		set["metadata"] = patch.Metadata
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	res := s.coll.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
	var doc assistantDocument
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, errNoDocuments) {
			return model.Assistant{}, repo.ErrNotFound
		}
		return model.Assistant{}, err
	}
	return doc.toAssistant(), nil
}

func (s *Assistants) Delete(ctx context.Context, ownerID, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"assistant_id": id}
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

func (s *Assistants) Search(ctx context.Context, f repo.Filter) ([]model.Assistant, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.GraphID != "" {
		filter["graph_id"] = f.GraphID
	}
	if f.Name != "" {
		filter["name"] = f.Name
	}
	if len(f.IDs) > 0 {
		filter["assistant_id"] = bson.M{"$in": f.IDs}
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
	var out []model.Assistant
	for cur.Next(ctx) {
		var doc assistantDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAssistant())
	}
	return out, cur.Err()
}

func (s *Assistants) Count(ctx context.Context, f repo.Filter) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.GraphID != "" {
		filter["graph_id"] = f.GraphID
	}
	if len(f.IDs) > 0 {
		filter["assistant_id"] = bson.M{"$in": f.IDs}
	}
	applyMetadataFilter(filter, "metadata", f.Metadata)
	n, err := s.coll.CountDocuments(ctx, filter)
	return int(n), err
}
