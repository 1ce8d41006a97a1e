// Package mongostore implements store.Store on a single MongoDB collection
// keyed by (owner, namespace, key), mirroring the composite-primary-key
// relational table spec §4.2 describes for the durable backend. Namespace
// is stored as the slash-joined string form so a single compound index
// covers both equality lookups (Get/Delete/Put) and prefix scans (Search,
// via a regex-anchored prefix match on the joined string).
package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/flowmind/agentrt/internal/store"
)

const (
	defaultCollection = "store_items"
	defaultTimeout     = 5 * time.Second
	clientName         = "store-mongo"
)

// Options configures the Mongo-backed store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements store.Store on top of a MongoDB collection. It also
// implements goa.design/clue/health.Pinger so it can be wired into the
// server's /health aggregation alongside other backends.
type Store struct {
	client  *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

type itemDocument struct {
	Owner     string    `bson:"owner"`
	Namespace string    `bson:"namespace"`
	Key       string    `bson:"key"`
	Value     bson.Raw  `bson:"value"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// New builds a Store and ensures its indexes exist.
func New(opts Options) (*Store, error) {
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
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "namespace", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	return &Store{client: opts.Client, coll: coll, timeout: timeout}, nil
}

func (s *Store) Name() string { return clientName }

func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Ping(ctx, readpref.Primary())
}

var _ health.Pinger = (*Store)(nil)

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Put(ctx context.Context, owner string, ns store.Namespace, key string, value any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, err := bson.MarshalValue(value)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	filter := bson.M{"owner": owner, "namespace": ns.String(), "key": key}
	update := bson.M{
		"$set": bson.M{"value": raw, "updated_at": now},
		"$setOnInsert": bson.M{
			"owner": owner, "namespace": ns.String(), "key": key, "created_at": now,
		},
	}
	_, err = s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) Get(ctx context.Context, owner string, ns store.Namespace, key string) (store.Item, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"owner": owner, "namespace": ns.String(), "key": key}
	var doc itemDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return store.Item{}, store.ErrNotFound
		}
		return store.Item{}, err
	}
	return docToItem(doc)
}

func (s *Store) Delete(ctx context.Context, owner string, ns store.Namespace, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"owner": owner, "namespace": ns.String(), "key": key}
	res, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Search(ctx context.Context, owner string, nsPrefix store.Namespace, limit, offset int) (store.SearchResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"owner": owner}
	if len(nsPrefix) > 0 {
		filter["namespace"] = bson.M{"$regex": "^" + regexEscape(nsPrefix.String())}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "namespace", Value: 1}, {Key: "key", Value: 1}})
	if offset > 0 {
		findOpts.SetSkip(int64(offset))
	}
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return store.SearchResult{}, err
	}
	defer cur.Close(ctx)

	var items []store.Item
	for cur.Next(ctx) {
		var doc itemDocument
		if err := cur.Decode(&doc); err != nil {
			return store.SearchResult{}, err
		}
		// Namespace equality is filtered server-side by regex prefix match on
		// the joined string, but the element-wise HasPrefix semantics spec
		// §4.2 requires must still be re-checked here: a string-prefix match
		// on "a/bc" would wrongly match a regex prefix of "a/b".
		item, err := docToItem(doc)
		if err != nil {
			return store.SearchResult{}, err
		}
		if item.Namespace.HasPrefix(nsPrefix) {
			items = append(items, item)
		}
	}
	if err := cur.Err(); err != nil {
		return store.SearchResult{}, err
	}
	return store.SearchResult{Items: items}, nil
}

func (s *Store) ListNamespaces(ctx context.Context, owner string) ([]store.Namespace, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, err := s.coll.Distinct(ctx, "namespace", bson.M{"owner": owner})
	if err != nil {
		return nil, err
	}
	out := make([]store.Namespace, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, store.Normalize(s))
		}
	}
	return out, nil
}

func docToItem(doc itemDocument) (store.Item, error) {
	var value any
	if len(doc.Value) > 0 {
		if err := bson.Unmarshal(doc.Value, &value); err != nil {
			// Value may be a scalar/array rather than a document; fall back
			// to UnmarshalValue for non-document BSON values.
			if err2 := bson.UnmarshalValue(bson.TypeEmbeddedDocument, doc.Value, &value); err2 != nil {
				return store.Item{}, err
			}
		}
	}
	return store.Item{
		Owner:     doc.Owner,
		Namespace: store.Normalize(doc.Namespace),
		Key:       doc.Key,
		Value:     value,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func regexEscape(s string) string {
	replacer := strings.NewReplacer(
		".", `\.`, "+", `\+`, "*", `\*`, "?", `\?`, "(", `\(`, ")", `\)`,
		"[", `\[`, "]", `\]`, "{", `\{`, "}", `\}`, "^", `\^`, "$", `\$`, "|", `\|`,
	)
	return replacer.Replace(s)
}
