// Package store implements the cross-thread, user-scoped, namespaced
// key-value store described in spec §4.2: agent long-term memory and the
// MCP OAuth token cache both live here, isolated by owner.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no item exists at the given (owner, namespace, key).
var ErrNotFound = errors.New("store: item not found")

// Item is a single stored value plus its bookkeeping timestamps (spec
// §3.1). Value is never interpreted by the store — it is opaque JSON-
// serializable data round-tripped verbatim.
type Item struct {
	Owner     string
	Namespace Namespace
	Key       string
	Value     any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SearchResult is the return shape of Search: the matched items within
// limit/offset. It does not report whether more results exist.
type SearchResult struct {
	Items []Item
}

// Store is the contract every backend (in-memory, Mongo) must satisfy.
// Every operation is scoped to owner; there is no cross-owner access path.
type Store interface {
	// Put upserts a value. Returns nil regardless of whether the key
	// previously existed.
	Put(ctx context.Context, owner string, ns Namespace, key string, value any) error

	// Get returns the item or ErrNotFound.
	Get(ctx context.Context, owner string, ns Namespace, key string) (Item, error)

	// Delete removes the item, returning ErrNotFound if it did not exist.
	Delete(ctx context.Context, owner string, ns Namespace, key string) error

	// Search returns items whose namespace has nsPrefix as an element-wise
	// prefix, ordered deterministically (by namespace then key) so limit/
	// offset paging is stable.
	Search(ctx context.Context, owner string, nsPrefix Namespace, limit, offset int) (SearchResult, error)

	// ListNamespaces returns every distinct namespace the owner has
	// written to, each in canonical list form.
	ListNamespaces(ctx context.Context, owner string) ([]Namespace, error)
}

// OAuthTokenNamespace returns the internal namespace used to cache MCP
// OAuth server tokens (spec §4.2, §4.9), scoped so it can never collide
// with user-written namespaces: it lives under the reserved
// "system_internal" owner rather than the real caller's owner.
func OAuthTokenNamespace(userID string) (owner string, ns Namespace) {
	return "system_internal", Namespace{userID, "oauth"}
}
