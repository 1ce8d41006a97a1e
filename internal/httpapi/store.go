package httpapi

import (
	"net/http"

	"github.com/flowmind/agentrt/internal/identity"
	"github.com/flowmind/agentrt/internal/store"
)

type storeItemBody struct {
	Namespace any    `json:"namespace"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
}

func (s *Server) putStoreItem(w http.ResponseWriter, r *http.Request) {
	var body storeItemBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Key == "" {
		writeError(w, missingField("key"))
		return
	}
	owner := identity.CallerFromContext(r.Context())
	ns := store.Normalize(body.Namespace)
	if err := s.Store.Put(r.Context(), owner, ns, body.Key, body.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// getStoreItem and deleteStoreItem read namespace/key from the query
// string, the string-joined form (spec §4.2) rather than the JSON list
// form PUT and search accept.
func (s *Server) getStoreItem(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	ns := store.Normalize(r.URL.Query().Get("namespace"))
	key := r.URL.Query().Get("key")
	item, err := s.Store.Get(r.Context(), owner, ns, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) deleteStoreItem(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	ns := store.Normalize(r.URL.Query().Get("namespace"))
	key := r.URL.Query().Get("key")
	if err := s.Store.Delete(r.Context(), owner, ns, key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

type storeSearchBody struct {
	Namespace any `json:"namespace"`
	Limit     int `json:"limit"`
	Offset    int `json:"offset"`
}

func (s *Server) searchStoreItems(w http.ResponseWriter, r *http.Request) {
	var body storeSearchBody
	if err := decodeJSONLenient(r, &body); err != nil {
		writeError(w, err)
		return
	}
	limit := body.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	owner := identity.CallerFromContext(r.Context())
	ns := store.Normalize(body.Namespace)
	result, err := s.Store.Search(r.Context(), owner, ns, limit, body.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listStoreNamespaces(w http.ResponseWriter, r *http.Request) {
	owner := identity.CallerFromContext(r.Context())
	namespaces, err := s.Store.ListNamespaces(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, namespaces)
}
