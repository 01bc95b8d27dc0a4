package core

import (
	"cmp"
	"slices"
)

// Presence is one entry of the online snapshot.
type Presence struct {
	UserID   string
	Username string
}

// Registry maps online identity ids to usernames.
// It is not safe for concurrent use; the hub goroutine owns it.
type Registry struct {
	entries map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// Set adds or overwrites the entry for id.
func (r *Registry) Set(id, username string) {
	r.entries[id] = username
}

// Remove deletes the entry for id. Absent ids are ignored.
func (r *Registry) Remove(id string) {
	delete(r.entries, id)
}

// Has reports whether id is online.
func (r *Registry) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of online identities.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot returns the online identities ordered by id.
// The result is never nil so it encodes as an empty JSON array.
func (r *Registry) Snapshot() []Presence {
	out := make([]Presence, 0, len(r.entries))
	for id, name := range r.entries {
		out = append(out, Presence{UserID: id, Username: name})
	}
	slices.SortFunc(out, func(a, b Presence) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}
