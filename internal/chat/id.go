// ABOUTME: MessageID sum type distinguishing client-local temp ids from durable ids
// ABOUTME: A message carries a local id until the store assigns a durable one

package chat

import "github.com/google/uuid"

// MessageID identifies a message either by a client-generated local id
// (before the store has persisted it) or by the durable id the store
// assigned. Exactly one of the two is set; the zero value is neither.
type MessageID struct {
	local   string
	durable string
}

// NewLocalID generates a fresh client-local id. Two local ids never
// compare equal, even for identical bodies sent in the same instant.
func NewLocalID() MessageID {
	return MessageID{local: uuid.New().String()}
}

// DurableID wraps a store-assigned id.
func DurableID(id string) MessageID {
	return MessageID{durable: id}
}

// IsLocal reports whether the id is a client-local placeholder.
func (id MessageID) IsLocal() bool { return id.local != "" }

// IsDurable reports whether the id was assigned by the durable store.
func (id MessageID) IsDurable() bool { return id.durable != "" }

// IsZero reports whether neither variant is set.
func (id MessageID) IsZero() bool { return id.local == "" && id.durable == "" }

// Durable returns the durable id, or "" for local ids.
func (id MessageID) Durable() string { return id.durable }

// String returns the effective id for display and map keys.
func (id MessageID) String() string {
	if id.durable != "" {
		return id.durable
	}
	return id.local
}

// Equal reports whether two ids refer to the same variant and value.
// A local id never equals a durable id, regardless of the raw strings.
func (id MessageID) Equal(other MessageID) bool {
	return id.local == other.local && id.durable == other.durable
}
