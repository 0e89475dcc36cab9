package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names used by the entity store.
const (
	CollectionTeams                   = "teams"
	CollectionAudiovisualApplications = "audiovisual_applications"
	CollectionPayments                = "payments"
	CollectionInvitations             = "invitations"
	CollectionInvitationSlots         = "invitation_slots"
)

// Fields is a partial document used for writes. Keys are top-level JSON fields.
type Fields map[string]any

// Document is a stored JSON object plus the metadata the store maintains.
// Version starts at 1 and increments on every write.
type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode unmarshals the document data into v.
func (d *Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// EntityStore is the document store contract the core needs: get, set, merge-update,
// update-if-match and top-level equality queries. No schema is enforced.
type EntityStore interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Create returns ErrAlreadyExists when the document exists.
	Create(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	// Update merges fields into the document's top level. Returns ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	// UpdateIfMatch merges fields only when the stored version equals version.
	// Returns ErrPreconditionFailed on mismatch and ErrNotFound when absent.
	UpdateIfMatch(ctx context.Context, collection, id string, version int64, fields Fields) (*Document, error)
	// Query returns documents whose top-level fields equal every filter value, oldest first.
	Query(ctx context.Context, collection string, filter Fields) ([]*Document, error)
}

// FieldsOf converts a JSON-tagged struct into Fields for a full write.
func FieldsOf(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
