// Package memory is an in-process domain.EntityStore. It backs STORE_DRIVER=memory and the
// service tests, and follows the same merge and version rules as the postgres store.
package memory

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"
	"time"

	"eventregistration/internal/domain"
)

type record struct {
	data      map[string]json.RawMessage
	version   int64
	seq       int64
	createdAt time.Time
	updatedAt time.Time
}

// Store is a concurrency-safe in-memory document store.
type Store struct {
	mu      sync.Mutex
	docs    map[string]map[string]*record
	seq     int64
	failErr error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]map[string]*record)}
}

// FailWith makes every subsequent call return err (nil restores normal behaviour).
// Tests use it to simulate store outages.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *Store) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rec, ok := s.docs[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return toDocument(collection, id, rec)
}

func (s *Store) Create(ctx context.Context, collection, id string, fields domain.Fields) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.docs[collection][id]; ok {
		return nil, domain.ErrAlreadyExists
	}
	return s.put(collection, id, fields)
}

func (s *Store) Set(ctx context.Context, collection, id string, fields domain.Fields) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if rec, ok := s.docs[collection][id]; ok {
		data, err := encodeFields(fields)
		if err != nil {
			return nil, err
		}
		rec.data = data
		rec.version++
		rec.updatedAt = time.Now().UTC()
		return toDocument(collection, id, rec)
	}
	return s.put(collection, id, fields)
}

func (s *Store) Update(ctx context.Context, collection, id string, fields domain.Fields) (*domain.Document, error) {
	return s.update(ctx, collection, id, 0, fields)
}

func (s *Store) UpdateIfMatch(ctx context.Context, collection, id string, version int64, fields domain.Fields) (*domain.Document, error) {
	if version <= 0 {
		return nil, domain.ErrPreconditionFailed
	}
	return s.update(ctx, collection, id, version, fields)
}

func (s *Store) Query(ctx context.Context, collection string, filter domain.Fields) ([]*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	want, err := encodeFields(filter)
	if err != nil {
		return nil, err
	}
	type hit struct {
		id  string
		rec *record
	}
	var hits []hit
	for id, rec := range s.docs[collection] {
		if matches(rec.data, want) {
			hits = append(hits, hit{id: id, rec: rec})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].rec.seq < hits[j].rec.seq })

	docs := make([]*domain.Document, 0, len(hits))
	for _, h := range hits {
		doc, err := toDocument(collection, h.id, h.rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// update merges fields; a zero version skips the version check.
func (s *Store) update(ctx context.Context, collection, id string, version int64, fields domain.Fields) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rec, ok := s.docs[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if version != 0 && rec.version != version {
		return nil, domain.ErrPreconditionFailed
	}
	patch, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		rec.data[k] = v
	}
	rec.version++
	rec.updatedAt = time.Now().UTC()
	return toDocument(collection, id, rec)
}

func (s *Store) put(collection, id string, fields domain.Fields) (*domain.Document, error) {
	data, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]*record)
	}
	s.seq++
	now := time.Now().UTC()
	rec := &record{data: data, version: 1, seq: s.seq, createdAt: now, updatedAt: now}
	s.docs[collection][id] = rec
	return toDocument(collection, id, rec)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failErr
}

func encodeFields(fields domain.Fields) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}

func matches(data, want map[string]json.RawMessage) bool {
	for k, w := range want {
		got, ok := data[k]
		if !ok {
			return false
		}
		var a, b any
		if json.Unmarshal(got, &a) != nil || json.Unmarshal(w, &b) != nil {
			return false
		}
		if !reflect.DeepEqual(a, b) {
			return false
		}
	}
	return true
}

func toDocument(collection, id string, rec *record) (*domain.Document, error) {
	raw, err := json.Marshal(rec.data)
	if err != nil {
		return nil, err
	}
	return &domain.Document{
		Collection: collection,
		ID:         id,
		Data:       raw,
		Version:    rec.version,
		CreatedAt:  rec.createdAt,
		UpdatedAt:  rec.updatedAt,
	}, nil
}
