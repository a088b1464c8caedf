package remote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store held entirely in process memory. It backs the
// standalone daemon when no real API is configured and doubles as the
// test double for board and sync tests.
type MemoryStore struct {
	mu    sync.Mutex
	cases map[uuid.UUID]CaseRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[uuid.UUID]CaseRecord)}
}

// CreateCase stores a new record, refusing duplicates with a 409 the way
// the real API does.
func (s *MemoryStore) CreateCase(_ context.Context, rec CaseRecord) (*CaseRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[rec.ID]; ok {
		return nil, &StatusError{Code: http.StatusConflict, Status: "case already exists"}
	}
	s.cases[rec.ID] = rec
	out := rec
	return &out, nil
}

// UpdateCase replaces the stored record.
func (s *MemoryStore) UpdateCase(_ context.Context, id uuid.UUID, rec CaseRecord) (*CaseRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[id]; !ok {
		return nil, ErrNotFound
	}
	rec.ID = id
	s.cases[id] = rec
	out := rec
	return &out, nil
}

// ListOpenCases returns all records not marked closed.
func (s *MemoryStore) ListOpenCases(_ context.Context) ([]CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CaseRecord, 0, len(s.cases))
	for _, rec := range s.cases {
		if rec.Status != "closed" {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetCase fetches one record.
func (s *MemoryStore) GetCase(_ context.Context, id uuid.UUID) (*CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

// DeleteCase removes a record.
func (s *MemoryStore) DeleteCase(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[id]; !ok {
		return ErrNotFound
	}
	delete(s.cases, id)
	return nil
}

// Seed inserts records directly, bypassing validation. Test helper.
func (s *MemoryStore) Seed(recs ...CaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = time.Now().UTC()
		}
		s.cases[rec.ID] = rec
	}
}
