package store

import (
	"context"
	"errors"
	"sync"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// MemoryStore implements UserStore with a mutex-guarded map. It backs local
// runs and every test that exercises the chat service.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.UserRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*types.UserRecord)}
}

// Get retrieves the record for the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, errNotFound(id)
	}
	return rec.Clone(), nil
}

// Create inserts a fresh record.
func (s *MemoryStore) Create(ctx context.Context, rec *types.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return errStore("create user", errors.New("record already exists"))
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Save persists the full record.
func (s *MemoryStore) Save(ctx context.Context, rec *types.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return errNotFound(rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// ActivatePremium flips the user to premium, creating the record if needed.
func (s *MemoryStore) ActivatePremium(ctx context.Context, id string) (*types.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		rec = types.NewUserRecord(id)
		s.records[id] = rec
	}
	rec.Premium = true
	return rec.Clone(), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ UserStore = (*MemoryStore)(nil)
