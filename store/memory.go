package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type docRecord struct {
	info    DocumentInfo
	history []json.RawMessage
}

// MemoryStore is an in-memory implementation of HistoryStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*docRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*docRecord)}
}

func (s *MemoryStore) Create(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; exists {
		return fmt.Errorf("document %q already exists", id)
	}
	now := time.Now()
	s.docs[id] = &docRecord{
		info: DocumentInfo{ID: id, CreatedAt: now, UpdatedAt: now},
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q not found", id)
	}
	info := rec.info
	return &info, nil
}

func (s *MemoryStore) List(_ context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]DocumentInfo, 0, len(s.docs))
	for _, rec := range s.docs {
		result = append(result, rec.info)
	}
	return result, nil
}

func (s *MemoryStore) AppendTransactions(_ context.Context, id string, txs []json.RawMessage, length int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q not found", id)
	}
	rec.history = append(rec.history, txs...)
	rec.info.Length = length
	rec.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetTransactions(_ context.Context, id string, from int) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if from < 0 || from > len(rec.history) {
		return nil, fmt.Errorf("invalid position %d", from)
	}
	txs := make([]json.RawMessage, len(rec.history)-from)
	copy(txs, rec.history[from:])
	return txs, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*docRecord)
	return nil
}
