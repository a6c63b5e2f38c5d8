// Package memory is an in-process document store used by tests and by the
// CLI when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rmax-ai/topolord/pkg/store"
	"github.com/rmax-ai/topolord/pkg/topology"
)

type Store struct {
	mu       sync.RWMutex
	docs     map[string]topology.Document
	revision int64
	failures map[string]error
	listErr  error
}

func New(docs ...topology.Document) *Store {
	s := &Store{
		docs:     make(map[string]topology.Document),
		failures: make(map[string]error),
	}
	for _, d := range docs {
		s.docs[strings.TrimSpace(d.ID)] = d
	}
	return s
}

// FailGet makes GetByID(id) return err until cleared with a nil err.
func (s *Store) FailGet(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, id)
		return
	}
	s.failures[id] = err
}

// FailList makes ListAll return err until cleared with a nil err.
func (s *Store) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *Store) ListAll(ctx context.Context) ([]topology.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]topology.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*topology.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failures[id]; ok {
		return nil, err
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (s *Store) Put(ctx context.Context, doc topology.Document) error {
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	doc.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = doc
	s.revision++
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.docs, id)
	s.revision++
	return nil
}

func (s *Store) ChangeStamp(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}
