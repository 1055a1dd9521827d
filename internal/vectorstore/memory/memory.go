package memory

import (
	"context"
	"fmt"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

var (
	_ vectorstore.Storage = (*Storage)(nil)
	_ vectorstore.Binder  = (*Storage)(nil)
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	embedder  string
	index     map[string]int
	vectors   [][]float32
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{index: make(map[string]int)} }

func (s *Storage) Bind(_ context.Context, embedder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder == "" {
		s.embedder = embedder
		return nil
	}
	if s.embedder != embedder {
		return &vectorstore.ErrEmbedderMismatch{Stored: s.embedder, Requested: embedder}
	}
	return nil
}

func (s *Storage) IDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.index))
	for id := range s.index {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Storage) Exists(_ context.Context, ids []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// Upsert validates the whole batch before touching any state.
func (s *Storage) Upsert(_ context.Context, entries []vectorstore.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.Validate(entries, s.dimension)
	if err != nil {
		return err
	}
	s.dimension = dim
	for _, e := range entries {
		id := e.Chunk.ID()
		if i, ok := s.index[id]; ok {
			s.chunks[i] = e.Chunk
			s.vectors[i] = e.Vector
			continue
		}
		s.index[id] = len(s.chunks)
		s.chunks = append(s.chunks, e.Chunk)
		s.vectors = append(s.vectors, e.Vector)
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	results := make([]domain.SearchResult, 0, len(s.chunks))
	for i := range s.vectors {
		results = append(results, domain.SearchResult{Chunk: s.chunks[i], Score: vectorstore.Cosine(s.vectors[i], vector)})
	}
	return vectorstore.Rank(results, topK), nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]int)
	s.vectors = nil
	s.chunks = nil
	s.dimension = 0
	s.embedder = ""
	return nil
}

func (s *Storage) Close() error { return nil }
