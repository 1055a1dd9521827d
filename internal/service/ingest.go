// Package service wires chunking, identity, embedding and the index into the
// ingestion and retrieval paths.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/identity"
	"ragchat/internal/vectorstore"
)

// Report summarises one ingestion run.
type Report struct {
	Documents int
	Chunks    int
	Added     int
	Skipped   int
}

// Ingestor adds chunks to the index, skipping identities already stored.
type Ingestor struct {
	chunker  domain.Chunker
	embedder embedding.Embedder
	store    vectorstore.Storage
	logger   *slog.Logger
}

func NewIngestor(chunker domain.Chunker, embedder embedding.Embedder, store vectorstore.Storage, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{chunker: chunker, embedder: embedder, store: store, logger: logger}
}

// Split chunks every document and assigns identities and locators. Ordinals
// restart with each call.
func (s *Ingestor) Split(documents []domain.Document) ([]domain.Chunk, error) {
	var all []domain.Chunk
	for _, d := range documents {
		chunks, err := s.chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunk %s page %d: %w", d.Metadata.Source, d.Metadata.Page, err)
		}
		all = append(all, chunks...)
	}
	return identity.NewAssigner().AssignAll(all), nil
}

// Pending returns the chunks whose identity is not in the index yet, in
// input order. Repeated identities within chunks keep the first occurrence.
func (s *Ingestor) Pending(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	existing, err := s.store.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed chunks: %w", err)
	}
	seen := make(map[string]struct{}, len(chunks))
	var pending []domain.Chunk
	for _, c := range chunks {
		id := c.ID()
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			s.logger.Debug("duplicate chunk in run", "id", id, "source", c.Metadata.Display)
			continue
		}
		seen[id] = struct{}{}
		pending = append(pending, c)
	}
	return pending, nil
}

// Write embeds chunks and stores them in one batch. Nothing is stored if any
// embedding or the upsert fails.
func (s *Ingestor) Write(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := vectorstore.CheckEmbedder(ctx, s.store, s.embedder.Name()); err != nil {
		return err
	}
	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		vec, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", c.Metadata.Display, err)
		}
		entries[i] = vectorstore.Entry{Chunk: c, Vector: vec}
	}
	if err := s.store.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	// recorded only once the index holds vectors from this embedder
	if b, ok := s.store.(vectorstore.Binder); ok {
		if err := b.Bind(ctx, s.embedder.Name()); err != nil {
			return err
		}
	}
	return nil
}

// Ingest runs Split, Pending and Write over documents.
func (s *Ingestor) Ingest(ctx context.Context, documents []domain.Document) (Report, error) {
	report := Report{Documents: len(documents)}
	chunks, err := s.Split(documents)
	if err != nil {
		return report, err
	}
	report.Chunks = len(chunks)

	pending, err := s.Pending(ctx, chunks)
	if err != nil {
		return report, err
	}
	if err := s.Write(ctx, pending); err != nil {
		return report, err
	}
	report.Added = len(pending)
	report.Skipped = report.Chunks - report.Added
	s.logger.Info("ingestion finished",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"added", report.Added,
		"skipped", report.Skipped,
		"embedder", s.embedder.Name())
	return report, nil
}
