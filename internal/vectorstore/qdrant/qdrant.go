// Package qdrant stores the index in a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

const (
	DefaultURL        = "http://localhost:6333"
	DefaultCollection = "ragchat"
	DefaultTimeout    = 15 * time.Second

	scrollPage = 256
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection on first upsert.
// Qdrant only accepts UUID or integer point ids, so each chunk identity is
// mapped to a name-based UUID and kept verbatim in the "hash_id" payload.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	logger     *slog.Logger
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config, logger *slog.Logger) *Storage {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// PointID is the Qdrant point id for a chunk identity.
func PointID(hashID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hashID)).String()
}

type statusError struct {
	method, url string
	code        int
	body        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

type payload struct {
	HashID  string `json:"hash_id"`
	Text    string `json:"text,omitempty"`
	Source  string `json:"source,omitempty"`
	Page    int    `json:"page,omitempty"`
	Display string `json:"display_source,omitempty"`
}

func (p payload) chunk() domain.Chunk {
	return domain.Chunk{
		Text: p.Text,
		Metadata: domain.Metadata{
			HashID:  p.HashID,
			Source:  p.Source,
			Page:    p.Page,
			Display: p.Display,
		},
	}
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) IDs(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPage,
			"with_payload": []string{"hash_id"},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload payload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp)
		if isNotFound(err) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out[p.Payload.HashID] = struct{}{}
		}
		if resp.Result.NextPageOffset == nil {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (s *Storage) Exists(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(ids) == 0 {
		return out, nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	var resp struct {
		Result []struct {
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	req := map[string]any{"ids": points, "with_payload": []string{"hash_id"}, "with_vector": false}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points"), req, &resp)
	if isNotFound(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, p := range resp.Result {
		out[p.Payload.HashID] = struct{}{}
	}
	return out, nil
}

// Upsert sends the batch as a single request after validating all of it.
func (s *Storage) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	dim, err = vectorstore.Validate(entries, dim)
	if err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}

	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		m := e.Chunk.Metadata
		points[i] = map[string]any{
			"id":     PointID(m.HashID),
			"vector": e.Vector,
			"payload": payload{
				HashID:  m.HashID,
				Text:    e.Chunk.Text,
				Source:  m.Source,
				Page:    m.Page,
				Display: m.Display,
			},
		}
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return err
	}
	s.logger.Debug("points upserted", "collection", s.collection, "count", len(entries))
	return nil
}

// dimension returns the configured vector size of the collection, 0 if it
// does not exist yet.
func (s *Storage) dimension(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

func (s *Storage) ensureCollection(ctx context.Context, dim int) error {
	existing, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	s.logger.Info("collection created", "collection", s.collection, "dimension", dim)
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: r.Payload.chunk(), Score: r.Score})
	}
	return vectorstore.Rank(results, topK), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Reset drops the collection; a missing collection is not an error.
func (s *Storage) Reset(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	s.logger.Info("collection dropped", "collection", s.collection)
	return nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, url: url, code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
