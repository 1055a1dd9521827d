package main

import (
	"fmt"
	"time"

	"ragchat/internal/chat"
	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/hashing"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/llm"
	llmopenai "ragchat/internal/llm/openai"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
	"ragchat/internal/vectorstore/sqlite"
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func (a *app) newEmbedder() (embedding.Embedder, error) {
	switch a.cfg.Embedder.Type {
	case "hashing", "":
		return hashing.New(a.cfg.Embedder.Dimension), nil
	case "openai":
		o := a.cfg.Embedder.OpenAI
		if o == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   secs(o.TimeoutSecs),
			Dimension: o.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", a.cfg.Embedder.Type)
	}
}

func (a *app) newChunker(size, overlap int) (domain.Chunker, error) {
	switch a.cfg.Chunker.Type {
	case "recursive", "":
		c, err := chunker.NewRecursiveChunker(size, overlap)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "sentence":
		c, err := chunker.NewSentenceChunker(size, overlap)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", a.cfg.Chunker.Type)
	}
}

// openStore opens the index. path is the sqlite index directory; collection
// overrides the configured qdrant collection when set.
func (a *app) openStore(path, collection string) (vectorstore.Storage, string, error) {
	switch a.cfg.VectorStore.Type {
	case "sqlite", "":
		st, err := sqlite.Open(path, a.logger)
		if err != nil {
			return nil, "", err
		}
		return st, path, nil
	case "memory":
		return memory.NewStorage(), "memory", nil
	case "qdrant":
		q := a.cfg.VectorStore.Qdrant
		if q == nil {
			return nil, "", fmt.Errorf("qdrant config missing")
		}
		if collection == "" {
			collection = q.Collection
		}
		st := qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: collection,
			Timeout:    secs(q.TimeoutSecs),
		}, a.logger)
		return st, "qdrant collection " + collection, nil
	default:
		return nil, "", fmt.Errorf("unknown vector store: %s", a.cfg.VectorStore.Type)
	}
}

func (a *app) newGenerator() (llm.Generator, error) {
	client, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:     a.cfg.LLM.BaseURL,
		APIKeyEnv:   a.cfg.LLM.APIKeyEnv,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
		Timeout:     secs(a.cfg.LLM.TimeoutSecs),
	})
	if err != nil {
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	return client, nil
}

func (a *app) topics() []chat.Topic {
	out := make([]chat.Topic, len(a.cfg.Chat.Topics))
	for i, t := range a.cfg.Chat.Topics {
		out[i] = chat.Topic{ID: t.ID, Label: t.Label, Retrieval: t.Retrieval, Index: t.Index}
	}
	return out
}

// openTopicStore opens the index of topic t, falling back to chromaPath for
// topics without their own.
func (a *app) openTopicStore(t chat.Topic, chromaPath string) (vectorstore.Storage, string, error) {
	if t.Index == "" {
		return a.openStore(chromaPath, "")
	}
	return a.openStore(t.Index, t.Index)
}

func (a *app) topic(id string) (chat.Topic, error) {
	for _, t := range a.topics() {
		if t.ID == id {
			return t, nil
		}
	}
	return chat.Topic{}, fmt.Errorf("%w: %q", domain.ErrUnknownTopic, id)
}

