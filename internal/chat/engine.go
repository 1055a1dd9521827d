package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ragchat/internal/domain"
	"ragchat/internal/llm"
	"ragchat/internal/service"
)

// DefaultNoInfoReply answers questions for which retrieval found nothing.
const DefaultNoInfoReply = "I couldn't find any relevant information."

// Retriever is the part of service.Retriever the engine needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]service.Hit, error)
}

type Config struct {
	Topics []Topic
	// Retrievers maps topic IDs to their own index. Retrieval topics not
	// listed use the retriever passed to NewEngine.
	Retrievers  map[string]Retriever
	TopK        int
	NoInfoReply string
	Logger      *slog.Logger
}

// Reply is the outcome of one turn.
type Reply struct {
	Text    string
	Sources []domain.Source
	// Index is the position of the assistant message in the topic log.
	Index int
}

// Engine answers questions turn by turn. Sessions carry all conversation
// state; an Engine can serve many of them.
type Engine struct {
	retriever  Retriever
	retrievers map[string]Retriever
	generator  llm.Generator
	topics     map[string]Topic
	topK       int
	noInfo     string
	logger     *slog.Logger
}

func NewEngine(retriever Retriever, generator llm.Generator, cfg Config) *Engine {
	if len(cfg.Topics) == 0 {
		cfg.Topics = DefaultTopics()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = service.DefaultTopK
	}
	if cfg.NoInfoReply == "" {
		cfg.NoInfoReply = DefaultNoInfoReply
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	topics := make(map[string]Topic, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics[t.ID] = t
	}
	return &Engine{
		retriever:  retriever,
		retrievers: cfg.Retrievers,
		generator:  generator,
		topics:     topics,
		topK:       cfg.TopK,
		noInfo:     cfg.NoInfoReply,
		logger:     cfg.Logger,
	}
}

func (e *Engine) retrieverFor(topic string) (Retriever, error) {
	if r, ok := e.retrievers[topic]; ok {
		return r, nil
	}
	if e.retriever == nil {
		return nil, fmt.Errorf("topic %q has no index", topic)
	}
	return e.retriever, nil
}

// Topic looks up a configured topic.
func (e *Engine) Topic(id string) (Topic, bool) {
	t, ok := e.topics[id]
	return t, ok
}

// Turn records the question, retrieves passages for retrieval topics, asks
// the model and records its answer. If retrieval or generation fails the
// question stays in the log, no answer is recorded and the context is kept.
func (e *Engine) Turn(ctx context.Context, s *Session, topicID, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, domain.ErrEmptyQuery
	}
	topic, ok := e.topics[topicID]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", domain.ErrUnknownTopic, topicID)
	}
	log := e.logger.With("session", s.ID, "topic", topic.ID)

	if _, err := s.AppendUser(topic.ID, question); err != nil {
		return Reply{}, err
	}
	history, err := s.RenderHistory(topic.ID)
	if err != nil {
		return Reply{}, err
	}

	var (
		texts   []string
		sources []domain.Source
	)
	if topic.Retrieval {
		r, err := e.retrieverFor(topic.ID)
		if err != nil {
			return Reply{}, err
		}
		hits, err := r.Retrieve(ctx, question, e.topK)
		if err != nil {
			return Reply{}, fmt.Errorf("retrieve: %w", err)
		}
		if len(hits) == 0 {
			log.Debug("no passages retrieved")
			idx, err := s.AppendAssistant(topic.ID, e.noInfo, nil)
			if err != nil {
				return Reply{}, err
			}
			return Reply{Text: e.noInfo, Index: idx}, nil
		}
		for _, h := range hits {
			texts = append(texts, h.Chunk.Text)
			sources = append(sources, h.Source)
		}
	}

	prompt := BuildPrompt(Fold(s.Context(topic.ID), texts), history, question)
	log.Debug("prompt assembled", "passages", len(texts), "chars", len(prompt))

	answer, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		log.Error("generation failed", "model", e.generator.Model(), "err", err)
		return Reply{}, fmt.Errorf("generate answer: %w", err)
	}
	if _, err := s.Fold(topic.ID, texts); err != nil {
		return Reply{}, err
	}
	idx, err := s.AppendAssistant(topic.ID, answer, sources)
	if err != nil {
		return Reply{}, err
	}
	log.Info("turn answered", "sources", len(sources))
	return Reply{Text: answer, Sources: sources, Index: idx}, nil
}
