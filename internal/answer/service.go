package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/kb-server/internal/llm"
)

// ErrGeneration indicates the generative model call failed or timed out.
var ErrGeneration = errors.New("answer generation failed")

// Options tune a single answer call. Zero values fall back to the
// service's defaults.
type Options struct {
	TopK        int
	Temperature float32
}

// Service answers questions grounded in retrieved context.
type Service struct {
	retriever *Retriever
	generator llm.Generator
	topK      int
	logger    *slog.Logger
}

// NewService creates an answer service with the given default topK.
func NewService(retriever *Retriever, generator llm.Generator, topK int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// Answer retrieves context for the question and invokes the generator
// with the composed prompt, returning its raw output. When retrieval
// finds nothing, the fixed NoContextAnswer is returned and the generator
// is not invoked, avoiding wasted calls and hallucination on empty
// context.
func (s *Service) Answer(ctx context.Context, question string, opts Options) (string, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = s.topK
	}

	results, err := s.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		s.logger.Info("No context retrieved, skipping generation", "question_len", len(question))
		return NoContextAnswer, nil
	}

	prompt := BuildPrompt(question, results)
	s.logger.Debug("Composed prompt", "chunks", len(results), "prompt_len", len(prompt))

	text, err := s.generator.Generate(ctx, prompt, opts.Temperature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return text, nil
}
