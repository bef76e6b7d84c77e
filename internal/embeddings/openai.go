package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIService generates embeddings through langchaingo's OpenAI
// client. It works against the OpenAI API and any OpenAI-compatible
// endpoint (TEI exposes one as well).
type OpenAIService struct {
	embedder *lcembeddings.EmbedderImpl
	config   Config
	metrics  *Metrics
}

// NewOpenAIService creates an embedding service backed by langchaingo.
func NewOpenAIService(config Config) (*OpenAIService, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token, use placeholder for
		// keyless endpoints
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIService{
		embedder: embedder,
		config:   config,
		metrics:  NewMetrics(),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (s *OpenAIService) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}

var _ Embedder = (*OpenAIService)(nil)

// New creates the Embedder named by config.Provider.
func New(config Config) (Embedder, error) {
	config.ApplyDefaults()
	switch config.Provider {
	case "tei":
		return NewTEIService(config)
	case "openai":
		return NewOpenAIService(config)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
	}
}
