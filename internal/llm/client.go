// Package llm provides text generation clients for the item pipeline.
//
// A single Client serves both generation and judging; callers control
// the prompt and sampling temperature per request.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates invalid client configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPrompt indicates an empty prompt.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrEmptyResponse indicates the provider returned no content.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Category classifies a provider failure so callers can report it
// without parsing provider-specific messages.
type Category string

const (
	CategoryAuth      Category = "auth"
	CategoryRateLimit Category = "rate-limit"
	CategoryTimeout   Category = "timeout"
	CategoryNoData    Category = "no-data"
	CategoryUnknown   Category = "unknown"
)

// ProviderError wraps a provider failure with its category.
type ProviderError struct {
	Category Category
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Categorize returns the failure category of err, or CategoryUnknown
// when err carries no category.
func Categorize(err error) Category {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryUnknown
}

// Usage reports token consumption for a single completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the result of a completion request.
type Response struct {
	Text  string
	Usage Usage
}

// Request is a single completion request.
type Request struct {
	// System is an optional system prompt.
	System string

	// Prompt is the user message.
	Prompt string

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxTokens bounds the completion length. Zero means the client
	// default.
	MaxTokens int
}

// Client generates text completions.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CalculateCost estimates the dollar cost of a completion from token
// counts and per-1K-token prices.
func CalculateCost(usage Usage, costPer1KInput, costPer1KOutput float64) float64 {
	inputCost := float64(usage.InputTokens) / 1000.0 * costPer1KInput
	outputCost := float64(usage.OutputTokens) / 1000.0 * costPer1KOutput
	return inputCost + outputCost
}
