package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/llm"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
	"github.com/fyrsmithlabs/ideabank/internal/search"
)

// maxFragmentChars bounds how much conversation text one prompt carries.
const maxFragmentChars = 24000

const generationSystemPrompt = `You mine a developer's AI-assistant conversation history for recurring items of lasting value. You respond only in the exact format requested.`

var typeInstructions = map[item.Type]string{
	item.TypeIdea:    "concrete product or tooling ideas the user has expressed or implied",
	item.TypeInsight: "durable lessons, decisions, or realizations worth remembering",
	item.TypeUseCase: "repeatable workflows or applications of the assistant the user relies on",
}

// GenerateResult is the outcome of one generation call.
type GenerateResult struct {
	Items    []*item.Item
	Warnings []string
	Usage    llm.Usage
}

// Generator prompts the LLM with retrieved fragments and extracts
// candidate items from its reply.
type Generator struct {
	client llm.Client
	logger *logging.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(client llm.Client, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{client: client, logger: logger.Named("extract")}
}

// Generate asks the model for up to count items of the given type based
// on the fragments, then parses the reply. A sentinel "no items found"
// reply is a success with zero items.
func (g *Generator) Generate(ctx context.Context, fragments []search.Fragment, typ item.Type, count int, temperature float64) (*GenerateResult, error) {
	if len(fragments) == 0 {
		return &GenerateResult{}, nil
	}

	prompt, included := buildPrompt(fragments, typ, count)
	resp, err := g.client.Complete(ctx, llm.Request{
		System:      generationSystemPrompt,
		Prompt:      prompt,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}

	parsed := Parse(resp.Text, typ)

	// The model's reply does not cite individual fragments, so every
	// extracted item is attributed to the conversations in the prompt.
	evidence := evidenceFor(included)
	for _, it := range parsed.Items {
		it.Evidence = append([]item.Evidence(nil), evidence...)
	}
	for _, w := range parsed.Warnings {
		g.logger.Warn(ctx, "generation output parse warning", zap.String("warning", w))
	}
	g.logger.Info(ctx, "generation complete",
		zap.String("type", string(typ)),
		zap.Int("requested", count),
		zap.Int("extracted", len(parsed.Items)),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
	)

	return &GenerateResult{
		Items:    parsed.Items,
		Warnings: parsed.Warnings,
		Usage:    resp.Usage,
	}, nil
}

// buildPrompt renders the generation prompt and reports which fragments
// fit within the size cap.
func buildPrompt(fragments []search.Fragment, typ item.Type, count int) (string, []search.Fragment) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Below are fragments of the user's AI-assistant conversations. Identify up to %d %ss: %s.\n\n",
		count, typ, typeInstructions[typ])

	sb.WriteString("Format each item exactly as:\n")
	sb.WriteString("1. TITLE: <short title>\nDESCRIPTION: <2-4 sentence description>\n\n")
	fmt.Fprintf(&sb, "If the fragments contain nothing usable, reply with exactly: %s\n\n", NoItemsSentinel)
	sb.WriteString("Conversation fragments:\n\n")

	used := 0
	var included []search.Fragment
	for i, f := range fragments {
		entry := fmt.Sprintf("--- fragment %d (conversation %s) ---\n%s\n\n", i+1, f.SourceID, f.Text)
		if used+len(entry) > maxFragmentChars {
			break
		}
		sb.WriteString(entry)
		used += len(entry)
		included = append(included, f)
	}

	return sb.String(), included
}

// evidenceFor builds one back-reference per source conversation,
// keeping the first fragment's timestamp and seed.
func evidenceFor(fragments []search.Fragment) []item.Evidence {
	seen := make(map[string]struct{}, len(fragments))
	evidence := make([]item.Evidence, 0, len(fragments))
	for _, f := range fragments {
		if _, ok := seen[f.SourceID]; ok {
			continue
		}
		seen[f.SourceID] = struct{}{}
		evidence = append(evidence, item.Evidence{
			ConversationID: f.SourceID,
			Timestamp:      f.Timestamp,
			Seed:           f.Seed,
		})
	}
	return evidence
}
