// Package rank orders deduplicated candidate items by an LLM-judged
// quality score. Ranking is best effort: a failed or unparseable judge
// call degrades to generation order instead of failing the run.
package rank

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/llm"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
)

// DefaultJudgeTemperature is the low temperature used for scoring
// calls when none is configured.
const DefaultJudgeTemperature = 0.1

const judgeSystemPrompt = `You are a strict quality judge for items mined from a developer's AI-assistant history. You respond only in the exact format requested.`

// scoreLine matches "<index>: <score>" with minor punctuation slack.
var scoreLine = regexp.MustCompile(`^\s*(\d+)\s*[:.\-]\s*(\d+(?:\.\d+)?)\s*$`)

// Result is the outcome of one ranking pass.
type Result struct {
	Items      []*item.Item
	Warnings   []string
	Usage      llm.Usage
	JudgeCalls int
}

// Ranker scores candidates with a judging LLM call.
type Ranker struct {
	client      llm.Client
	temperature float64
	logger      *logging.Logger
}

// NewRanker creates a Ranker judging at the given temperature. A zero
// or negative temperature falls back to DefaultJudgeTemperature.
func NewRanker(client llm.Client, temperature float64, logger *logging.Logger) *Ranker {
	if temperature <= 0 {
		temperature = DefaultJudgeTemperature
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ranker{client: client, temperature: temperature, logger: logger.Named("rank")}
}

// Rank orders items descending by judged score, ties broken by original
// generation order. A single candidate is returned unchanged without a
// judging call. If judging fails the input order is kept and a warning
// is recorded.
func (r *Ranker) Rank(ctx context.Context, typ item.Type, items []*item.Item) (*Result, error) {
	if len(items) <= 1 {
		return &Result{Items: items}, nil
	}

	resp, err := r.client.Complete(ctx, llm.Request{
		System:      judgeSystemPrompt,
		Prompt:      buildJudgePrompt(typ, items),
		Temperature: r.temperature,
	})
	if err != nil {
		warning := fmt.Sprintf("judging call failed, keeping generation order: %v", err)
		r.logger.Warn(ctx, "ranking degraded", zap.Error(err))
		return &Result{
			Items:      items,
			Warnings:   []string{warning},
			JudgeCalls: 1,
		}, nil
	}

	scores, warnings := parseScores(resp.Text, len(items))
	for _, w := range warnings {
		r.logger.Warn(ctx, "judge output parse warning", zap.String("warning", w))
	}

	ranked := make([]*item.Item, len(items))
	copy(ranked, items)
	for i, it := range ranked {
		it.Score = scores[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	r.logger.Info(ctx, "ranking complete",
		zap.String("type", string(typ)),
		zap.Int("candidates", len(items)),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
	)

	return &Result{
		Items:      ranked,
		Warnings:   warnings,
		Usage:      resp.Usage,
		JudgeCalls: 1,
	}, nil
}

func buildJudgePrompt(typ item.Type, items []*item.Item) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Score each %s below from 0 to 100 for quality and lasting relevance to the developer.\n\n", typ)
	sb.WriteString("Reply with one line per item, exactly:\n<item number>: <score>\n\nItems:\n\n")

	for i, it := range items {
		fmt.Fprintf(&sb, "%d. %s\n%s\n\n", i+1, it.Title, it.Description)
	}
	return sb.String()
}

// parseScores extracts one score per item from the judge reply. Items
// the judge skipped score zero, which the stable sort pushes to the end
// in their original relative order.
func parseScores(text string, count int) ([]float64, []string) {
	scores := make([]float64, count)
	seen := make([]bool, count)
	var warnings []string

	for _, line := range strings.Split(text, "\n") {
		m := scoreLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > count {
			warnings = append(warnings, fmt.Sprintf("judge scored unknown item %q", m[1]))
			continue
		}
		score, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if seen[idx-1] {
			continue
		}
		scores[idx-1] = score
		seen[idx-1] = true
	}

	for i, ok := range seen {
		if !ok {
			warnings = append(warnings, fmt.Sprintf("judge did not score item %d", i+1))
		}
	}
	return scores, warnings
}
