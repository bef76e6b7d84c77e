// Package extract turns free-text generation output into structured
// candidate items.
//
// The parser is deliberately forgiving: count mismatches are never an
// error, malformed trailing content is discarded with a warning, and a
// well-formed "no items found" sentinel yields zero items successfully.
package extract

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/ideabank/internal/item"
)

// NoItemsSentinel is the marker the generation prompt instructs the
// model to emit when the conversation window contains nothing usable.
const NoItemsSentinel = "NO ITEMS FOUND"

// blockBoundary matches a numbered heading at the start of a line,
// e.g. "1." or "12)".
var blockBoundary = regexp.MustCompile(`(?m)^\s*\d+[.)]\s*`)

// Result holds extracted candidates plus non-fatal parse warnings.
type Result struct {
	Items    []*item.Item
	Warnings []string
}

// Parse splits generation output into candidate items of the given
// type. It tolerates zero, fewer or more blocks than the requested
// count; callers that care about the count read len(result.Items).
func Parse(text string, typ item.Type) *Result {
	result := &Result{}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return result
	}
	firstLine, _, _ := strings.Cut(trimmed, "\n")
	if isNoItemsSentinel(firstLine) {
		return result
	}

	locs := blockBoundary.FindAllStringIndex(trimmed, -1)
	if len(locs) == 0 {
		result.Warnings = append(result.Warnings, "no numbered item blocks found in output")
		return result
	}

	// Content before the first numbered heading is preamble.
	order := 0
	for i, loc := range locs {
		start := loc[1]
		end := len(trimmed)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		block := strings.TrimSpace(trimmed[start:end])
		if block == "" {
			continue
		}

		candidate, ok := parseBlock(block, typ, order)
		if !ok {
			result.Warnings = append(result.Warnings, "discarded unparseable block: "+snippet(block))
			continue
		}
		result.Items = append(result.Items, candidate)
		order++
	}

	return result
}

// parseBlock reads one numbered block. Expected shape:
//
//	TITLE: <one line>
//	DESCRIPTION: <one or more lines>
//
// A block whose first line carries no TITLE label is treated as
// "first line is the title, rest is the description".
func parseBlock(block string, typ item.Type, order int) (*item.Item, bool) {
	title := extractField(block, "TITLE:")
	description := extractField(block, "DESCRIPTION:")

	if title == "" {
		lines := strings.SplitN(block, "\n", 2)
		title = strings.TrimSpace(lines[0])
		if description == "" && len(lines) > 1 {
			description = strings.TrimSpace(lines[1])
		}
	}

	if title == "" || description == "" {
		return nil, false
	}
	if isNoItemsSentinel(title) {
		return nil, false
	}

	candidate, err := item.NewCandidate(typ, title, description, order)
	if err != nil {
		return nil, false
	}
	return candidate, true
}

// extractField extracts the value of a labeled field from a block.
//
// Searches for the field label (e.g., "TITLE:") and extracts everything
// after it until the next field label or end of block. Handles both
// single-line and multi-line field values. Returns empty string if the
// field is not found.
func extractField(text, fieldLabel string) string {
	startIdx := strings.Index(text, fieldLabel)
	if startIdx == -1 {
		return ""
	}
	startIdx += len(fieldLabel)

	rest := text[startIdx:]
	endIdx := len(rest)
	for _, label := range []string{"TITLE:", "DESCRIPTION:"} {
		if label == fieldLabel {
			continue
		}
		if idx := strings.Index(rest, label); idx != -1 && idx < endIdx {
			endIdx = idx
		}
	}
	return strings.TrimSpace(rest[:endIdx])
}

func isNoItemsSentinel(s string) bool {
	return strings.EqualFold(strings.TrimSpace(strings.Trim(s, ".!")), NoItemsSentinel)
}

func snippet(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
