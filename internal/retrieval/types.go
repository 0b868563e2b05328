// Package retrieval searches the policy index, either with a fixed batch of
// queries or through a bounded model-driven tool loop.
package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// Mode tags how a RetrievalResult was produced.
type Mode string

const (
	ModeBatch     Mode = "batch"
	ModeAgentStep Mode = "agent-step"
)

// PolicyPassage is a chunk of policy text returned by the index.
type PolicyPassage struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	SectionLabel string  `json:"section_label"`
	Score        float32 `json:"score"`
}

// RetrievalResult holds the passages for one query, highest score first.
type RetrievalResult struct {
	Query    string          `json:"query"`
	Passages []PolicyPassage `json:"passages"`
	Mode     Mode            `json:"mode"`
}

// Index is the semantic policy index.
type Index interface {
	Search(ctx context.Context, query string, topK int, namespace string) ([]PolicyPassage, error)
}

// Passages flattens results into one list, dropping repeated passages while
// keeping the first occurrence.
func Passages(results []RetrievalResult) []PolicyPassage {
	seenID := make(map[string]bool)
	seenText := make(map[string]bool)
	var out []PolicyPassage
	for _, r := range results {
		for _, p := range r.Passages {
			if (p.ID != "" && seenID[p.ID]) || seenText[p.Text] {
				continue
			}
			seenID[p.ID] = true
			seenText[p.Text] = true
			out = append(out, p)
		}
	}
	return out
}

// Labels returns the non-empty section labels of passages in order,
// including repeats.
func Labels(passages []PolicyPassage) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		if l := strings.TrimSpace(p.SectionLabel); l != "" {
			out = append(out, l)
		}
	}
	return out
}

const unlabeled = "Unlabeled policy passage"

// FormatPassages renders passages for a model prompt. Each passage is
// introduced by its "Source:" label so the model can cite it.
func FormatPassages(passages []PolicyPassage) string {
	if len(passages) == 0 {
		return "No matching policy passages found."
	}
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		label := strings.TrimSpace(p.SectionLabel)
		if label == "" {
			label = unlabeled
		}
		fmt.Fprintf(&sb, "Source: %s\n\nContent: %s", label, strings.TrimSpace(p.Text))
	}
	return sb.String()
}
