package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/prompts"
	"github.com/kalambet/claimcheck/internal/retrieval"
	"github.com/kalambet/claimcheck/internal/synth"
)

const (
	maxQueryRunes = 2000
	noAnswer      = "I could not find an answer in the policy documentation."
)

// Answer is the reply to a free-form policy question.
type Answer struct {
	Answer            string   `json:"answer"`
	Sources           []string `json:"sources"`
	ReducedConfidence bool     `json:"reduced_confidence,omitempty"`
}

// Ask answers a store agent's policy question. The question itself seeds
// the first retrieval so every answer is grounded in retrieved text.
func (s *Service) Ask(ctx context.Context, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	switch n := utf8.RuneCountInString(query); {
	case n == 0:
		return Answer{}, apperr.Invalid("query", "required")
	case n > maxQueryRunes:
		return Answer{}, apperr.Invalid("query", fmt.Sprintf("must be at most %d characters, got %d", maxQueryRunes, n))
	}

	system, err := s.prompts.Render(prompts.Assistant, nil)
	if err != nil {
		return Answer{}, err
	}

	res, err := s.retriever.RetrieveViaAgent(ctx, retrieval.AgentRequest{
		SystemPrompt: system,
		Context:      query,
		SeedQuery:    query,
		MaxToolCalls: s.maxToolCalls,
		TopK:         s.topK,
		Synthesize:   true,
	})
	if err != nil {
		return Answer{}, err
	}
	s.metrics.RecordAgentSteps("ask", res.Steps)

	answer := strings.TrimSpace(res.Answer)
	if answer == "" {
		answer = noAnswer
	}
	return Answer{
		Answer:            answer,
		Sources:           synth.DedupSources(retrieval.Labels(res.Passages())),
		ReducedConfidence: res.BoundExceeded,
	}, nil
}
