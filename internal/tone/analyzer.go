// Package tone classifies the tone of customer claim narratives.
package tone

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/claimcheck/internal/llm"
	"github.com/kalambet/claimcheck/internal/prompts"
)

const analysisTimeout = 20 * time.Second

const maxIndicators = 6

type Tone string

const (
	Positive   Tone = "positive"
	Neutral    Tone = "neutral"
	Negative   Tone = "negative"
	Frustrated Tone = "frustrated"
)

// Analysis is the classification of a message. Confidence is the model's
// own estimate, not a calibrated probability.
type Analysis struct {
	Tone       Tone     `json:"tone"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators"`
}

// Fallback is returned when the model answers with something unparseable.
func Fallback() Analysis {
	return Analysis{Tone: Neutral, Confidence: 0.5, Indicators: []string{}}
}

type Analyzer struct {
	model   llm.Model
	prompts prompts.Renderer
}

func NewAnalyzer(model llm.Model, p prompts.Renderer) *Analyzer {
	return &Analyzer{model: model, prompts: p}
}

// Analyze classifies text. A model transport failure is returned as an
// error; a malformed model answer degrades to Fallback.
func (a *Analyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return Fallback(), nil
	}

	prompt, err := a.prompts.Render(prompts.Tone, map[string]any{"Text": text})
	if err != nil {
		return Analysis{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	resp, err := a.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{llm.User(prompt)},
		JSON:     true,
	})
	if err != nil {
		return Analysis{}, err
	}

	var raw struct {
		Tone       string   `json:"tone"`
		Confidence float64  `json:"confidence"`
		Indicators []string `json:"indicators"`
	}
	if err := llm.DecodeJSON(resp.Text, &raw); err != nil {
		slog.Warn("failed to parse tone analysis from model response", "error", err, "response", resp.Text)
		return Fallback(), nil
	}

	return Analysis{
		Tone:       normalize(raw.Tone),
		Confidence: clamp(raw.Confidence),
		Indicators: cleanIndicators(raw.Indicators),
	}, nil
}

// normalize maps model vocabulary onto the four tones. Unknown labels are
// treated as neutral.
func normalize(s string) Tone {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "kind", "polite", "friendly":
		return Positive
	case "negative", "disappointed", "unhappy", "sad":
		return Negative
	case "frustrated", "aggressive", "angry", "hostile":
		return Frustrated
	default:
		return Neutral
	}
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func cleanIndicators(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxIndicators {
			break
		}
	}
	return out
}
