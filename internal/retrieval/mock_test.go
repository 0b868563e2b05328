package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kalambet/claimcheck/internal/llm"
)

// fakeIndex returns one passage per query, labelled after the query.
type fakeIndex struct {
	mu      sync.Mutex
	queries []string
	failOn  string
}

func (f *fakeIndex) Search(_ context.Context, query string, topK int, namespace string) ([]PolicyPassage, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return nil, errors.New("index unavailable")
	}
	return []PolicyPassage{{
		ID:           "id-" + query,
		Text:         "text for " + query,
		SectionLabel: "Section " + query,
		Score:        0.9,
	}}, nil
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// scriptedModel replays responses in order and records every request.
type scriptedModel struct {
	responses []llm.Response
	requests  []llm.Request
	err       error
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return llm.Response{}, m.err
	}
	if len(m.requests) > len(m.responses) {
		return llm.Response{}, fmt.Errorf("unexpected call %d", len(m.requests))
	}
	return m.responses[len(m.requests)-1], nil
}

// loopingModel always asks for another retrieval.
type loopingModel struct {
	calls    int
	final    string
	finalErr error
}

func (m *loopingModel) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	m.calls++
	if len(req.Tools) == 0 {
		return llm.Response{Text: m.final}, m.finalErr
	}
	return llm.Response{ToolCalls: []llm.ToolCall{retrieveCall(fmt.Sprintf("c%d", m.calls), fmt.Sprintf("query %d", m.calls))}}, nil
}

func retrieveCall(id, query string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: retrieveToolName, Arguments: queryArgs(query)}
}

// fakeEmbedder maps known words onto fixed axes.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	v := make([]float32, 3)
	switch {
	case strings.Contains(text, "warranty"):
		v[0] = 1
	case strings.Contains(text, "photo"):
		v[1] = 1
	default:
		v[2] = 1
	}
	return v, nil
}
