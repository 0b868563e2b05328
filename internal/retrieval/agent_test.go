package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/llm"
)

func TestClampToolCalls(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultMaxToolCalls},
		{-3, DefaultMaxToolCalls},
		{1, 1},
		{8, 8},
		{20, HardToolCallCap},
	}
	for _, tt := range tests {
		if got := ClampToolCalls(tt.in); got != tt.want {
			t.Errorf("ClampToolCalls(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAgentStopsWhenModelAnswers(t *testing.T) {
	idx := &fakeIndex{}
	model := &scriptedModel{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{retrieveCall("c1", "warranty period sofa")}},
		{Text: "The warranty period is 90 days."},
	}}
	r := NewRetriever(idx, model, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{SystemPrompt: "sys", Context: "claim"})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if res.Steps != 1 {
		t.Errorf("Steps = %d, want 1", res.Steps)
	}
	if res.BoundExceeded {
		t.Error("BoundExceeded = true, want false")
	}
	if res.Answer != "The warranty period is 90 days." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(res.Results) != 1 || res.Results[0].Mode != ModeAgentStep {
		t.Errorf("Results = %+v, want one agent-step result", res.Results)
	}
	if res.BoundError() != nil {
		t.Errorf("BoundError() = %v, want nil", res.BoundError())
	}

	// The second request must carry the tool output back to the model.
	last := model.requests[1].Messages
	toolMsg := last[len(last)-1]
	if toolMsg.Role != llm.RoleTool || toolMsg.ToolCallID != "c1" {
		t.Errorf("last message = %+v, want tool reply to c1", toolMsg)
	}
}

func TestAgentRespectsStepCap(t *testing.T) {
	idx := &fakeIndex{}
	model := &loopingModel{final: "best effort"}
	r := NewRetriever(idx, model, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{MaxToolCalls: 3})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if res.Steps != 3 {
		t.Errorf("Steps = %d, want 3", res.Steps)
	}
	if idx.count() != 3 {
		t.Errorf("index searched %d times, want 3", idx.count())
	}
	if !res.BoundExceeded {
		t.Error("BoundExceeded = false, want true")
	}
	if res.Answer != "" {
		t.Errorf("Answer = %q, want empty without Synthesize", res.Answer)
	}
	var bound *apperr.AgentBoundExceeded
	if !errors.As(res.BoundError(), &bound) || bound.Cap != 3 {
		t.Errorf("BoundError() = %v, want AgentBoundExceeded with cap 3", res.BoundError())
	}
}

func TestAgentHardCap(t *testing.T) {
	idx := &fakeIndex{}
	r := NewRetriever(idx, &loopingModel{}, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{MaxToolCalls: 50})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if res.Steps != HardToolCallCap || res.Cap != HardToolCallCap {
		t.Errorf("Steps = %d, Cap = %d, want %d", res.Steps, res.Cap, HardToolCallCap)
	}
}

func TestAgentSynthesizesAfterCap(t *testing.T) {
	model := &loopingModel{final: "answer from gathered passages"}
	r := NewRetriever(&fakeIndex{}, model, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{MaxToolCalls: 2, Synthesize: true})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if res.Answer != "answer from gathered passages" {
		t.Errorf("Answer = %q", res.Answer)
	}
	// two planning calls plus one closing call without tools
	if model.calls != 3 {
		t.Errorf("model calls = %d, want 3", model.calls)
	}
}

func TestAgentSeedQueryCountsAsStep(t *testing.T) {
	idx := &fakeIndex{}
	model := &scriptedModel{responses: []llm.Response{{Text: "done"}}}
	r := NewRetriever(idx, model, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{SeedQuery: "warranty deadlines", MaxToolCalls: 1})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if len(idx.queries) == 0 || idx.queries[0] != "warranty deadlines" {
		t.Fatalf("queries = %v, want seed first", idx.queries)
	}
	if res.Steps != 1 {
		t.Errorf("Steps = %d, want 1", res.Steps)
	}
	// budget of one is spent by the seed, so the model is never consulted
	if len(model.requests) != 0 {
		t.Errorf("model called %d times, want 0", len(model.requests))
	}
	if !res.BoundExceeded {
		t.Error("BoundExceeded = false, want true")
	}
}

func TestAgentExecutesOneCallPerStep(t *testing.T) {
	idx := &fakeIndex{}
	model := &scriptedModel{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{retrieveCall("a", "first"), retrieveCall("b", "second")}},
		{Text: "ok"},
	}}
	r := NewRetriever(idx, model, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if res.Steps != 1 || idx.count() != 1 {
		t.Errorf("Steps = %d, searches = %d, want 1 and 1", res.Steps, idx.count())
	}
	msgs := model.requests[1].Messages
	var replied []string
	for _, m := range msgs {
		if m.Role == llm.RoleTool {
			replied = append(replied, m.ToolCallID)
		}
	}
	if len(replied) != 2 || replied[0] != "a" || replied[1] != "b" {
		t.Errorf("tool replies = %v, want [a b]", replied)
	}
}

func TestAgentMalformedArgumentsConsumeStep(t *testing.T) {
	idx := &fakeIndex{}
	model := &scriptedModel{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "bad", Name: retrieveToolName, Arguments: "{not json"}}},
		{Text: "gave up"},
	}}
	r := NewRetriever(idx, model, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if res.Steps != 1 {
		t.Errorf("Steps = %d, want 1", res.Steps)
	}
	if idx.count() != 0 {
		t.Errorf("index searched %d times, want 0", idx.count())
	}
}

func TestAgentFinishTool(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "f", Name: finishToolName, Arguments: `{"summary":"found the deadlines"}`}}},
	}}
	r := NewRetriever(&fakeIndex{}, model, "default", 4)

	res, err := r.RetrieveViaAgent(context.Background(), AgentRequest{})
	if err != nil {
		t.Fatalf("RetrieveViaAgent: %v", err)
	}
	if res.Answer != "found the deadlines" {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.BoundExceeded {
		t.Error("BoundExceeded = true, want false")
	}
}

func TestAgentIndexFailure(t *testing.T) {
	model := &scriptedModel{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{retrieveCall("c1", "broken query")}},
	}}
	r := NewRetriever(&fakeIndex{failOn: "broken"}, model, "default", 4)

	_, err := r.RetrieveViaAgent(context.Background(), AgentRequest{})
	if !apperr.IsUpstream(err) {
		t.Errorf("err = %v, want UpstreamServiceError", err)
	}
}

func TestAgentModelFailure(t *testing.T) {
	tests := []struct {
		name  string
		model llm.Model
		req   AgentRequest
	}{
		{"planning", &scriptedModel{err: errors.New("503 service unavailable")}, AgentRequest{}},
		{"synthesis", &loopingModel{finalErr: errors.New("503 service unavailable")}, AgentRequest{MaxToolCalls: 2, Synthesize: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(&fakeIndex{}, tt.model, "default", 4)

			_, err := r.RetrieveViaAgent(context.Background(), tt.req)
			var up *apperr.UpstreamServiceError
			if !errors.As(err, &up) || up.Service != apperr.ServiceModel {
				t.Errorf("err = %v, want model UpstreamServiceError", err)
			}
		})
	}
}

func TestAgentRequiresModel(t *testing.T) {
	r := NewRetriever(&fakeIndex{}, nil, "default", 4)
	if _, err := r.RetrieveViaAgent(context.Background(), AgentRequest{}); err == nil {
		t.Error("expected error without model")
	}
}
