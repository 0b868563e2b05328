package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/claimcheck/internal/apperr"
	"github.com/kalambet/claimcheck/internal/llm"
)

const (
	DefaultMaxToolCalls = 5

	// HardToolCallCap is the ceiling applied to any requested budget.
	HardToolCallCap = 8
)

const (
	retrieveToolName = "retrieve_policies"
	finishToolName   = "finish_retrieval"
	seedCallID       = "seed_0"
)

var agentTools = []llm.Tool{
	{
		Name:        retrieveToolName,
		Description: "Search the company policy documentation. Returns the most relevant passages with their section labels.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "A focused search query, e.g. \"warranty period for mechanical damage on sofas\".",
				},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        finishToolName,
		Description: "Signal that enough policy text has been gathered.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{"type": "string", "description": "Short summary of what was found."},
			},
		},
	},
}

// AgentRequest configures one agent retrieval loop.
type AgentRequest struct {
	SystemPrompt string

	// Context is the opening user message, e.g. the claim details.
	Context string

	// SeedQuery, when set, is executed as the first retrieval step before
	// the model plans, so the loop never ends ungrounded.
	SeedQuery string

	// MaxToolCalls defaults to DefaultMaxToolCalls and is clamped to
	// HardToolCallCap.
	MaxToolCalls int

	TopK int

	// Synthesize asks for a final tool-free answer when the budget runs
	// out before the model finished on its own.
	Synthesize bool
}

// AgentResult is what the loop gathered.
type AgentResult struct {
	Results       []RetrievalResult
	Steps         int
	Cap           int
	BoundExceeded bool

	// Answer is the model's closing text, if any.
	Answer string
}

// Passages returns the distinct passages gathered across all steps.
func (a AgentResult) Passages() []PolicyPassage {
	return Passages(a.Results)
}

// BoundError returns an *apperr.AgentBoundExceeded when the loop was cut
// off, and nil otherwise.
func (a AgentResult) BoundError() error {
	if !a.BoundExceeded {
		return nil
	}
	return &apperr.AgentBoundExceeded{Steps: a.Steps, Cap: a.Cap}
}

// ClampToolCalls applies the default and the hard cap to a requested budget.
func ClampToolCalls(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxToolCalls
	case n > HardToolCallCap:
		return HardToolCallCap
	default:
		return n
	}
}

type agentState int

const (
	statePlanning agentState = iota
	stateRetrieving
	stateSynthesizing
	stateDone
)

func (s agentState) String() string {
	switch s {
	case statePlanning:
		return "planning"
	case stateRetrieving:
		return "retrieving"
	case stateSynthesizing:
		return "synthesizing"
	default:
		return "done"
	}
}

// RetrieveViaAgent runs a bounded plan/retrieve loop. Each planning step is
// one model call; each step executes at most one tool call. The loop ends
// when the model stops calling tools or when the tool-call budget is spent.
// Running out of budget is reported through AgentResult.BoundExceeded, not
// as an error.
func (r *Retriever) RetrieveViaAgent(ctx context.Context, req AgentRequest) (AgentResult, error) {
	if r.model == nil {
		return AgentResult{}, errors.New("agent retrieval requires a model")
	}

	limit := ClampToolCalls(req.MaxToolCalls)
	topK := req.TopK
	if topK <= 0 {
		topK = r.topK
	}

	res := AgentResult{Cap: limit}
	msgs := []llm.Message{llm.System(req.SystemPrompt), llm.User(req.Context)}
	var pending []llm.ToolCall
	state := statePlanning

	if q := strings.TrimSpace(req.SeedQuery); q != "" {
		seed := llm.ToolCall{ID: seedCallID, Name: retrieveToolName, Arguments: queryArgs(q)}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{seed}})
		pending = []llm.ToolCall{seed}
		state = stateRetrieving
	}

	for state != stateDone {
		slog.Debug("agent retrieval", "state", state, "steps", res.Steps, "cap", limit)

		switch state {
		case statePlanning:
			if res.Steps >= limit {
				res.BoundExceeded = true
				slog.Warn("agent retrieval hit tool-call cap", "steps", res.Steps, "cap", limit)
				state = stateSynthesizing
				continue
			}

			resp, err := r.model.Complete(ctx, llm.Request{Messages: msgs, Tools: agentTools})
			if err != nil {
				return AgentResult{}, apperr.Upstream(apperr.ServiceModel, "complete", err)
			}
			if len(resp.ToolCalls) == 0 {
				res.Answer = resp.Text
				state = stateSynthesizing
				continue
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
			pending = resp.ToolCalls
			state = stateRetrieving

		case stateRetrieving:
			call := pending[0]
			if call.Name == finishToolName {
				res.Steps++
				res.Answer = finishSummary(call.Arguments, lastAssistantText(msgs))
				state = stateSynthesizing
				continue
			}

			content, err := r.runToolCall(ctx, call, topK, &res)
			if err != nil {
				return AgentResult{}, err
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: content})
			for _, skipped := range pending[1:] {
				msgs = append(msgs, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: skipped.ID,
					Content:    "Not executed: issue one tool call per step.",
				})
			}
			pending = nil
			state = statePlanning

		case stateSynthesizing:
			if res.BoundExceeded && req.Synthesize {
				msgs = append(msgs, llm.User("The retrieval budget is spent. Answer now using only the policy passages retrieved above."))
				resp, err := r.model.Complete(ctx, llm.Request{Messages: msgs})
				if err != nil {
					return AgentResult{}, apperr.Upstream(apperr.ServiceModel, "complete", err)
				}
				res.Answer = resp.Text
			}
			state = stateDone
		}
	}

	return res, nil
}

// runToolCall executes one retrieval and returns the tool message content.
// Every tool call consumes one step of the budget, including malformed ones.
func (r *Retriever) runToolCall(ctx context.Context, call llm.ToolCall, topK int, res *AgentResult) (string, error) {
	res.Steps++

	if call.Name != retrieveToolName {
		return fmt.Sprintf("Error: unknown tool %q. Use %s.", call.Name, retrieveToolName), nil
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return fmt.Sprintf("Error: %s needs a non-empty \"query\" string argument.", retrieveToolName), nil
	}

	passages, err := r.index.Search(ctx, args.Query, topK, r.namespace)
	if err != nil {
		return "", apperr.Upstream(apperr.ServiceIndex, "search", err)
	}
	res.Results = append(res.Results, RetrievalResult{Query: args.Query, Passages: passages, Mode: ModeAgentStep})
	slog.Debug("agent retrieval step", "query", args.Query, "passages", len(passages))

	return FormatPassages(passages), nil
}

func queryArgs(q string) string {
	b, _ := json.Marshal(map[string]string{"query": q})
	return string(b)
}

func finishSummary(arguments, fallback string) string {
	var args struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err == nil && args.Summary != "" {
		return args.Summary
	}
	return fallback
}

// lastAssistantText returns the text of the last assistant message.
func lastAssistantText(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}
