package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/pipeline"
	"github.com/kalambet/claimcheck/internal/retrieval"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

// Searcher runs a raw policy search.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.PolicyPassage, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine   Engine
	Searcher Searcher
	Version  string
}

// NewMCPServer creates an MCP server exposing policy search, policy Q&A and
// claim evaluation as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"claimcheck",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("claimcheck: answers policy questions and evaluates warranty claims against the indexed policy documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_policies",
			mcp.WithDescription("Semantically search the policy index and return matching passages with their section labels."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of passages (default 5)")),
		),
		mcpSearchPolicies(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_policy",
			mcp.WithDescription("Answer a question about claims policy, citing the policy sections used."),
			mcp.WithString("query", mcp.Description("The question"), mcp.Required()),
		),
		mcpAskPolicy(deps),
	)

	s.AddTool(
		mcp.NewTool("evaluate_claim",
			mcp.WithDescription("Evaluate a store agent's decision on a warranty claim against the five policy criteria."),
			mcp.WithString("claim", mcp.Description("Claim record as a JSON object"), mcp.Required()),
			mcp.WithString("depth", mcp.Description("fast (default) or deep")),
		),
		mcpEvaluateClaim(deps),
	)

	return s
}

func mcpSearchPolicies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		passages, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(passages) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(passages)
	}
}

func mcpAskPolicy(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		ans, err := deps.Engine.Ask(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpJSON(ans)
	}
}

func mcpEvaluateClaim(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("claim")
		if err != nil {
			return mcpError("claim is required"), nil
		}

		var rec claim.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return mcpError(fmt.Sprintf("invalid claim JSON: %v", err)), nil
		}

		depth := req.GetString("depth", string(pipeline.Fast))
		report, err := deps.Engine.Evaluate(ctx, rec, depth)
		if err != nil {
			return mcpError(fmt.Sprintf("evaluation failed: %v", err)), nil
		}
		return mcpJSON(report)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
