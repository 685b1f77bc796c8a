package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/pal/internal/analytics"
	"github.com/kalambet/pal/internal/domain"
	"github.com/kalambet/pal/internal/history"
	"github.com/kalambet/pal/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Profiles *profile.Manager
	History  *history.Log
	Chat     Responder // optional; if nil, the chat tool reports an error
}

// NewMCPServer creates an MCP server with all pal tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"pal",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pal: personal assistant with a user profile and a memory of past conversations."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask the personal assistant. The exchange is remembered."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Find past conversations sharing keywords with the query."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 2)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("recent",
			mcp.WithDescription("Return the most recent conversations, oldest first."),
			mcp.WithNumber("limit", mcp.Description("Number of conversations (default 5)")),
		),
		mcpRecent(deps),
	)

	s.AddTool(
		mcp.NewTool("classify",
			mcp.WithDescription("Classify a message into a life domain (work, family, entertainment, health, learning, finance, general)."),
			mcp.WithString("text", mcp.Description("Text to classify"), mcp.Required()),
		),
		mcpClassify(),
	)

	s.AddTool(
		mcp.NewTool("stats",
			mcp.WithDescription("Summarize the conversation log: totals, domains and active days."),
		),
		mcpStats(deps),
	)

	s.AddTool(
		mcp.NewTool("set_profile_field",
			mcp.WithDescription("Update one field of the user profile."),
			mcp.WithString("key", mcp.Description("Profile field (e.g. communication_style)"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to set; help_areas takes a comma-separated list"), mcp.Required()),
		),
		mcpSetProfileField(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"User Profile",
			mcp.WithResourceDescription("Current user profile as JSON, or null"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://recent",
			"Recent Conversations",
			mcp.WithResourceDescription("Last 10 conversations, truncated"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Chat == nil {
			return mcpError("chat not available: no completion backend configured"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Chat.Respond(ctx, message, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcpText(reply.Response), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", 2)

		records, err := deps.History.Relevant(query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		return mcpJSON(records)
	}
}

func mcpRecent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 5)

		records, err := deps.History.Recent(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load conversations: %v", err)), nil
		}
		return mcpJSON(records)
	}
}

func mcpClassify() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		return mcpJSON(classifyResponse{
			Domain: domain.Classify(text),
			Scores: domain.Scores(text),
		})
	}
}

func mcpStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records, err := deps.History.LoadAll()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load conversations: %v", err)), nil
		}
		s := analytics.Summarize(records)
		return mcpJSON(statsResponse{Stats: s, Breakdown: s.Breakdown(), DailyActivity: s.DailyActivity(7)})
	}
}

func mcpSetProfileField(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if _, err := deps.Profiles.Update(map[string]any{key: value}); err != nil {
			return mcpError(fmt.Sprintf("failed to set %s: %v", key, err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Profiles.Load()
		var corrupt *profile.CorruptDataError
		if err != nil && !errors.As(err, &corrupt) {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		records, err := deps.History.Recent(10)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent conversations: %w", err)
		}

		type conversationSummary struct {
			Date      string `json:"date"`
			Domain    string `json:"domain"`
			User      string `json:"user"`
			Assistant string `json:"assistant"`
		}

		summaries := make([]conversationSummary, len(records))
		for i, rec := range records {
			summaries[i] = conversationSummary{
				Date:      rec.Date,
				Domain:    rec.Domain,
				User:      clip(rec.User, 200),
				Assistant: clip(rec.Assistant, 200),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversations: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
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
