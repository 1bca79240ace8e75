package provider

import (
	"context"
	"encoding/json"
)

// Client is the chat-completion provider boundary. It is injected explicitly
// so tests can substitute a fake; no package-level client exists.
type Client interface {
	Chat(ctx context.Context, req ChatRequest, onTextChunk func(string)) (ChatResponse, error)
}

type ChatRequest struct {
	Messages []Message
	// Tools is the function schema offered to the model. Leave empty to
	// disable tool calling (the follow-up confirmation call does this).
	Tools []ToolDef
}

type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// RawArguments returns the reassembled argument buffer as raw JSON.
func (c ToolCall) RawArguments() json.RawMessage {
	return json.RawMessage(c.Function.Arguments)
}
