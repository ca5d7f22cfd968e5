// Package logging provides session-scoped structured logging using slog.
// Grounded on the teacher's cmd/entire/cli/logging package: the context-key
// extraction shape and the session-log-file lifecycle carry over unchanged,
// adapted to this module's .narrative/ layout and NARRATIVE_* env vars.
package logging

import "context"

type contextKey int

const (
	sessionIDKey contextKey = iota
	parentSessionIDKey
	toolCallIDKey
	componentKey
	agentKey
)

// WithSession adds a session ID to the context. If the context already
// carries a session ID, it is demoted to parent session ID.
func WithSession(ctx context.Context, sessionID string) context.Context {
	existing := SessionIDFromContext(ctx)
	if existing != "" && existing != sessionID {
		ctx = context.WithValue(ctx, parentSessionIDKey, existing)
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithParentSession explicitly sets the parent session ID.
func WithParentSession(ctx context.Context, parentSessionID string) context.Context {
	return context.WithValue(ctx, parentSessionIDKey, parentSessionID)
}

// WithToolCall adds a tool call ID to the context.
func WithToolCall(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, toolCallID)
}

// WithComponent adds a subsystem name to the context (e.g. "ingest", "hooks").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithAgent adds an AI agent/tool name to the context (e.g. "claude-code").
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

// SessionIDFromContext extracts the session ID, or "" if unset.
func SessionIDFromContext(ctx context.Context) string { return stringValue(ctx, sessionIDKey) }

// ParentSessionIDFromContext extracts the parent session ID, or "" if unset.
func ParentSessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, parentSessionIDKey)
}

// ToolCallIDFromContext extracts the tool call ID, or "" if unset.
func ToolCallIDFromContext(ctx context.Context) string { return stringValue(ctx, toolCallIDKey) }

// ComponentFromContext extracts the component name, or "" if unset.
func ComponentFromContext(ctx context.Context) string { return stringValue(ctx, componentKey) }

// AgentFromContext extracts the agent name, or "" if unset.
func AgentFromContext(ctx context.Context) string { return stringValue(ctx, agentKey) }

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
