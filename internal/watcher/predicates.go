package watcher

import (
	"path/filepath"
	"strings"
)

// ClaudeCodePredicate matches `.jsonl` files under a `.claude/` directory.
func ClaudeCodePredicate(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/.claude/") && strings.HasSuffix(path, ".jsonl")
}

// CodexPredicate matches session/archived-session files under
// `.codex/sessions/`, the root `.codex/history.jsonl` pointer file, or
// `.codex/logs/*.log*` as a legacy fallback (spec §4.L).
func CodexPredicate(path string) bool {
	slash := filepath.ToSlash(path)
	switch {
	case strings.Contains(slash, "/.codex/sessions/") && strings.HasSuffix(path, ".jsonl"):
		return true
	case strings.HasSuffix(slash, "/.codex/history.jsonl"):
		return true
	case strings.Contains(slash, "/.codex/logs/") && strings.Contains(filepath.Base(path), ".log"):
		return true
	default:
		return false
	}
}

// CursorPredicate restricts to Cursor's composer database, avoiding noise
// from MCP/tool-definition JSON files that live alongside it.
func CursorPredicate(path string) bool {
	base := filepath.Base(path)
	return strings.Contains(filepath.ToSlash(path), "/composer/") && base == "composer.database"
}

// ContinuePredicate matches Continue's per-session JSON session files.
func ContinuePredicate(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/.continue/sessions/") && strings.HasSuffix(path, ".json")
}

// GeminiCLIPredicate matches Gemini CLI checkpoint/session JSON files.
func GeminiCLIPredicate(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/.gemini/") && strings.HasSuffix(path, ".json")
}

// CopilotPredicate matches VS Code Copilot Chat session JSON files.
func CopilotPredicate(path string) bool {
	slash := filepath.ToSlash(path)
	return strings.Contains(slash, "/copilot-chat/") && strings.HasSuffix(path, ".json")
}

// Any combines multiple predicates with logical OR, the shape needed when
// a single watcher instance covers every installed tool.
func Any(predicates ...PathPredicate) PathPredicate {
	return func(path string) bool {
		for _, p := range predicates {
			if p(path) {
				return true
			}
		}
		return false
	}
}
