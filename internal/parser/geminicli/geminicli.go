// Package geminicli parses Gemini CLI session files: a single nested JSON
// document (not JSONL) per session under .gemini/sessions/. Grounded on the
// teacher's agent/geminicli nested-JSON pattern.
package geminicli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/parser"
	"github.com/jscraik/firefly-narrative/internal/redact"
)

func init() {
	parser.Register(model.ToolGeminiCLI, func() parser.Parser { return &Parser{} })
}

// Parser decodes Gemini CLI session documents.
type Parser struct{}

// Name implements parser.Parser.
func (p *Parser) Name() model.Tool { return model.ToolGeminiCLI }

// CanParse implements parser.Parser.
func (p *Parser) CanParse(path string) bool {
	clean := filepath.ToSlash(path)
	return strings.Contains(clean, "/.gemini/sessions/") && filepath.Ext(path) == ".json"
}

type geminiSession struct {
	SessionID string          `json:"sessionId"`
	Model     string          `json:"model"`
	Turns     []geminiTurn    `json:"turns"`
}

type geminiTurn struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	ToolName  string `json:"toolName,omitempty"`
	ToolInput json.RawMessage `json:"toolInput,omitempty"`
}

// Parse implements parser.Parser.
func (p *Parser) Parse(path string) (*parser.ParsedSession, error) {
	if err := parser.CheckSize(path); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	redacted, summary, err := redact.JSONLBytes(raw)
	if err != nil {
		return nil, err
	}

	result := &parser.ParsedSession{Tool: model.ToolGeminiCLI}
	if summary.Total > 0 {
		for _, kind := range summary.Kinds() {
			result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindSecurity, Message: "redacted " + kind})
		}
	}

	var doc geminiSession
	if err := json.Unmarshal(redacted, &doc); err != nil {
		result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindFormat, Message: "malformed session document"})
		return result, nil
	}

	result.ConversationID = doc.SessionID
	result.SourceSessionID = doc.SessionID
	result.Model = doc.Model

	filesTouched := map[string]bool{}
	for _, turn := range doc.Turns {
		var ts *time.Time
		if turn.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339, turn.Timestamp); err == nil {
				ts = &t
				if result.StartedAt.IsZero() || t.Before(result.StartedAt) {
					result.StartedAt = t
				}
				if t.After(result.EndedAt) {
					result.EndedAt = t
				}
			}
		}
		if turn.ToolName != "" {
			sanitized := parser.SanitizeToolInput(turn.ToolName, string(turn.ToolInput))
			var fields struct {
				Path string `json:"path"`
			}
			if json.Unmarshal([]byte(sanitized), &fields) == nil && fields.Path != "" {
				filesTouched[filepath.ToSlash(fields.Path)] = true
			}
			result.Messages = append(result.Messages, model.TraceMessage{
				Role: model.RoleToolCall, ToolName: turn.ToolName, ToolInput: sanitized, Timestamp: ts,
			})
			continue
		}
		role := model.RoleAssistant
		if turn.Role == "user" {
			role = model.RoleUser
		}
		result.Messages = append(result.Messages, model.TraceMessage{Role: role, Text: turn.Text, Timestamp: ts})
	}

	for f := range filesTouched {
		result.FilesTouched = append(result.FilesTouched, f)
	}
	return result, nil
}
