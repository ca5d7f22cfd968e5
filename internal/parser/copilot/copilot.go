// Package copilot parses GitHub Copilot Chat session state, stored by VS
// Code as JSON blobs under workspaceStorage/<hash>/chatSessions/. Grounded
// on wesm-agentsview's internal/parser/copilot.go workspaceStorage shape.
package copilot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/parser"
	"github.com/jscraik/firefly-narrative/internal/redact"
)

func init() {
	parser.Register(model.ToolCopilot, func() parser.Parser { return &Parser{} })
}

// Parser decodes Copilot Chat session JSON files.
type Parser struct{}

// Name implements parser.Parser.
func (p *Parser) Name() model.Tool { return model.ToolCopilot }

// CanParse implements parser.Parser.
func (p *Parser) CanParse(path string) bool {
	clean := filepath.ToSlash(path)
	return strings.Contains(clean, "/workspaceStorage/") &&
		strings.Contains(clean, "/chatSessions/") &&
		filepath.Ext(path) == ".json"
}

type copilotSession struct {
	SessionID string           `json:"sessionId"`
	Requests  []copilotRequest `json:"requests"`
}

type copilotRequest struct {
	Message  copilotText   `json:"message"`
	Response []copilotText `json:"response"`
}

type copilotText struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

func (t copilotText) str() string {
	if t.Text != "" {
		return t.Text
	}
	return t.Value
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

	result := &parser.ParsedSession{Tool: model.ToolCopilot}
	if summary.Total > 0 {
		for _, kind := range summary.Kinds() {
			result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindSecurity, Message: "redacted " + kind})
		}
	}

	var doc copilotSession
	if err := json.Unmarshal(redacted, &doc); err != nil {
		result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindFormat, Message: "malformed session document"})
		return result, nil
	}

	result.ConversationID = doc.SessionID
	result.SourceSessionID = doc.SessionID

	for _, req := range doc.Requests {
		if text := req.Message.str(); text != "" {
			result.Messages = append(result.Messages, model.TraceMessage{Role: model.RoleUser, Text: text})
		}
		for _, resp := range req.Response {
			if text := resp.str(); text != "" {
				result.Messages = append(result.Messages, model.TraceMessage{Role: model.RoleAssistant, Text: text})
			}
		}
	}

	if info, err := os.Stat(path); err == nil {
		result.StartedAt, result.EndedAt = info.ModTime(), info.ModTime()
	}
	return result, nil
}
