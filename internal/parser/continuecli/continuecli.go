// Package continuecli parses Continue's session JSON files under
// .continue/sessions/. Like geminicli, Continue stores one nested JSON
// document per session rather than JSONL; the shape is grounded on the same
// teacher nested-JSON pattern used for geminicli, adapted to Continue's own
// field names.
package continuecli

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
	parser.Register(model.ToolContinue, func() parser.Parser { return &Parser{} })
}

// Parser decodes Continue session documents.
type Parser struct{}

// Name implements parser.Parser.
func (p *Parser) Name() model.Tool { return model.ToolContinue }

// CanParse implements parser.Parser.
func (p *Parser) CanParse(path string) bool {
	clean := filepath.ToSlash(path)
	return strings.Contains(clean, "/.continue/sessions/") && filepath.Ext(path) == ".json"
}

type continueSession struct {
	SessionID string          `json:"sessionId"`
	Title     string          `json:"title"`
	History   []continueEntry `json:"history"`
}

type continueEntry struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	ContextItems []struct {
		URI struct {
			Value string `json:"value"`
		} `json:"uri"`
	} `json:"contextItems"`
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

	result := &parser.ParsedSession{Tool: model.ToolContinue}
	if summary.Total > 0 {
		for _, kind := range summary.Kinds() {
			result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindSecurity, Message: "redacted " + kind})
		}
	}

	var doc continueSession
	if err := json.Unmarshal(redacted, &doc); err != nil {
		result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindFormat, Message: "malformed session document"})
		return result, nil
	}

	result.ConversationID = doc.SessionID
	result.SourceSessionID = doc.SessionID

	// Continue has no per-message timestamps; the whole session is stamped
	// with the file's modification time by the caller (internal/ingest),
	// matching spec's "duration_min?" optionality.
	filesTouched := map[string]bool{}
	for _, entry := range doc.History {
		role := model.RoleAssistant
		if entry.Message.Role == "user" {
			role = model.RoleUser
		}
		result.Messages = append(result.Messages, model.TraceMessage{Role: role, Text: entry.Message.Content})
		for _, item := range entry.ContextItems {
			if item.URI.Value != "" {
				filesTouched[filepath.ToSlash(item.URI.Value)] = true
			}
		}
	}
	for f := range filesTouched {
		result.FilesTouched = append(result.FilesTouched, f)
	}
	var ts time.Time
	if info, err := os.Stat(path); err == nil {
		ts = info.ModTime()
	}
	result.StartedAt, result.EndedAt = ts, ts
	return result, nil
}
