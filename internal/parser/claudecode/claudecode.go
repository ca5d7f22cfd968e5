// Package claudecode parses Claude Code session transcripts: JSONL files
// under a project's .claude/projects/<slug>/ directory. Grounded on the
// teacher's agent/claudecode/transcript.go (bufio.Scanner with a 10 MiB
// buffer, per-line JSON decode) and wesm-agentsview's project-directory
// discovery shape (skip agent-* subagent transcripts).
package claudecode

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/parser"
	"github.com/jscraik/firefly-narrative/internal/redact"
)

// scannerBufferSize matches the teacher's transcript scanner: Claude Code
// lines can carry large tool outputs inline.
const scannerBufferSize = 10 * 1024 * 1024

func init() {
	parser.Register(model.ToolClaudeCode, func() parser.Parser { return &Parser{} })
}

// Parser decodes Claude Code JSONL transcripts.
type Parser struct{}

// Name implements parser.Parser.
func (p *Parser) Name() model.Tool { return model.ToolClaudeCode }

// CanParse implements parser.Parser. Claude Code transcripts live under
// .claude/projects/<slug>/<session-id>.jsonl; subagent transcripts are
// prefixed agent- and are not claimed here (they are read via ExtractSpawned
// references from the owning session, matching the teacher's behavior).
func (p *Parser) CanParse(path string) bool {
	if filepath.Ext(path) != ".jsonl" {
		return false
	}
	clean := filepath.ToSlash(path)
	if !strings.Contains(clean, "/.claude/projects/") {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), "agent-") {
		return false
	}
	return true
}

// transcriptLine is the minimal shape needed from each JSONL record; unknown
// fields are ignored, matching the teacher's tolerant decode style.
type transcriptLine struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Message   *messagePayload `json:"message"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content any    `json:"content"` // string or []contentBlock
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Parse implements parser.Parser and spec §4.B's full per-parser pipeline:
// internal/ingest.IngestFile runs parser.ValidatePath once before dispatch,
// so this method only needs the size guard, parse, secret scan, and
// tool-call sanitization.
func (p *Parser) Parse(path string) (*parser.ParsedSession, error) {
	if err := parser.CheckSize(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	result := &parser.ParsedSession{Tool: model.ToolClaudeCode}
	filesTouched := map[string]bool{}
	var conversationID string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		redactedLine, summary, err := redact.JSONLContent(line)
		if err != nil {
			result.Warnings = append(result.Warnings, parser.Warning{
				Kind:    parser.WarningKindFormat,
				Message: "malformed JSONL record: " + err.Error(),
			})
			continue
		}
		if summary.Total > 0 {
			for _, kind := range summary.Kinds() {
				result.Warnings = append(result.Warnings, parser.Warning{
					Kind:    parser.WarningKindSecurity,
					Message: "redacted " + kind,
				})
			}
		}

		var rec transcriptLine
		if err := json.Unmarshal([]byte(redactedLine), &rec); err != nil {
			result.Warnings = append(result.Warnings, parser.Warning{
				Kind:    parser.WarningKindFormat,
				Message: "malformed JSON record",
			})
			continue
		}
		if rec.SessionID != "" {
			conversationID = rec.SessionID
		}

		var ts *time.Time
		if rec.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
				ts = &t
				if result.StartedAt.IsZero() || t.Before(result.StartedAt) {
					result.StartedAt = t
				}
				if t.After(result.EndedAt) {
					result.EndedAt = t
				}
			}
		}

		if rec.Message == nil {
			continue
		}
		if rec.Message.Model != "" {
			result.Model = rec.Message.Model
		}

		for _, msg := range extractMessages(rec.Message, ts, filesTouched) {
			result.Messages = append(result.Messages, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}

	result.ConversationID = conversationID
	result.SourceSessionID = conversationID
	result.FilesTouched = sortedKeys(filesTouched)
	return result, nil
}

func extractMessages(m *messagePayload, ts *time.Time, filesTouched map[string]bool) []model.TraceMessage {
	role := mapRole(m.Role)

	switch content := m.Content.(type) {
	case string:
		return []model.TraceMessage{{Role: role, Text: content, Timestamp: ts}}
	case []any:
		var out []model.TraceMessage
		for _, raw := range content {
			blockJSON, err := json.Marshal(raw)
			if err != nil {
				continue
			}
			var block contentBlock
			if err := json.Unmarshal(blockJSON, &block); err != nil {
				continue
			}
			switch block.Type {
			case "text":
				out = append(out, model.TraceMessage{Role: role, Text: block.Text, Timestamp: ts})
			case "thinking":
				out = append(out, model.TraceMessage{Role: model.RoleThinking, Text: block.Text, Timestamp: ts})
			case "tool_use":
				sanitized := parser.SanitizeToolInput(block.Name, string(block.Input))
				extractFilePath(sanitized, filesTouched)
				out = append(out, model.TraceMessage{
					Role:      model.RoleToolCall,
					ToolName:  block.Name,
					ToolInput: sanitized,
					Timestamp: ts,
				})
			}
		}
		return out
	default:
		return nil
	}
}

func mapRole(raw string) model.Role {
	switch raw {
	case "user":
		return model.RoleUser
	case "assistant":
		return model.RoleAssistant
	default:
		return model.RoleUser
	}
}

func extractFilePath(sanitizedInput string, filesTouched map[string]bool) {
	var fields struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(sanitizedInput), &fields); err == nil && fields.Path != "" {
		filesTouched[filepath.ToSlash(fields.Path)] = true
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
