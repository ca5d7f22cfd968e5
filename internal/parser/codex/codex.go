// Package codex parses Codex CLI session files under .codex/sessions/ and
// resolves the global .codex/history.jsonl pointer to the active per-session
// file. Grounded on wesm-agentsview's internal/parser/codex.go shape and
// spec §4.B's bounded history-pointer resolution (last 5000 lines, 50000
// entry / depth ≤ 6 directory walk). Uses tidwall/gjson for fast field
// probing without a full unmarshal on every history line.
package codex

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/parser"
	"github.com/jscraik/firefly-narrative/internal/redact"
)

const (
	historyTailLines = 5000
	maxWalkEntries   = 50000
	maxWalkDepth     = 6
)

func init() {
	parser.Register(model.ToolCodex, func() parser.Parser { return &Parser{} })
}

// Parser decodes Codex CLI session JSONL files, or resolves history.jsonl
// to the session file it last pointed at.
type Parser struct{}

// Name implements parser.Parser.
func (p *Parser) Name() model.Tool { return model.ToolCodex }

// CanParse implements parser.Parser.
func (p *Parser) CanParse(path string) bool {
	clean := filepath.ToSlash(path)
	if !strings.Contains(clean, "/.codex/") {
		return false
	}
	if filepath.Base(path) == "history.jsonl" {
		return true
	}
	return strings.Contains(clean, "/.codex/sessions/") && filepath.Ext(path) == ".jsonl"
}

// Parse implements parser.Parser.
func (p *Parser) Parse(path string) (*parser.ParsedSession, error) {
	if filepath.Base(path) == "history.jsonl" {
		resolved, err := resolvePointer(path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	return parseSessionFile(path)
}

// resolvePointer reads up to the last historyTailLines of history.jsonl,
// extracts the latest session_id, and walks .codex/sessions/ (bounded) for
// the matching per-session file.
func resolvePointer(historyPath string) (string, error) {
	if err := parser.CheckSize(historyPath); err != nil {
		return "", err
	}
	f, err := os.Open(historyPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var tail []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tail = append(tail, scanner.Text())
		if len(tail) > historyTailLines {
			tail = tail[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	var sessionID string
	for i := len(tail) - 1; i >= 0; i-- {
		id := gjson.Get(tail[i], "session_id").String()
		if id != "" {
			sessionID = id
			break
		}
	}
	if sessionID == "" {
		return "", errors.New("codex: no session_id found in history.jsonl tail")
	}

	sessionsDir := filepath.Join(filepath.Dir(historyPath), "sessions")
	found, err := findSessionFile(sessionsDir, sessionID, 0, &walkBudget{remaining: maxWalkEntries})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", errors.New("codex: session file not found for " + sessionID)
	}
	return found, nil
}

type walkBudget struct{ remaining int }

func findSessionFile(dir, sessionID string, depth int, budget *walkBudget) (string, error) {
	if depth > maxWalkDepth || budget.remaining <= 0 {
		return "", nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil //nolint:nilerr // missing/unreadable dirs are skipped, not fatal
	}
	for _, entry := range entries {
		budget.remaining--
		if budget.remaining <= 0 {
			return "", nil
		}
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if found, err := findSessionFile(full, sessionID, depth+1, budget); err != nil || found != "" {
				return found, err
			}
			continue
		}
		if strings.Contains(entry.Name(), sessionID) && filepath.Ext(entry.Name()) == ".jsonl" {
			return full, nil
		}
	}
	return "", nil
}

type codexEntry struct {
	Type      string `json:"type"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

func parseSessionFile(path string) (*parser.ParsedSession, error) {
	if err := parser.CheckSize(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := &parser.ParsedSession{Tool: model.ToolCodex}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		redacted, summary, err := redact.JSONLContent(line)
		if err != nil {
			result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindFormat, Message: "malformed record"})
			continue
		}
		if summary.Total > 0 {
			for _, kind := range summary.Kinds() {
				result.Warnings = append(result.Warnings, parser.Warning{Kind: parser.WarningKindSecurity, Message: "redacted " + kind})
			}
		}

		var rec codexEntry
		if err := json.Unmarshal([]byte(redacted), &rec); err != nil {
			continue
		}
		if rec.SessionID != "" {
			result.ConversationID = rec.SessionID
			result.SourceSessionID = rec.SessionID
		}
		if rec.Model != "" {
			result.Model = rec.Model
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
		if rec.Text == "" {
			continue
		}
		role := model.RoleAssistant
		if rec.Role == "user" {
			role = model.RoleUser
		}
		result.Messages = append(result.Messages, model.TraceMessage{Role: role, Text: rec.Text, Timestamp: ts})
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	return result, nil
}
