// Package cursor parses Cursor's composer.database — a SQLite file, the one
// non-JSONL session format named in spec §4.B.3. Grounded on
// wesm-agentsview's internal/parser/cursor.go composer-table shape.
package cursor

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jscraik/firefly-narrative/internal/model"
	"github.com/jscraik/firefly-narrative/internal/parser"
	"github.com/jscraik/firefly-narrative/internal/redact"
)

func init() {
	parser.Register(model.ToolCursor, func() parser.Parser { return &Parser{} })
}

// Parser decodes Cursor's composer.database SQLite file.
type Parser struct{}

// Name implements parser.Parser.
func (p *Parser) Name() model.Tool { return model.ToolCursor }

// CanParse implements parser.Parser. Restricted to composer/composer.database
// to avoid noise from MCP/tool-definition JSON files in the same tree,
// per spec §4.L's watcher predicate (reused here for the parser claim).
func (p *Parser) CanParse(path string) bool {
	clean := filepath.ToSlash(path)
	return strings.HasSuffix(clean, "composer/composer.database")
}

type composerRow struct {
	Key   string
	Value []byte
}

// composerEntry mirrors the minimal shape Cursor stores per composer
// conversation: a JSON blob under a "composerData:<id>" key.
type composerEntry struct {
	ComposerID string           `json:"composerId"`
	Model      string           `json:"model"`
	Messages   []composerMessage `json:"conversation"`
}

type composerMessage struct {
	Type      int    `json:"type"` // 1 = user, 2 = assistant in Cursor's internal schema
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch millis
	File      string `json:"currentFileLocation,omitempty"`
}

// Parse implements parser.Parser.
func (p *Parser) Parse(path string) (*parser.ParsedSession, error) {
	if err := parser.CheckSize(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT key, value FROM cursorDiskKV WHERE key LIKE 'composerData:%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &parser.ParsedSession{Tool: model.ToolCursor}
	filesTouched := map[string]bool{}
	var composerID string

	for rows.Next() {
		var r composerRow
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			result.Warnings = append(result.Warnings, parser.Warning{
				Kind: parser.WarningKindFormat, Message: "unreadable composer row",
			})
			continue
		}

		redacted, summary, rerr := redact.JSONLBytes(r.Value)
		if rerr != nil {
			result.Warnings = append(result.Warnings, parser.Warning{
				Kind: parser.WarningKindFormat, Message: "malformed composer JSON",
			})
			continue
		}
		if summary.Total > 0 {
			for _, kind := range summary.Kinds() {
				result.Warnings = append(result.Warnings, parser.Warning{
					Kind: parser.WarningKindSecurity, Message: "redacted " + kind,
				})
			}
		}

		var entry composerEntry
		if err := json.Unmarshal(redacted, &entry); err != nil {
			continue
		}
		if entry.ComposerID != "" {
			composerID = entry.ComposerID
		}
		if entry.Model != "" {
			result.Model = entry.Model
		}
		for _, m := range entry.Messages {
			ts := time.UnixMilli(m.Timestamp)
			if result.StartedAt.IsZero() || ts.Before(result.StartedAt) {
				result.StartedAt = ts
			}
			if ts.After(result.EndedAt) {
				result.EndedAt = ts
			}
			role := model.RoleAssistant
			if m.Type == 1 {
				role = model.RoleUser
			}
			result.Messages = append(result.Messages, model.TraceMessage{
				Role: role, Text: m.Text, Timestamp: &ts,
			})
			if m.File != "" {
				filesTouched[filepath.ToSlash(m.File)] = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return result, err
	}

	result.ConversationID = composerID
	result.SourceSessionID = composerID
	for f := range filesTouched {
		result.FilesTouched = append(result.FilesTouched, f)
	}
	return result, nil
}
