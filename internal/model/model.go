// Package model defines the shared domain entities persisted by internal/store
// and produced or consumed by every other package in this module.
package model

import "time"

// Repo is a filesystem-local git repository known to narrative.
type Repo struct {
	ID             int64
	FilesystemPath string
	LastOpenedAt   time.Time
}

// Tool identifies which AI coding assistant produced a session.
type Tool string

const (
	ToolClaudeCode Tool = "claude_code"
	ToolCursor     Tool = "cursor"
	ToolCodex      Tool = "codex"
	ToolContinue   Tool = "continue"
	ToolGeminiCLI  Tool = "gemini_cli"
	ToolCopilot    Tool = "copilot"
)

// Session is a normalized, redacted, deduplicated AI session trace.
type Session struct {
	ID               string // sha256(tool ":" conversation_id)[:16]
	RepoID           int64
	Tool             Tool
	Model            string
	ConversationID   string
	ImportedAt       time.Time
	DurationMin      float64
	MessageCount     int
	Files            []string
	RawJSON          []byte // zstd-compressed at rest by internal/store
	SourcePath       string
	SourceSessionID  string
	RedactionCount   int
	RedactionTypes   []string
	DedupeKey        string // sha256(tool ":" source_session_id ":" canonical(trace))
	PurgedAt         *time.Time
}

// Role discriminates the tagged union of trace message variants.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleThinking  Role = "thinking"
	RolePlan      Role = "plan"
	RoleToolCall  Role = "tool_call"
)

// TraceMessage is the external-tagged sum type User|Assistant|Thinking|Plan|ToolCall.
// Role is the discriminant; ToolName/ToolInput are populated only when Role == RoleToolCall.
type TraceMessage struct {
	Role      Role
	Text      string
	ToolName  string
	ToolInput string
	Timestamp *time.Time
}

// SessionLink is the 1:1 session-to-commit association produced by the Linker.
type SessionLink struct {
	RepoID      int64
	SessionID   string
	CommitSHA   string
	Confidence  float64
	AutoLinked  bool
	NeedsReview bool
	CreatedAt   time.Time
}

// LinkSource tracks provenance for CommitSessionLink conflict resolution.
type LinkSource string

const (
	LinkSourceNotes     LinkSource = "notes"
	LinkSourceHeuristic LinkSource = "heuristic"
	LinkSourceRecovered LinkSource = "recovered"
)

// CommitSessionLink is the many-to-many projection of session links used by notes/recovery.
type CommitSessionLink struct {
	RepoID     int64
	CommitSHA  string
	SessionID  string
	Source     LinkSource
	Confidence float64
}

// AuthorType classifies a LineAttribution range.
type AuthorType string

const (
	AuthorHuman   AuthorType = "human"
	AuthorAIAgent AuthorType = "ai_agent"
	AuthorAITab   AuthorType = "ai_tab"
	AuthorMixed   AuthorType = "mixed"
)

// LineAttribution records which lines of a (commit, file) originated from which session.
type LineAttribution struct {
	RepoID        int64
	CommitSHA     string
	FilePath      string
	StartLine     int
	EndLine       int
	SessionID     string
	AuthorType    AuthorType
	AIPercentage  float64
	Tool          Tool
	Model         string
	TraceAvailable bool
}

// ToolBreakdown is a single entry in CommitContributionStats.ToolBreakdown.
type ToolBreakdown struct {
	Tool  Tool
	Lines int
}

// CommitContributionStats is the cached, re-derivable per-commit tally.
type CommitContributionStats struct {
	RepoID             int64
	CommitSHA          string
	HumanLines         int
	AIAgentLines       int
	AIAssistLines      int
	CollaborativeLines int
	TotalLines         int
	AIPercentage       float64
	PrimarySessionID   string
	Tool               Tool
	Model              string
	ToolBreakdown      []ToolBreakdown
	ComputedAt         time.Time
}

// CommitRewriteKey is the content-derived patch-id for a commit.
type CommitRewriteKey struct {
	RepoID     int64
	CommitSHA  string
	RewriteKey string
	Algorithm  string
	UpdatedAt  time.Time
}

// AtlasChunk is a deterministically-identified slice of a session's normalized trace.
type AtlasChunk struct {
	ChunkUID           string
	RepoID             int64
	SessionID          string
	ChunkIndex         int
	StartMessageIndex  int
	EndMessageIndex    int
	RoleMask           string // sorted-unique roles, comma-joined
	Text               string
	SessionImportedAt  time.Time
}

// AtlasIndexState tracks per-repo Atlas projection freshness.
type AtlasIndexState struct {
	RepoID         int64
	DerivedVersion int
	LastRebuildAt  time.Time
	LastUpdatedAt  time.Time
	LastError      string
	SessionsIndexed int
	ChunksIndexed   int
}

// NoteKind enumerates the three git-notes channels under refs/notes/narrative/*.
type NoteKind string

const (
	NoteKindAttribution NoteKind = "attribution"
	NoteKindSessions    NoteKind = "sessions"
	NoteKindLineage     NoteKind = "lineage"
)

// StoryAnchorNoteMeta records the last-written note digest per (commit, kind).
type StoryAnchorNoteMeta struct {
	RepoID        int64
	CommitSHA     string
	NoteKind      NoteKind
	NoteRef       string
	NoteHash      string
	SchemaVersion string
	UpdatedAt     time.Time
}

// IngestAction enumerates IngestAuditLog.Action values.
type IngestAction string

const (
	IngestActionParse  IngestAction = "parse"
	IngestActionRedact IngestAction = "redact"
	IngestActionStore  IngestAction = "store"
	IngestActionLink   IngestAction = "link"
	IngestActionProject IngestAction = "project"
)

// IngestStatus enumerates IngestAuditLog.Status values.
type IngestStatus string

const (
	IngestStatusOK      IngestStatus = "ok"
	IngestStatusPartial IngestStatus = "partial"
	IngestStatusFailed  IngestStatus = "failed"
)

// IngestAuditLog is an append-only record of one ingest-pipeline event.
// ID is a ulid (oklog/ulid), sortable and pageable without a secondary index.
type IngestAuditLog struct {
	ID             string
	RepoID         int64
	SourceTool     Tool
	SourcePath     string
	SessionID      string
	Action         IngestAction
	Status         IngestStatus
	RedactionCount int
	ErrorMessage   string
	CreatedAt      time.Time
}
