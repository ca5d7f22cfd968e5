// Package parser implements the Parser Registry (spec §4.A): a static list
// of tool-specific decoders, each claiming session files by path heuristics.
// The shape is carried over from the teacher's agent.Agent/agent.Register
// pattern, renamed to the parser vocabulary used by this domain.
package parser

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// WarningKind classifies a warning raised during parsing.
type WarningKind string

const (
	WarningKindSecurity WarningKind = "security"
	WarningKindFormat   WarningKind = "format"
)

// Warning is attached to a ParseResult; Security warnings require caller
// confirmation before the record is stored (spec §7).
type Warning struct {
	Kind    WarningKind
	Message string
}

// ParsedSession is the normalized output of a successful or partial parse.
type ParsedSession struct {
	Tool            model.Tool
	ConversationID  string
	SourceSessionID string
	Model           string
	Messages        []model.TraceMessage
	FilesTouched    []string
	StartedAt       time.Time
	EndedAt         time.Time
	Warnings        []Warning
}

// ErrUnsupportedFormat is returned by the registry when no parser claims a path.
var ErrUnsupportedFormat = fmt.Errorf("parser: unsupported format")

// FileTooLargeError is returned when a session file exceeds the size guard.
type FileTooLargeError struct {
	Path string
	Size int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("parser: %s exceeds maximum session file size (%d bytes)", e.Path, e.Size)
}

// PathValidationError is returned when a path fails the allowlist/traversal check.
type PathValidationError struct {
	Path   string
	Reason string
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("parser: path %q rejected: %s", e.Path, e.Reason)
}

// MaxSessionFileBytes is the size guard from spec §4.B.2.
const MaxSessionFileBytes = 100 * 1024 * 1024

// Parser is implemented by each tool-specific decoder.
type Parser interface {
	Name() model.Tool
	CanParse(path string) bool
	Parse(path string) (*ParsedSession, error)
}

// Factory constructs a Parser instance. Parsers are stateless, but the
// factory shape mirrors the teacher's agent.Factory so registration stays
// uniform even for parsers that someday carry configuration.
type Factory func() Parser

var (
	mu       sync.RWMutex
	registry = map[model.Tool]Factory{}
	order    []model.Tool
)

// Register adds a parser factory under name. Call from an init() func in the
// parser's subpackage. Registration order determines claim precedence.
func Register(name model.Tool, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; !exists {
		order = append(order, name)
	}
	registry[name] = f
}

// Get returns the factory registered under name, if any.
func Get(name model.Tool) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// List returns registered tool names in registration order.
func List() []model.Tool {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]model.Tool, len(order))
	copy(out, order)
	return out
}

// ListSorted returns registered tool names sorted lexicographically, for
// stable display in status/doctor output.
func ListSorted() []model.Tool {
	out := List()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Detect returns the first registered parser (in registration order) whose
// CanParse(path) is true. Returns ErrUnsupportedFormat if none claims it.
func Detect(path string) (Parser, error) {
	mu.RLock()
	names := make([]model.Tool, len(order))
	copy(names, order)
	mu.RUnlock()

	for _, name := range names {
		f, ok := Get(name)
		if !ok {
			continue
		}
		p := f()
		if p.CanParse(path) {
			return p, nil
		}
	}
	return nil, ErrUnsupportedFormat
}
