// Package notes implements Story-Anchor Notes I/O (spec §4.H): encoding and
// decoding the two-section fast+JSON note bodies, and persisting them under
// refs/notes/narrative/{attribution,sessions,lineage}. The NoteStore
// interface shape is adapted from the teacher's checkpoint.Store
// (WriteTemporary/ReadTemporary/WriteCommitted/ReadCommitted) — the
// shadow-branch storage underneath does not fit git notes, so only the
// read/write-per-kind shape survives; see gitnotes.go for the go-git-backed
// implementation.
package notes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion strings per spec §4.H.
const (
	SchemaVersionAttribution = "narrative/attribution/1.0.0"
	SchemaVersionSessions    = "narrative/sessions/1.0.0"
	SchemaVersionLineage     = "narrative/lineage/1.0.0"
)

// Ref names per spec §4.H (canonical refs; exporters write only these).
const (
	RefAttribution = "refs/notes/narrative/attribution"
	RefSessions    = "refs/notes/narrative/sessions"
	RefLineage     = "refs/notes/narrative/lineage"
)

// Kind identifies which of the three note channels a body belongs to.
type Kind string

const (
	KindAttribution Kind = "attribution"
	KindSessions    Kind = "sessions"
	KindLineage     Kind = "lineage"
)

// RefFor returns the canonical ref for kind.
func RefFor(kind Kind) string {
	switch kind {
	case KindAttribution:
		return RefAttribution
	case KindSessions:
		return RefSessions
	case KindLineage:
		return RefLineage
	default:
		return ""
	}
}

// LegacyRefFor returns the pre-namespacing ref a kind's notes lived under
// before the refs/notes/narrative/* convention existed. ReadNote consults it
// as a fallback and the notes migrate command copies its entries forward.
func LegacyRefFor(kind Kind) string {
	switch kind {
	case KindAttribution:
		return "refs/notes/attribution"
	case KindSessions:
		return "refs/notes/sessions"
	case KindLineage:
		return "refs/notes/lineage"
	default:
		return ""
	}
}

// SchemaVersionFor returns the current schema version string for kind.
func SchemaVersionFor(kind Kind) string {
	switch kind {
	case KindAttribution:
		return SchemaVersionAttribution
	case KindSessions:
		return SchemaVersionSessions
	case KindLineage:
		return SchemaVersionLineage
	default:
		return ""
	}
}

// Payload is the JSON tail of a note body, per spec §6's required/optional
// keys. Body carries the kind-specific structured data.
type Payload struct {
	SchemaVersion    string          `json:"schema_version"`
	BaseCommitSHA    string          `json:"base_commit_sha"`
	RewriteKey       string          `json:"rewrite_key,omitempty"`
	RewriteAlgorithm string          `json:"rewrite_algorithm,omitempty"`
	Body             json.RawMessage `json:"body,omitempty"`
}

// Encode builds the two-section note body: fast-scan lines, then "---" on
// its own line, then 2-space-indented canonical JSON (spec §4.H/§6).
func Encode(fastLines []string, payload Payload) ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("notes: encode payload: %w", err)
	}
	var b strings.Builder
	for _, line := range fastLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("---\n")
	b.Write(jsonBytes)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// Decode splits a note body into its fast-scan lines and JSON payload.
func Decode(body []byte) (fastLines []string, payload Payload, err error) {
	parts := strings.SplitN(string(body), "\n---\n", 2)
	if len(parts) != 2 {
		return nil, Payload{}, fmt.Errorf("notes: missing --- divider")
	}
	fast := strings.TrimRight(parts[0], "\n")
	if fast != "" {
		fastLines = strings.Split(fast, "\n")
	}
	if err := json.Unmarshal([]byte(parts[1]), &payload); err != nil {
		return nil, Payload{}, fmt.Errorf("notes: decode payload: %w", err)
	}
	return fastLines, payload, nil
}

// Hash returns sha256(message), recorded in story_anchor_note_meta so the
// UI can detect drift (spec §4.H).
func Hash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
