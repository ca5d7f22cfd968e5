// Package atlas implements the Atlas Projection (spec §4.J) and Atlas
// Search (spec §4.K): deterministic chunking of normalized session traces
// into an FTS-indexed store, and the budget-enforced query pipeline that
// reads them back. Chunk packing is grounded on wesm-agentsview's ordinal
// message model (internal/parser/types.go); the deterministic chunk_uid
// follows the pack's convention of content-addressed ids (rewritekey,
// store dedupe_key) rather than random ids.
package atlas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/jscraik/firefly-narrative/internal/model"
)

const (
	maxChunkChars   = 4000
	maxChunksPerRun = 200
	separator       = "\n\n"
)

// Message is the minimal shape chunk.go needs from a normalized trace
// message; internal/ingest adapts model.TraceMessage into this.
type Message struct {
	Role model.Role
	Text string
}

// Project implements spec §4.J: produces the deterministic chunk set for a
// session's normalized trace. truncated reports whether the 200-chunk cap
// discarded trailing messages.
func Project(repoID int64, sessionID string, messages []Message) (chunks []model.AtlasChunk, truncated bool) {
	bodies := make([]string, len(messages))
	for i, m := range messages {
		bodies[i] = bodyFor(m)
	}

	type pending struct {
		startIdx, endIdx int
		roles            map[model.Role]struct{}
		text             strings.Builder
	}
	var cur *pending
	var packed []pending

	flush := func() {
		if cur != nil {
			packed = append(packed, *cur)
			cur = nil
		}
	}

	for i, body := range bodies {
		if cur == nil {
			cur = &pending{startIdx: i, endIdx: i, roles: map[model.Role]struct{}{}}
			cur.text.WriteString(body)
			cur.roles[messages[i].Role] = struct{}{}
			continue
		}
		if cur.text.Len()+len(separator)+len(body) > maxChunkChars {
			flush()
			cur = &pending{startIdx: i, endIdx: i, roles: map[model.Role]struct{}{}}
			cur.text.WriteString(body)
			cur.roles[messages[i].Role] = struct{}{}
			continue
		}
		cur.text.WriteString(separator)
		cur.text.WriteString(body)
		cur.endIdx = i
		cur.roles[messages[i].Role] = struct{}{}
	}
	flush()

	if len(packed) > maxChunksPerRun {
		packed = packed[:maxChunksPerRun]
		truncated = true
	}

	chunks = make([]model.AtlasChunk, 0, len(packed))
	for idx, p := range packed {
		text := p.text.String()
		chunks = append(chunks, model.AtlasChunk{
			ChunkUID:          chunkUID(repoID, sessionID, idx, p.startIdx, p.endIdx, text),
			RepoID:            repoID,
			SessionID:         sessionID,
			ChunkIndex:        idx,
			StartMessageIndex: p.startIdx,
			EndMessageIndex:   p.endIdx,
			RoleMask:          roleMask(p.roles),
			Text:              text,
		})
	}
	return chunks, truncated
}

// bodyFor implements spec §4.J step 1: role-tagged, CRLF-normalized,
// 4000-char-truncated message body.
func bodyFor(m Message) string {
	text := strings.ReplaceAll(m.Text, "\r\n", "\n")
	tag := roleTag(m.Role)
	body := tag + "\n" + text
	if len(body) > maxChunkChars {
		body = body[:maxChunkChars]
	}
	return body
}

func roleTag(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "[USER]"
	case model.RoleAssistant:
		return "[ASSISTANT]"
	case model.RoleThinking:
		return "[THINKING]"
	case model.RolePlan:
		return "[PLAN]"
	case model.RoleToolCall:
		return "[TOOL_CALL]"
	default:
		return "[" + strings.ToUpper(string(r)) + "]"
	}
}

// roleMask implements the §3 glossary rule: sorted-unique, comma-joined.
func roleMask(roles map[model.Role]struct{}) string {
	out := make([]string, 0, len(roles))
	for r := range roles {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// chunkVersion is bumped whenever the chunking algorithm changes in a way
// that would otherwise collide with previously-issued uids.
const chunkVersion = 1

// chunkUID implements spec §3's formula exactly:
// "atl_" || sha256(version||repo||session||index||msg_range||sha256(text))[:24].
func chunkUID(repoID int64, sessionID string, chunkIndex, startIdx, endIdx int, text string) string {
	textHash := sha256.Sum256([]byte(text))
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%d\x00%s\x00%d\x00%d-%d\x00%s",
		chunkVersion, repoID, sessionID, chunkIndex, startIdx, endIdx, hex.EncodeToString(textHash[:]))
	return "atl_" + hex.EncodeToString(h.Sum(nil))[:24]
}
