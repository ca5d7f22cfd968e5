package notes

import (
	"encoding/json"
	"fmt"

	"github.com/jscraik/firefly-narrative/internal/model"
)

// attributionBody is the JSON tail body for kind=attribution notes.
type attributionBody struct {
	HumanLines         int                   `json:"human_lines"`
	AIAgentLines       int                   `json:"ai_agent_lines"`
	AIAssistLines      int                   `json:"ai_assist_lines"`
	CollaborativeLines int                   `json:"collaborative_lines"`
	TotalLines         int                   `json:"total_lines"`
	AIPercentage       float64               `json:"ai_percentage"`
	ToolBreakdown      []model.ToolBreakdown `json:"tool_breakdown,omitempty"`
}

// sessionsBody is the JSON tail body for kind=sessions notes.
type sessionsBody struct {
	Links []sessionLinkEntry `json:"links"`
}

type sessionLinkEntry struct {
	SessionID  string  `json:"session_id"`
	Tool       string  `json:"tool"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// lineageBody is the JSON tail body for kind=lineage notes.
type lineageBody struct {
	HeadSHA        string               `json:"head_sha"`
	RewrittenPairs []lineageRewritePair `json:"rewritten_pairs,omitempty"`
}

type lineageRewritePair struct {
	OldSHA string `json:"old_sha"`
	NewSHA string `json:"new_sha"`
}

// lineageFastSectionLimit bounds how many rewritten pairs appear in the
// note's grep/awk-friendly fast section (spec §4.I: "the first 50 pairs in
// the fast section"). The JSON tail always carries the full list.
const lineageFastSectionLimit = 50

// EncodeAttribution renders a CommitContributionStats into the two-section
// note body (spec §4.H).
func EncodeAttribution(stats model.CommitContributionStats) ([]byte, error) {
	fast := []string{
		fmt.Sprintf("ai_percentage: %.1f%%", stats.AIPercentage*100),
		fmt.Sprintf("human_lines: %d", stats.HumanLines),
		fmt.Sprintf("ai_agent_lines: %d", stats.AIAgentLines),
		fmt.Sprintf("total_lines: %d", stats.TotalLines),
	}
	body, err := json.Marshal(attributionBody{
		HumanLines:         stats.HumanLines,
		AIAgentLines:       stats.AIAgentLines,
		AIAssistLines:      stats.AIAssistLines,
		CollaborativeLines: stats.CollaborativeLines,
		TotalLines:         stats.TotalLines,
		AIPercentage:       stats.AIPercentage,
		ToolBreakdown:      stats.ToolBreakdown,
	})
	if err != nil {
		return nil, fmt.Errorf("notes: marshal attribution body: %w", err)
	}
	return Encode(fast, Payload{
		SchemaVersion: SchemaVersionFor(KindAttribution),
		BaseCommitSHA: stats.CommitSHA,
		Body:          body,
	})
}

// EncodeSessions renders commit-session links into the two-section note body.
func EncodeSessions(commitSHA string, links []model.CommitSessionLink) ([]byte, error) {
	fast := []string{fmt.Sprintf("linked_sessions: %d", len(links))}
	entries := make([]sessionLinkEntry, 0, len(links))
	for _, l := range links {
		entries = append(entries, sessionLinkEntry{
			SessionID:  l.SessionID,
			Source:     string(l.Source),
			Confidence: l.Confidence,
		})
	}
	body, err := json.Marshal(sessionsBody{Links: entries})
	if err != nil {
		return nil, fmt.Errorf("notes: marshal sessions body: %w", err)
	}
	return Encode(fast, Payload{
		SchemaVersion: SchemaVersionFor(KindSessions),
		BaseCommitSHA: commitSHA,
		Body:          body,
	})
}

// EncodeLineage renders a single rewrite/merge event for the resulting HEAD
// (spec §4.H/§4.I): a per-HEAD history note, not one note per rewritten
// commit. pairs is the full (old_sha, new_sha) list git delivered to the
// post-rewrite hook; only the first lineageFastSectionLimit appear in the
// fast section, but the JSON tail carries all of them.
func EncodeLineage(headSHA, rewriteKey, algorithm string, pairs [][2]string) ([]byte, error) {
	fast := make([]string, 0, lineageFastSectionLimit+1)
	fast = append(fast, fmt.Sprintf("head_sha: %s", headSHA))
	for i, p := range pairs {
		if i >= lineageFastSectionLimit {
			break
		}
		fast = append(fast, fmt.Sprintf("rewritten: %s -> %s", p[0], p[1]))
	}

	entries := make([]lineageRewritePair, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, lineageRewritePair{OldSHA: p[0], NewSHA: p[1]})
	}
	body, err := json.Marshal(lineageBody{HeadSHA: headSHA, RewrittenPairs: entries})
	if err != nil {
		return nil, fmt.Errorf("notes: marshal lineage body: %w", err)
	}
	return Encode(fast, Payload{
		SchemaVersion:    SchemaVersionFor(KindLineage),
		BaseCommitSHA:    headSHA,
		RewriteKey:       rewriteKey,
		RewriteAlgorithm: algorithm,
		Body:             body,
	})
}
