// Package linker implements the Linker (spec §4.E): scores candidate commits
// for a session using temporal proximity and file-set Jaccard overlap, with
// tie-breaking and a confidence threshold. The Jaccard/file-set-comparison
// shape is grounded on the teacher's strategy/content_overlap.go, which
// compares file sets across shadow-branch trees to detect reverted work;
// this adapts the same set-overlap technique to path-set scoring of commit
// candidates rather than content-hash comparison.
package linker

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jscraik/firefly-narrative/internal/gitutil"
)

const (
	windowMargin       = 240 * time.Minute
	decayMargin        = 5 * time.Minute
	confidenceThreshold = 0.65
	needsReviewCutoff  = 0.7
	tieBreakMargin     = 0.05
	temporalWeight     = 0.6
	fileOverlapWeight  = 0.4
)

// Errors matching spec §4.E/§7's linking-error taxonomy.
var (
	ErrNoCommitsInWindow = errors.New("linker: no commits in time window")
	ErrLowConfidence     = errors.New("linker: no candidate met the confidence threshold")
)

// SecretDetectedError implements spec §4.E's defence-in-depth check: linking
// is refused, not silently degraded, when a pre-link rescan finds secrets.
type SecretDetectedError struct{ Kinds []string }

func (e *SecretDetectedError) Error() string {
	return "linker: secret detected before link: " + strings.Join(e.Kinds, ", ")
}

// SessionExcerpt is the Linker's session-side input (spec §4.E).
type SessionExcerpt struct {
	EndTime     time.Time
	DurationMin float64
	Files       []string
}

// Result is the scored outcome for a single candidate, and also the overall
// winner returned by Link.
type Result struct {
	CommitSHA   string
	Confidence  float64
	AutoLinked  bool
	NeedsReview bool
}

// Link scores candidates against excerpt and returns the winning commit, or
// ErrNoCommitsInWindow / ErrLowConfidence per spec §4.E steps 2 and 6.
func Link(excerpt SessionExcerpt, candidates []gitutil.CommitInfo) (*Result, error) {
	windowStart := excerpt.EndTime.Add(-windowMargin)
	windowEnd := excerpt.EndTime.Add(windowMargin)

	var filtered []gitutil.CommitInfo
	for _, c := range candidates {
		t := time.Unix(c.AuthoredAt, 0).UTC()
		if !t.Before(windowStart) && !t.After(windowEnd) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return nil, ErrNoCommitsInWindow
	}

	type scored struct {
		gitutil.CommitInfo
		confidence float64
	}
	var scoredCandidates []scored
	for _, c := range filtered {
		t := time.Unix(c.AuthoredAt, 0).UTC()
		temporal := temporalScore(excerpt, t)
		overlap := fileOverlapScore(excerpt.Files, c.Files)
		confidence := temporalWeight*temporal + fileOverlapWeight*overlap
		scoredCandidates = append(scoredCandidates, scored{c, confidence})
	}

	var passing []scored
	for _, s := range scoredCandidates {
		if s.confidence >= confidenceThreshold {
			passing = append(passing, s)
		}
	}
	if len(passing) == 0 {
		return nil, ErrLowConfidence
	}

	sort.Slice(passing, func(i, j int) bool { return passing[i].confidence > passing[j].confidence })
	best := passing[0]
	bestAbsDelta := absDuration(time.Unix(best.AuthoredAt, 0).UTC(), excerpt.EndTime)
	for _, s := range passing[1:] {
		if best.confidence-s.confidence > tieBreakMargin {
			break
		}
		delta := absDuration(time.Unix(s.AuthoredAt, 0).UTC(), excerpt.EndTime)
		if delta < bestAbsDelta {
			best = s
			bestAbsDelta = delta
		}
	}

	return &Result{
		CommitSHA:   best.SHA,
		Confidence:  best.confidence,
		AutoLinked:  true,
		NeedsReview: best.confidence < needsReviewCutoff,
	}, nil
}

// temporalScore implements spec §4.E step 3's decay function: 1.0 inside the
// session window [end - min(duration,240min), end], linear decay to 0.5 over
// ±5 min outside, 0.0 beyond that.
func temporalScore(excerpt SessionExcerpt, commitTime time.Time) float64 {
	duration := time.Duration(excerpt.DurationMin) * time.Minute
	if duration > windowMargin {
		duration = windowMargin
	}
	sessionStart := excerpt.EndTime.Add(-duration)

	if !commitTime.Before(sessionStart) && !commitTime.After(excerpt.EndTime) {
		return 1.0
	}

	var distance time.Duration
	if commitTime.Before(sessionStart) {
		distance = sessionStart.Sub(commitTime)
	} else {
		distance = commitTime.Sub(excerpt.EndTime)
	}
	if distance > decayMargin {
		return 0.0
	}
	frac := float64(distance) / float64(decayMargin)
	return 1.0 - 0.5*frac
}

// fileOverlapScore implements spec §4.E step 3's Jaccard index over
// normalized paths; empty on either side scores 0.0.
func fileOverlapScore(sessionFiles, commitFiles []string) float64 {
	a := normalizeSet(sessionFiles)
	b := normalizeSet(commitFiles)
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	union := map[string]bool{}
	for f := range a {
		union[f] = true
	}
	for f := range b {
		union[f] = true
		if a[f] {
			intersection++
		}
	}
	if len(union) == 0 {
		return 0.0
	}
	return float64(intersection) / float64(len(union))
}

func normalizeSet(paths []string) map[string]bool {
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		out[filepath.ToSlash(filepath.Clean(p))] = true
	}
	return out
}

func absDuration(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
