package attribution

import "github.com/jscraik/firefly-narrative/internal/model"

// LineMeta is the per-line rendering produced by merging overlapping
// attributions for source-lens display (spec §4.F merge rule).
type LineMeta struct {
	Kind          model.AuthorType
	SessionID     string
	AIPercentage  float64
	Tool          model.Tool
	Model         string
	TraceAvailable bool
}

// MergeOverlaps folds a set of overlapping LineAttributions covering the
// same line into a single LineMeta, applying spec §4.F's merge rule:
//   - start from human default
//   - first non-human attribution sets kind/session/percentage/tool/model
//   - a second differing attribution promotes to mixed, ai_percentage=50,
//     keeping the first session reference
//   - any attribution with trace_available OR-accumulates onto the line
//
// attrs must already be filtered to those covering the line in question,
// in application order (earliest first).
func MergeOverlaps(attrs []model.LineAttribution) LineMeta {
	meta := LineMeta{Kind: model.AuthorHuman}
	set := false

	for _, a := range attrs {
		if a.AuthorType == model.AuthorHuman {
			meta.TraceAvailable = meta.TraceAvailable || a.TraceAvailable
			continue
		}
		if !set {
			meta.Kind = a.AuthorType
			meta.SessionID = a.SessionID
			meta.AIPercentage = a.AIPercentage
			meta.Tool = a.Tool
			meta.Model = a.Model
			set = true
		} else if a.AuthorType != meta.Kind || a.SessionID != meta.SessionID {
			meta.Kind = model.AuthorMixed
			meta.AIPercentage = 50
			// session reference is kept from the first attribution per spec.
		}
		meta.TraceAvailable = meta.TraceAvailable || a.TraceAvailable
	}
	return meta
}
