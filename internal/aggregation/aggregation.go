// Package aggregation implements the ten pure analytic functions over a
// Cache Engine snapshot (spec §4.3), plus the three direct-count helpers
// that bypass the cache for exact totals. Every function returns a plain
// Go value that marshals to the fixed JSON shape the rendering layer
// switches on — callers never rename or nest the top-level keys.
package aggregation

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/types"
)

// Result carries either success:true with a populated payload, or
// success:false with a human-readable error, matching the contract every
// tool result must expose (spec §4.3, §7).
type Result struct {
	Success bool
	Error   string
	Payload interface{}
}

// MarshalJSON flattens Payload's own top-level keys (`sprint`, `backlog`,
// `bug_metrics`, …) alongside `success`/`error` — the renderer dispatches
// on those keys directly, so they must sit at the object's root rather
// than nested under a generic "payload" field (spec §4.3, §6).
func (r Result) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"success": r.Success}
	if !r.Success {
		out["error"] = r.Error
		return json.Marshal(out)
	}
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// ok wraps a populated payload; MarshalJSON flattens its fields onto the
// response root.
func ok(payload interface{}) Result { return Result{Success: true, Payload: payload} }

func fail(msg string) Result { return Result{Success: false, Error: msg} }

// Library computes aggregations against a Cache Engine and resolves
// project identifiers through the configured enum maps.
type Library struct {
	engine *cache.Engine
	enums  config.EnumMaps
	loc    *time.Location

	// OverloadedThreshold is the open-issue count above which a team
	// member is flagged overloaded (spec §4.3 #3, a configuration value).
	OverloadedThreshold int
	// BlockedStatus is the status name treated as the blocked marker
	// (spec §9 open question, resolved: stays "feedback" by default,
	// configurable).
	BlockedStatus string
}

// New constructs a Library bound to one Cache Engine.
func New(engine *cache.Engine, enums config.EnumMaps, loc *time.Location, overloadedThreshold int, blockedStatus string) *Library {
	if loc == nil {
		loc = time.UTC
	}
	if overloadedThreshold <= 0 {
		overloadedThreshold = 10
	}
	if blockedStatus == "" {
		blockedStatus = types.StatusFeedback
	}
	return &Library{engine: engine, enums: enums, loc: loc, OverloadedThreshold: overloadedThreshold, BlockedStatus: blockedStatus}
}

// resolveProject resolves a project identifier (numeric id or slug/name)
// against the configured alias table (spec §4.8).
func (l *Library) resolveProject(project interface{}) (int, bool) {
	if project == nil {
		return 0, true
	}
	return l.enums.NormalizeProjectID(project)
}

// ResolveProject exports resolveProject for the Tool-Loop Runtime's
// tracker-core tools (list_issues, list_versions), which filter a
// snapshot by project outside any of the ten aggregations.
func (l *Library) ResolveProject(project interface{}) (int, bool) {
	return l.resolveProject(project)
}

// Enums exposes the configured enum maps so callers building single-issue
// mappings outside a refreshed snapshot (get_issue) resolve names the
// same way the Cache Engine does.
func (l *Library) Enums() config.EnumMaps { return l.enums }

// Loc exposes the configured time zone.
func (l *Library) Loc() *time.Location { return l.loc }

func issuesForProject(snap *cache.Snapshot, projectID int, hasProject bool) []types.Issue {
	if !hasProject {
		return snap.Issues
	}
	out := make([]types.Issue, 0, len(snap.Issues))
	for _, is := range snap.Issues {
		if is.Project.ID == projectID {
			out = append(out, is)
		}
	}
	return out
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
