// Package cache implements the gateway's refreshable in-memory analytic
// snapshot of the tracker: an immutable tabular projection of issues,
// projects, versions, and users, rebuilt wholesale on refresh and swapped
// in atomically (spec §3, §4.2).
//
// The refresh coalescing is grounded on the teacher's stale-while-revalidate
// label cache (internal/rpc/label_cache.go's sync.Once-guarded single
// in-flight fetch), generalized here to golang.org/x/sync/singleflight —
// the idiomatic library for "N concurrent callers, one in-flight fetch,
// everyone gets the same result" that the teacher's hand-rolled version
// approximates.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/trackerclient"
)

// refreshKey is the constant singleflight key: there is exactly one
// refreshable resource (the whole snapshot), so every caller coalesces
// onto the same key.
const refreshKey = "refresh"

// Engine is the Cache Engine (spec §4.2): enable/disable/refresh/status/
// query over an atomically-swapped Snapshot.
type Engine struct {
	client *trackerclient.Client
	enums  config.EnumMaps
	loc    *time.Location
	ttl    time.Duration

	enabled     atomic.Bool
	initialized atomic.Bool

	snap atomic.Pointer[Snapshot]
	gen  atomic.Uint64

	sf singleflight.Group
}

// NewEngine constructs a disabled Engine. Call Enable to start serving.
func NewEngine(client *trackerclient.Client, enums config.EnumMaps, loc *time.Location, ttl time.Duration) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{client: client, enums: enums, loc: loc, ttl: ttl}
}

// Enable kicks off a refresh; idempotent (spec §4.2).
func (e *Engine) Enable(ctx context.Context) error {
	e.enabled.Store(true)
	_, err := e.Refresh(ctx)
	return err
}

// Disable drops the snapshot and clears the enabled flag (spec §4.2).
func (e *Engine) Disable() {
	e.enabled.Store(false)
	e.initialized.Store(false)
	e.snap.Store(nil)
}

// Enabled reports whether the engine has been turned on.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// Refresh builds a new snapshot and swaps it in atomically on success; on
// failure the previous snapshot (if any) is left in place and the error is
// returned (spec §4.2). Concurrent callers coalesce onto one in-flight
// fetch via singleflight.
func (e *Engine) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := e.sf.Do(refreshKey, func() (interface{}, error) {
		return e.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (e *Engine) doRefresh(ctx context.Context) (*Snapshot, error) {
	var endpointErrors []EndpointError

	wireProjects, err := e.client.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	e.enums.BuildProjectAliasesFromTracker(wireProjects)

	wirePage, err := e.client.ListIssues(ctx, trackerclient.Filter{})
	if err != nil {
		return nil, err
	}

	projectVersions := make(map[int][]trackerclient.Version, len(wireProjects))
	for _, p := range wireProjects {
		vs, verr := e.client.ListVersions(ctx, p.ID)
		if verr != nil {
			endpointErrors = append(endpointErrors, endpointErrorFrom("versions", p.ID, verr))
			continue
		}
		projectVersions[p.ID] = vs
	}

	wireUsers, err := e.client.ListUsers(ctx)
	if err != nil {
		// Tolerated: a restricted API key commonly denies /users.json
		// (spec §4.2 "tolerate endpoint failures without failing the
		// wider refresh"); team-workload aggregations degrade to
		// assignee names already present on issues.
		endpointErrors = append(endpointErrors, endpointErrorFrom("users", 0, err))
		wireUsers = nil
	}

	snap := &Snapshot{
		Issues:   mapIssues(wirePage.Issues, e.enums, e.loc),
		Projects: mapProjects(wireProjects),
		Users:    mapUsers(wireUsers),
	}
	for pid, vs := range projectVersions {
		snap.Versions = append(snap.Versions, mapVersions(vs, pid, e.loc)...)
	}

	gen := e.gen.Add(1)
	snap.Meta = Metadata{
		LastUpdated:     time.Now(),
		TTL:             e.ttl,
		Generation:      gen,
		IssueCount:      len(snap.Issues),
		ProjectCount:    len(snap.Projects),
		VersionCount:    len(snap.Versions),
		UserCount:       len(snap.Users),
		IssuesTruncated: wirePage.Truncated,
		EndpointErrors:  endpointErrors,
	}

	e.snap.Store(snap)
	e.initialized.Store(true)
	return snap, nil
}

func endpointErrorFrom(endpoint string, projectID int, err error) EndpointError {
	status := 0
	if te, ok := err.(*trackerclient.Error); ok {
		status = te.StatusCode
	}
	_ = projectID
	return EndpointError{Endpoint: endpoint, Status: status}
}

// Status is the response shape for the cache-control status action
// (spec §4.2, §4.7).
type Status struct {
	Enabled        bool
	Initialized    bool
	LastUpdated    time.Time
	AgeSeconds      float64
	IssueCount     int
	ProjectCount   int
	VersionCount   int
	UserCount      int
	EndpointErrors []EndpointError
}

// StatusNow returns the current {enabled, initialized, last_updated,
// age_seconds, counts, endpoint_errors} snapshot (spec §4.2).
func (e *Engine) StatusNow() Status {
	s := Status{Enabled: e.enabled.Load(), Initialized: e.initialized.Load()}
	snap := e.snap.Load()
	if snap == nil {
		return s
	}
	s.LastUpdated = snap.Meta.LastUpdated
	s.AgeSeconds = snap.Meta.Age(time.Now()).Seconds()
	s.IssueCount = snap.Meta.IssueCount
	s.ProjectCount = snap.Meta.ProjectCount
	s.VersionCount = snap.Meta.VersionCount
	s.UserCount = snap.Meta.UserCount
	s.EndpointErrors = snap.Meta.EndpointErrors
	return s
}

// ErrCacheUnavailable is returned by Query when the engine has never
// completed a successful refresh (spec §4.2 "cache_unavailable").
var ErrCacheUnavailable = &cacheError{"cache_unavailable"}

type cacheError struct{ msg string }

func (e *cacheError) Error() string { return e.msg }

// Query hands the caller a reference to the current immutable snapshot,
// triggering a background stale-while-revalidate refresh first if the
// snapshot has outlived its TTL (spec §3, §4.2). All readers within one
// aggregation call observe one consistent snapshot.
func (e *Engine) Query(ctx context.Context) (*Snapshot, error) {
	if !e.enabled.Load() {
		return nil, ErrCacheUnavailable
	}
	snap := e.snap.Load()
	if snap == nil {
		return nil, ErrCacheUnavailable
	}
	if snap.Meta.Stale(time.Now()) {
		go func() {
			// Background refresh; errors are observable via StatusNow
			// on the next poll, not returned to this stale read (spec
			// §4.2: "returns the current snapshot immediately").
			_, _ = e.Refresh(context.Background())
		}()
	}
	return snap, nil
}
