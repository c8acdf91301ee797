package aggregation

import (
	"context"

	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/trackerclient"
)

// DirectCounts bypasses the Cache Engine entirely and calls the Tracker
// Client with limit=1, reading total_count — used for exact bug, sprint,
// and backlog totals regardless of the snapshot's truncation cap
// (spec §4.3 "Direct counts").
type DirectCounts struct {
	client *trackerclient.Client
	enums  config.EnumMaps
}

// NewDirectCounts constructs a DirectCounts helper bound to one tracker
// client and enum map.
func NewDirectCounts(client *trackerclient.Client, enums config.EnumMaps) *DirectCounts {
	return &DirectCounts{client: client, enums: enums}
}

// BugCount is the direct-count variant of bug analytics: exact open/closed
// bug totals straight from the tracker, unaffected by CACHE_MAX_ISSUES.
func (d *DirectCounts) BugCount(ctx context.Context, project interface{}) Result {
	projectID, ok2 := d.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	trackerID := d.enums.TrackerByName["bug"]

	openFilter := trackerclient.Filter{ProjectID: projectID, TrackerID: trackerID, StatusID: "open"}
	closedFilter := trackerclient.Filter{ProjectID: projectID, TrackerID: trackerID, StatusID: "closed"}

	open, err := d.client.CountIssues(ctx, openFilter)
	if err != nil {
		return fail(err.Error())
	}
	closed, err := d.client.CountIssues(ctx, closedFilter)
	if err != nil {
		return fail(err.Error())
	}

	return ok(struct {
		OpenBugs   int `json:"open_bugs"`
		ClosedBugs int `json:"closed_bugs"`
		TotalBugs  int `json:"total_bugs"`
	}{OpenBugs: open, ClosedBugs: closed, TotalBugs: open + closed})
}

// SprintCount is the direct-count variant used when only the exact size of
// a version's issue set is needed, bypassing the truncation cap.
func (d *DirectCounts) SprintCount(ctx context.Context, project interface{}, fixedVersionID int) Result {
	projectID, ok2 := d.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	filter := trackerclient.Filter{ProjectID: projectID, FixedVersionID: fixedVersionID}
	total, err := d.client.CountIssues(ctx, filter)
	if err != nil {
		return fail(err.Error())
	}
	return ok(CountPayload{Count: total})
}

// BacklogCount is the direct-count variant of backlog totals: exact
// open-issue count from the tracker.
func (d *DirectCounts) BacklogCount(ctx context.Context, project interface{}) Result {
	projectID, ok2 := d.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	filter := trackerclient.Filter{ProjectID: projectID, StatusID: "open"}
	total, err := d.client.CountIssues(ctx, filter)
	if err != nil {
		return fail(err.Error())
	}
	return ok(CountPayload{Count: total})
}

func (d *DirectCounts) resolveProject(project interface{}) (int, bool) {
	if project == nil {
		return 0, true
	}
	return d.enums.NormalizeProjectID(project)
}
