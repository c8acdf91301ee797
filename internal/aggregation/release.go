package aggregation

import (
	"context"

	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/types"
)

// Release is one entry of the `releases` shaped response (spec §4.3 #6).
type Release struct {
	VersionName          string   `json:"version_name"`
	TotalIssues          int      `json:"total_issues"`
	ClosedIssues         int      `json:"closed_issues"`
	OpenIssues           int      `json:"open_issues"`
	CompletionPercentage float64  `json:"completion_percentage"`
	DueDate              *string  `json:"due_date"`
}

// ReleaseStatusPayload wraps either a single release or a project's full
// version list, per spec §4.3 #6 ("If a version is given, return a single
// release object; otherwise return the list of versions").
type ReleaseStatusPayload struct {
	Release  *Release   `json:"release,omitempty"`
	Releases []Release  `json:"releases,omitempty"`
}

// ReleaseStatus is spec §4.3 #6.
func (l *Library) ReleaseStatus(ctx context.Context, project interface{}, version interface{}) Result {
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	var versions []types.Version
	for _, v := range snap.Versions {
		if project == nil || v.ProjectID == projectID {
			versions = append(versions, v)
		}
	}

	if version != nil {
		for _, v := range versions {
			if v.Name == version {
				r := buildRelease(v, snap)
				return ok(ReleaseStatusPayload{Release: &r})
			}
		}
		return fail("unknown version")
	}

	releases := make([]Release, 0, len(versions))
	for _, v := range versions {
		releases = append(releases, buildRelease(v, snap))
	}
	return ok(ReleaseStatusPayload{Releases: releases})
}

func buildRelease(v types.Version, snap *cache.Snapshot) Release {
	r := Release{VersionName: v.Name}
	if v.DueDate != nil {
		s := v.DueDate.Format(trackerDateLayout)
		r.DueDate = &s
	}
	for _, is := range snap.Issues {
		if is.FixedVersion == nil || is.FixedVersion.ID != v.ID {
			continue
		}
		r.TotalIssues++
		if types.ClosedStatuses[is.Status.Name] {
			r.ClosedIssues++
		} else {
			r.OpenIssues++
		}
	}
	if r.TotalIssues > 0 {
		r.CompletionPercentage = round1(100 * float64(r.ClosedIssues) / float64(r.TotalIssues))
	}
	return r
}
