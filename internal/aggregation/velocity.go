package aggregation

import (
	"context"
	"sort"

	"github.com/steveyegge/trackergw/internal/types"
)

// VelocityPayload is the `per_sprint` shaped response (spec §4.3 #7).
type VelocityPayload struct {
	PerSprint struct {
		Sprints []SprintVelocity `json:"sprints"`
	} `json:"per_sprint"`
	AverageVelocity float64 `json:"average_velocity"`
	VelocityTrend   string  `json:"velocity_trend"`
}

// SprintVelocity is one entry of the per-sprint completed-issue sequence.
type SprintVelocity struct {
	VersionName      string `json:"version_name"`
	CompletedIssues  int    `json:"completed_issues"`
}

// VelocityTrend is spec §4.3 #7: completed-issue counts over the most
// recent N closed versions by due date, oldest to newest, with a trend
// call on the first/last comparison.
func (l *Library) VelocityTrend(ctx context.Context, project interface{}, sprints int) Result {
	if sprints <= 0 {
		sprints = 5
	}
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	var closedVersions []types.Version
	for _, v := range snap.Versions {
		if project != nil && v.ProjectID != projectID {
			continue
		}
		if v.Status == types.VersionClosed && v.DueDate != nil {
			closedVersions = append(closedVersions, v)
		}
	}
	sort.Slice(closedVersions, func(i, j int) bool {
		return closedVersions[i].DueDate.Before(*closedVersions[j].DueDate)
	})
	if len(closedVersions) > sprints {
		closedVersions = closedVersions[len(closedVersions)-sprints:]
	}

	var p VelocityPayload
	var sum int
	for _, v := range closedVersions {
		completed := 0
		for _, is := range snap.Issues {
			if is.FixedVersion != nil && is.FixedVersion.ID == v.ID && types.ClosedStatuses[is.Status.Name] {
				completed++
			}
		}
		sum += completed
		p.PerSprint.Sprints = append(p.PerSprint.Sprints, SprintVelocity{VersionName: v.Name, CompletedIssues: completed})
	}

	n := len(p.PerSprint.Sprints)
	if n > 0 {
		p.AverageVelocity = round1(float64(sum) / float64(n))
	}

	p.VelocityTrend = "stable"
	if n >= 2 {
		first := float64(p.PerSprint.Sprints[0].CompletedIssues)
		last := float64(p.PerSprint.Sprints[n-1].CompletedIssues)
		switch {
		case first == 0 && last > 0:
			p.VelocityTrend = "increasing"
		case first > 0 && last > first*1.1:
			p.VelocityTrend = "increasing"
		case first > 0 && last < first*0.9:
			p.VelocityTrend = "decreasing"
		}
	}

	return ok(p)
}
