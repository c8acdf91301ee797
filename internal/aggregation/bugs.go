package aggregation

import (
	"context"

	"github.com/steveyegge/trackergw/internal/types"
)

// BugMetricsPayload is the `bug_metrics` shaped response (spec §4.3 #5).
type BugMetricsPayload struct {
	BugMetrics struct {
		TotalBugs  int `json:"total_bugs"`
		OpenBugs   int `json:"open_bugs"`
		ClosedBugs int `json:"closed_bugs"`
		CriticalOpen struct {
			High          int `json:"high"`
			Urgent        int `json:"urgent"`
			Immediate     int `json:"immediate"`
			TotalCritical int `json:"total_critical"`
		} `json:"critical_open"`
		BugToStoryRatio       *float64 `json:"bug_to_story_ratio"`
		AverageResolutionDays *float64 `json:"average_resolution_days"`
	} `json:"bug_metrics"`
}

// BugAnalytics is spec §4.3 #5: bug volume/closure counts, critical-open
// breakdown, bug:story ratio, and mean resolution time.
func (l *Library) BugAnalytics(ctx context.Context, project interface{}) Result {
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	all := issuesForProject(snap, projectID, project != nil)

	var p BugMetricsPayload
	var resolutionSum float64
	var resolutionN int
	var openStories int

	for _, is := range all {
		switch is.Tracker.Name {
		case types.TrackerBug:
			p.BugMetrics.TotalBugs++
			if types.IsOpenStatus(is.Status.Name) {
				p.BugMetrics.OpenBugs++
				switch is.Priority.Name {
				case types.PriorityHigh:
					p.BugMetrics.CriticalOpen.High++
					p.BugMetrics.CriticalOpen.TotalCritical++
				case types.PriorityUrgent:
					p.BugMetrics.CriticalOpen.Urgent++
					p.BugMetrics.CriticalOpen.TotalCritical++
				case types.PriorityImmediate:
					p.BugMetrics.CriticalOpen.Immediate++
					p.BugMetrics.CriticalOpen.TotalCritical++
				}
			} else {
				p.BugMetrics.ClosedBugs++
			}
			if is.ClosedOn != nil {
				resolutionSum += is.ClosedOn.Sub(is.CreatedOn).Hours() / 24
				resolutionN++
			}
		case types.TrackerStory:
			if types.IsOpenStatus(is.Status.Name) {
				openStories++
			}
		}
	}

	if openStories > 0 {
		ratio := round1(float64(p.BugMetrics.OpenBugs) / float64(openStories))
		p.BugMetrics.BugToStoryRatio = &ratio
	}
	if resolutionN > 0 {
		avg := round1(resolutionSum / float64(resolutionN))
		p.BugMetrics.AverageResolutionDays = &avg
	}

	return ok(p)
}
