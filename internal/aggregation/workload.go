package aggregation

import (
	"context"
	"sort"

	"github.com/steveyegge/trackergw/internal/types"
)

const unassignedLabel = "Unassigned"

// WorkloadPayload is the `workload_by_member` shaped response (spec §4.3 #3).
type WorkloadPayload struct {
	WorkloadByMember map[string]int `json:"workload_by_member"`
	TotalOpenIssues  int            `json:"total_open_issues"`
	UnassignedIssues int            `json:"unassigned_issues"`
	TeamSize         int            `json:"team_size"`
	OverloadedMembers []string      `json:"overloaded_members"`
}

// TeamWorkload is spec §4.3 #3: open-issue counts per assignee, with
// "Unassigned" as the literal bucket for null assignees.
func (l *Library) TeamWorkload(ctx context.Context, project interface{}) Result {
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	all := issuesForProject(snap, projectID, project != nil)

	byMember := map[string]int{}
	var totalOpen, unassigned int
	for _, is := range all {
		if !types.IsOpenStatus(is.Status.Name) {
			continue
		}
		totalOpen++
		name := unassignedLabel
		if is.Assignee != nil && is.Assignee.Name != "" {
			name = is.Assignee.Name
		} else {
			unassigned++
		}
		byMember[name]++
	}

	var overloaded []string
	for name, count := range byMember {
		if count > l.OverloadedThreshold {
			overloaded = append(overloaded, name)
		}
	}
	sort.Strings(overloaded)

	return ok(WorkloadPayload{
		WorkloadByMember:  byMember,
		TotalOpenIssues:   totalOpen,
		UnassignedIssues:  unassigned,
		TeamSize:          len(byMember),
		OverloadedMembers: overloaded,
	})
}
