package aggregation

import (
	"context"

	"github.com/steveyegge/trackergw/internal/types"
)

// CountPayload is the simple `{count:int}` shape used by tasks-in-progress
// and blocked-tasks (spec §4.3 #9, #10).
type CountPayload struct {
	Count int `json:"count"`
}

// TasksInProgress is spec §4.3 #9: open issues whose status is
// `in_progress`.
func (l *Library) TasksInProgress(ctx context.Context, project interface{}) Result {
	return l.statusCount(ctx, project, types.StatusInProgress)
}

// BlockedTasks is spec §4.3 #10: open issues whose status matches the
// configured blocked marker (defaults to `feedback`).
func (l *Library) BlockedTasks(ctx context.Context, project interface{}) Result {
	return l.statusCount(ctx, project, l.BlockedStatus)
}

func (l *Library) statusCount(ctx context.Context, project interface{}, status string) Result {
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	all := issuesForProject(snap, projectID, project != nil)
	count := 0
	for _, is := range all {
		if is.Status.Name == status {
			count++
		}
	}
	return ok(CountPayload{Count: count})
}
