package aggregation

import (
	"context"
	"time"
)

// WeekBucket is one entry of the `weekly_breakdown` shaped response
// (spec §4.3 #8).
type WeekBucket struct {
	WeekStart string `json:"week_start"`
	Created   int    `json:"created"`
	Closed    int    `json:"closed"`
	Net       int    `json:"net"`
}

// ThroughputPayload is spec §4.3 #8's response shape.
type ThroughputPayload struct {
	WeeklyBreakdown   []WeekBucket `json:"weekly_breakdown"`
	AvgCreatedPerWeek float64      `json:"avg_created_per_week"`
	AvgClosedPerWeek  float64      `json:"avg_closed_per_week"`
	NetThroughput     int          `json:"net_throughput"`
	Trend             string       `json:"trend"`
}

// Throughput is spec §4.3 #8: created/closed counts over the last N
// aligned ISO weeks.
func (l *Library) Throughput(ctx context.Context, project interface{}, weeks int) Result {
	if weeks <= 0 {
		weeks = 4
	}
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	all := issuesForProject(snap, projectID, project != nil)

	now := time.Now().In(l.loc)
	weekStarts := make([]time.Time, weeks)
	cur := startOfISOWeek(now)
	for i := weeks - 1; i >= 0; i-- {
		weekStarts[i] = cur
		cur = cur.AddDate(0, 0, -7)
	}

	buckets := make([]WeekBucket, weeks)
	for i, ws := range weekStarts {
		buckets[i].WeekStart = ws.Format(trackerDateLayout)
	}

	var totalCreated, totalClosed int
	for _, is := range all {
		for i, ws := range weekStarts {
			we := ws.AddDate(0, 0, 7)
			if !is.CreatedOn.Before(ws) && is.CreatedOn.Before(we) {
				buckets[i].Created++
				totalCreated++
			}
			if is.ClosedOn != nil && !is.ClosedOn.Before(ws) && is.ClosedOn.Before(we) {
				buckets[i].Closed++
				totalClosed++
			}
		}
	}

	netSum := 0
	for i := range buckets {
		buckets[i].Net = buckets[i].Created - buckets[i].Closed
		netSum += buckets[i].Net
	}

	p := ThroughputPayload{
		WeeklyBreakdown:   buckets,
		AvgCreatedPerWeek: round1(float64(totalCreated) / float64(weeks)),
		AvgClosedPerWeek:  round1(float64(totalClosed) / float64(weeks)),
		NetThroughput:     netSum,
	}
	if netSum >= 0 {
		p.Trend = "positive"
	} else {
		p.Trend = "negative"
	}

	return ok(p)
}

// startOfISOWeek returns the Monday 00:00 of t's ISO week, in t's zone.
func startOfISOWeek(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return t.AddDate(0, 0, -(wd - 1))
}
