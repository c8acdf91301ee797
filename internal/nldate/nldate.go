// Package nldate resolves relative date phrases ("last week", "this
// month", "since Monday") into concrete time ranges (SPEC_FULL §4.13).
// Its one caller is toolloop.Executor, which resolves throughput's
// optional "when" argument; chat utterances and tracker filter
// parameters are not passed through it.
package nldate

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Resolver resolves natural-language date phrases in a fixed time zone.
type Resolver struct {
	parser *when.Parser
	loc    *time.Location
}

// New builds a Resolver for the given zone, wiring the English common +
// calendar rule sets the same way the teacher's olebedev/when dependency
// is intended to be used (the library ships no default ruleset; callers
// must compose one).
func New(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Resolver{parser: w, loc: loc}
}

// Range is a resolved [Start, End) half-open time interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// ErrNotRecognized is returned when a phrase does not resolve to any date,
// so callers can surface tool_argument_invalid rather than silently
// defaulting (SPEC_FULL §4.13).
type ErrNotRecognized struct {
	Phrase string
}

func (e *ErrNotRecognized) Error() string {
	return fmt.Sprintf("nldate: phrase %q not recognized", e.Phrase)
}

// Resolve parses phrase relative to now and returns the matched instant.
// For phrases that denote a span ("this month") rather than a point, the
// returned time is the start of the span; use ResolveRange for the full
// interval.
func (r *Resolver) Resolve(phrase string, now time.Time) (time.Time, error) {
	res, err := r.parser.Parse(phrase, now.In(r.loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("nldate: %w", err)
	}
	if res == nil {
		return time.Time{}, &ErrNotRecognized{Phrase: phrase}
	}
	return res.Time.In(r.loc), nil
}

// ResolveRange resolves a phrase to a [Start, End) range anchored at now.
// Known span keywords ("this month", "this week", "today") are expanded
// to their calendar bounds; anything else resolves to a point and is
// returned as [point, now], or as [now, point] when the point lies in
// the future.
func (r *Resolver) ResolveRange(phrase string, now time.Time) (Range, error) {
	now = now.In(r.loc)

	switch normalizeSpan(phrase) {
	case "this_month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		return Range{Start: start, End: start.AddDate(0, 1, 0)}, nil
	case "this_week":
		start := startOfISOWeek(now, r.loc)
		return Range{Start: start, End: start.AddDate(0, 0, 7)}, nil
	case "today":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
		return Range{Start: start, End: start.AddDate(0, 0, 1)}, nil
	}

	point, err := r.Resolve(phrase, now)
	if err != nil {
		return Range{}, err
	}
	if point.After(now) {
		return Range{Start: now, End: point}, nil
	}
	return Range{Start: point, End: now}, nil
}

func normalizeSpan(phrase string) string {
	switch phrase {
	case "this month", "current month":
		return "this_month"
	case "this week", "current week":
		return "this_week"
	case "today":
		return "today"
	default:
		return ""
	}
}

// startOfISOWeek returns midnight Monday of now's ISO week.
func startOfISOWeek(now time.Time, loc *time.Location) time.Time {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday -> 7
	}
	daysSinceMonday := weekday - 1
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return d.AddDate(0, 0, -daysSinceMonday)
}
