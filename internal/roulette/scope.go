package roulette

import "time"

// TimeWindow is a half-open interval [Start, End) over result timestamps.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a timestamp falls inside the window.
func (w TimeWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// DayStart truncates a time to midnight in its own location.
func DayStart(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// DayWindow covers the calendar day holding t.
func DayWindow(t time.Time) TimeWindow {
	start := DayStart(t)
	return TimeWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}

type scopeKind int

const (
	scopeSingleDate scopeKind = iota
	scopeRange
)

// Scope selects what the controller fetches: a single calendar day with live
// updates, or a closed date range fetched once.
type Scope struct {
	kind  scopeKind
	date  time.Time
	start time.Time
	end   time.Time
}

// SingleDate builds a live single-day scope.
func SingleDate(date time.Time) Scope {
	return Scope{kind: scopeSingleDate, date: DayStart(date)}
}

// DateRange builds a one-shot scope over the inclusive [start, end] days.
// Callers keep start <= end; a degenerate equal pair still behaves as a range
// and does not go live.
func DateRange(start, end time.Time) Scope {
	return Scope{kind: scopeRange, start: DayStart(start), end: DayStart(end)}
}

// Live reports whether the scope maintains a continuous subscription.
func (s Scope) Live() bool {
	return s.kind == scopeSingleDate
}

// Window converts the scope into its query boundary: the full day for a
// single date, [start, end+1day) for a range.
func (s Scope) Window() TimeWindow {
	if s.kind == scopeSingleDate {
		return DayWindow(s.date)
	}
	return TimeWindow{Start: s.start, End: s.end.AddDate(0, 0, 1)}
}

// Equal compares two scopes by kind and day boundaries.
func (s Scope) Equal(other Scope) bool {
	if s.kind != other.kind {
		return false
	}
	if s.kind == scopeSingleDate {
		return s.date.Equal(other.date)
	}
	return s.start.Equal(other.start) && s.end.Equal(other.end)
}
