package roulette

import "time"

// DefaultDailyLimit caps submissions per calendar day. The check is a soft
// client-side guard; authoritative enforcement stays server-side.
const DefaultDailyLimit = 80

// SubmissionPolicy validates raw submissions before any write is attempted.
type SubmissionPolicy struct {
	// DailyLimit is the per-day submission cap; zero selects the default.
	DailyLimit int
	// AllowYesterday widens the entry window with a one-day grace period.
	AllowYesterday bool
	// Clock supplies the current time; nil selects time.Now.
	Clock func() time.Time
}

func (p SubmissionPolicy) limit() int {
	if p.DailyLimit > 0 {
		return p.DailyLimit
	}
	return DefaultDailyLimit
}

func (p SubmissionPolicy) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// CheckWindow enforces the day-boundary policy: entries are accepted while the
// viewed date is today, or yesterday when the grace window is enabled. Any
// other date is browse-only.
func (p SubmissionPolicy) CheckWindow(viewDate time.Time) error {
	now := p.now()
	if SameDay(viewDate, now) {
		return nil
	}
	if p.AllowYesterday && SameDay(viewDate, now.AddDate(0, 0, -1)) {
		return nil
	}
	return ErrOutOfWindow
}

// Validate runs the pre-write checks in order: token validity, the daily
// quota against a count read just before the call, and the sector lookup.
// On success it returns the fields to persist; nothing is written here.
//
// The quota check races with the eventual write and may overshoot slightly
// under concurrent sessions; that is accepted, not locked around.
func (p SubmissionPolicy) Validate(number, userID string, existingCountForDate int) (PendingResult, error) {
	if !IsValid(number) {
		return PendingResult{}, ErrInvalidNumber
	}
	if existingCountForDate >= p.limit() {
		return PendingResult{}, ErrDailyLimitExceeded
	}
	sector, ok := Classify(number)
	if !ok {
		return PendingResult{}, ErrSectorResolutionFailed
	}
	return PendingResult{
		Number:    number,
		Sector:    sector,
		Timestamp: p.now().UTC(),
		UserID:    userID,
	}, nil
}
