package roulette

import "time"

// Result is one recorded spin outcome. Spin is a view-relative rank assigned
// after sorting the active scope's results by timestamp; it is never persisted
// and is recomputed on every data refresh.
type Result struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Sector    Sector    `json:"sector"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Spin      int       `json:"spin"`
}

// PendingResult carries the fields of a validated submission that still has to
// be written. Persistence assigns the identifier.
type PendingResult struct {
	Number    string
	Sector    Sector
	Timestamp time.Time
	UserID    string
}
