package roulette

// Statistics summarizes the results of the current view. Derived on every
// refresh, never stored.
type Statistics struct {
	SectorCounts map[Sector]int `json:"sector_counts"`
	NumberCounts map[string]int `json:"number_counts"`
	TotalSpins   int            `json:"total_spins"`
	LastSpin     *Result        `json:"last_spin,omitempty"`
}

// Aggregate reduces a result set into per-sector counts, per-number counts and
// a total in a single pass. Number counts are seeded for all 38 tokens so
// unseen numbers report zero instead of being absent. Unknown sector labels
// are ignored rather than counted, and TotalSpins is the input length so the
// total stays correct even for malformed records.
func Aggregate(results []Result) Statistics {
	stats := Statistics{
		SectorCounts: make(map[Sector]int, 4),
		NumberCounts: make(map[string]int, 38),
		TotalSpins:   len(results),
	}
	for _, sector := range Sectors() {
		stats.SectorCounts[sector] = 0
	}
	for _, number := range AllNumbers() {
		stats.NumberCounts[number] = 0
	}

	for i := range results {
		result := results[i]
		if _, known := stats.SectorCounts[result.Sector]; known {
			stats.SectorCounts[result.Sector]++
		}
		if result.Number != "" {
			stats.NumberCounts[result.Number]++
		}
		if stats.LastSpin == nil || result.Spin > stats.LastSpin.Spin {
			last := result
			stats.LastSpin = &last
		}
	}

	return stats
}
