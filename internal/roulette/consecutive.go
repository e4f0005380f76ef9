package roulette

import "sort"

// FindConsecutive flags back-to-back outcomes inside one sector. It filters
// the results to the given sector tokens, sorts the remaining spin ranks
// ascending and collects every rank that participates in an adjacent pair
// differing by exactly one. Detection is per sector: a sector-A spin directly
// after a sector-B spin does not count.
func FindConsecutive(results []Result, sectorNumbers []string) map[int]struct{} {
	members := make(map[string]struct{}, len(sectorNumbers))
	for _, number := range sectorNumbers {
		members[number] = struct{}{}
	}

	spins := make([]int, 0, len(results))
	for i := range results {
		if _, ok := members[results[i].Number]; ok {
			spins = append(spins, results[i].Spin)
		}
	}
	sort.Ints(spins)

	consecutive := make(map[int]struct{})
	for i := 0; i+1 < len(spins); i++ {
		if spins[i+1] == spins[i]+1 {
			consecutive[spins[i]] = struct{}{}
			consecutive[spins[i+1]] = struct{}{}
		}
	}
	return consecutive
}

// ConsecutiveSpins unions the per-sector detection across all four sectors.
func ConsecutiveSpins(results []Result) map[int]struct{} {
	union := make(map[int]struct{})
	for _, sector := range Sectors() {
		for spin := range FindConsecutive(results, SectorNumbers(sector)) {
			union[spin] = struct{}{}
		}
	}
	return union
}
