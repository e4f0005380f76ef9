package roulette

import (
	"sort"
	"strconv"
)

// Sector identifies one of the four fixed partitions of the wheel.
type Sector string

const (
	SectorA Sector = "A"
	SectorB Sector = "B"
	SectorC Sector = "C"
	SectorD Sector = "D"
)

// sectorPartition is static configuration: 38 number tokens split into four
// disjoint sets. Slice order matches the physical layout of each sector and is
// the display order used by tracking tables.
var sectorPartition = map[Sector][]string{
	SectorA: {"00", "27", "10", "25", "29", "12", "8", "19", "31", "18"},
	SectorB: {"6", "21", "33", "16", "4", "23", "35", "14", "2"},
	SectorC: {"0", "28", "9", "26", "30", "11", "7", "20", "32", "17"},
	SectorD: {"5", "22", "34", "15", "3", "24", "36", "13", "1"},
}

var (
	numberToSector map[string]Sector
	orderedNumbers []string
)

func init() {
	numberToSector = make(map[string]Sector, 38)
	for sector, numbers := range sectorPartition {
		for _, number := range numbers {
			numberToSector[number] = sector
		}
	}

	orderedNumbers = make([]string, 0, len(numberToSector))
	for number := range numberToSector {
		orderedNumbers = append(orderedNumbers, number)
	}
	sort.Slice(orderedNumbers, func(i, j int) bool {
		return numberLess(orderedNumbers[i], orderedNumbers[j])
	})
}

// numberLess orders "0" first and "00" last; the remaining tokens compare
// numerically. "00" has no single numeric value, so natural ordering cannot
// place it.
func numberLess(a, b string) bool {
	if a == b {
		return false
	}
	switch {
	case a == "00":
		return false
	case b == "00":
		return true
	case a == "0":
		return true
	case b == "0":
		return false
	}
	left, _ := strconv.Atoi(a)
	right, _ := strconv.Atoi(b)
	return left < right
}

// Classify resolves the sector for a canonical number token. The lookup is a
// case-sensitive exact match; no numeric coercion is applied, so "7" and " 7"
// are distinct and only the former is valid.
func Classify(number string) (Sector, bool) {
	sector, ok := numberToSector[number]
	return sector, ok
}

// IsValid reports whether the token is one of the 38 playable numbers.
func IsValid(number string) bool {
	_, ok := numberToSector[number]
	return ok
}

// AllNumbers returns the 38 valid tokens with "0" first, "00" last, and the
// rest in ascending numeric order.
func AllNumbers() []string {
	out := make([]string, len(orderedNumbers))
	copy(out, orderedNumbers)
	return out
}

// SectorNumbers returns the tokens belonging to a sector in display order.
func SectorNumbers(sector Sector) []string {
	numbers, ok := sectorPartition[sector]
	if !ok {
		return nil
	}
	out := make([]string, len(numbers))
	copy(out, numbers)
	return out
}

// Sectors lists the four sector labels in canonical order.
func Sectors() []Sector {
	return []Sector{SectorA, SectorB, SectorC, SectorD}
}
