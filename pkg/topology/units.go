package topology

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultRackUnits is the unit capacity assumed for racks that declare none.
const DefaultRackUnits = 42

var unitPattern = regexp.MustCompile(`^(\d+)(?:-(\d+))?$`)

// UPosition is a parsed rack-unit range. Start is 1-based.
type UPosition struct {
	Start  int `json:"u_start"`
	Height int `json:"u_height"`
}

// End returns the last unit occupied.
func (p UPosition) End() int {
	return p.Start + p.Height - 1
}

// ParseUPosition parses "10-12" or "7". Anything else, including reversed
// ranges and zero units, is rejected.
func ParseUPosition(unit string) (UPosition, bool) {
	m := unitPattern.FindStringSubmatch(strings.TrimSpace(unit))
	if m == nil {
		return UPosition{}, false
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return UPosition{}, false
	}
	end := start
	if m[2] != "" {
		if end, err = strconv.Atoi(m[2]); err != nil {
			return UPosition{}, false
		}
	}
	if start < 1 || end < 1 || start > end {
		return UPosition{}, false
	}
	return UPosition{Start: start, Height: end - start + 1}, true
}

// ValidUPosition reports whether p fits inside a rack of capacity units.
func ValidUPosition(p UPosition, capacity int) bool {
	if capacity <= 0 {
		capacity = DefaultRackUnits
	}
	if p.Start < 1 || p.Height < 1 {
		return false
	}
	return p.End() <= capacity
}

// Fraction converts p into the vertical [start, end) fraction of a rack.
func (p UPosition) Fraction(capacity int) (start, end float64) {
	if capacity <= 0 {
		capacity = DefaultRackUnits
	}
	c := float64(capacity)
	return float64(p.Start-1) / c, float64(p.Start+p.Height-1) / c
}

// UsedUnits counts the distinct units occupied by the given positions.
// Overlapping ranges count once; units past capacity are ignored.
func UsedUnits(positions []UPosition, capacity int) int {
	if capacity <= 0 {
		capacity = DefaultRackUnits
	}
	n := 0
	for _, p := range mergeRanges(positions, capacity) {
		n += p.Height
	}
	return n
}

// mergeRanges clips positions to [1, capacity] and merges overlapping or
// touching ranges, bottom first. Cost depends on len(positions) only.
func mergeRanges(positions []UPosition, capacity int) []UPosition {
	clipped := make([]UPosition, 0, len(positions))
	for _, p := range positions {
		if p.Height < 1 || p.Start > capacity {
			continue
		}
		start, end := max(p.Start, 1), min(p.End(), capacity)
		if end < start {
			continue
		}
		clipped = append(clipped, UPosition{Start: start, Height: end - start + 1})
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start < clipped[j].Start })

	var out []UPosition
	for _, p := range clipped {
		if n := len(out); n > 0 && p.Start-1 <= out[n-1].End() {
			if p.End() > out[n-1].End() {
				out[n-1].Height = p.End() - out[n-1].Start + 1
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

// FreeUnits returns capacity minus UsedUnits.
func FreeUnits(positions []UPosition, capacity int) int {
	if capacity <= 0 {
		capacity = DefaultRackUnits
	}
	return capacity - UsedUnits(positions, capacity)
}

// RackPositions collects the parseable U-positions of a rack's equipment.
func RackPositions(r Rack) []UPosition {
	var out []UPosition
	for _, eq := range r.Equipment {
		if eq.Position == nil {
			continue
		}
		if p, ok := ParseUPosition(eq.Position.Unit); ok {
			out = append(out, p)
		}
	}
	return out
}

// FreeRanges returns the unoccupied unit ranges of a rack, bottom first.
func FreeRanges(positions []UPosition, capacity int) []UPosition {
	if capacity <= 0 {
		capacity = DefaultRackUnits
	}
	var out []UPosition
	next := 1
	for _, p := range mergeRanges(positions, capacity) {
		if p.Start > next {
			out = append(out, UPosition{Start: next, Height: p.Start - next})
		}
		if p.End() >= capacity {
			return out
		}
		next = p.End() + 1
	}
	return append(out, UPosition{Start: next, Height: capacity - next + 1})
}
