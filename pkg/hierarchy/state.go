// Package hierarchy implements the navigation state machine over the four
// topology levels. State values are immutable: every transition returns a
// new State and leaves the receiver untouched.
package hierarchy

import (
	"fmt"
	"sort"
	"strings"
)

// Level is a navigation depth.
type Level string

const (
	LevelAll           Level = "all"
	LevelSites         Level = "sites"
	LevelRacks         Level = "racks"
	LevelEquipment     Level = "equipment"
	LevelServerDetails Level = "server-details"
)

var levelOrder = []Level{LevelAll, LevelSites, LevelRacks, LevelEquipment, LevelServerDetails}

// Rank returns the position of l in all < sites < racks < equipment <
// server-details, or -1 for an unknown level.
func (l Level) Rank() int {
	for i, v := range levelOrder {
		if v == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// ParseLevel accepts the canonical level names, case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown hierarchy level %q", s)
	}
	return l, nil
}

// Levels returns every level in ascending rank.
func Levels() []Level {
	out := make([]Level, len(levelOrder))
	copy(out, levelOrder)
	return out
}

// Breadcrumb is one entry of the navigation trail.
type Breadcrumb struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  Level  `json:"type"`
}

// State is a snapshot of the navigator.
type State struct {
	CurrentLevel        Level        `json:"current_level"`
	SelectedSiteID      string       `json:"selected_site_id,omitempty"`
	SelectedRackID      string       `json:"selected_rack_id,omitempty"`
	SelectedEquipmentID string       `json:"selected_equipment_id,omitempty"`
	SelectedServerID    string       `json:"selected_server_id,omitempty"`
	Breadcrumbs         []Breadcrumb `json:"breadcrumbs"`
}

// New returns the initial state.
func New() State {
	return State{CurrentLevel: LevelAll, Breadcrumbs: []Breadcrumb{}}
}

func (s State) trail() []Breadcrumb {
	out := make([]Breadcrumb, len(s.Breadcrumbs))
	copy(out, s.Breadcrumbs)
	return out
}

// keepBelow returns the breadcrumbs whose rank is strictly below rank.
func keepBelow(crumbs []Breadcrumb, rank int) []Breadcrumb {
	out := crumbs[:0]
	for _, b := range crumbs {
		if b.Type.Rank() < rank {
			out = append(out, b)
		}
	}
	return out
}

// NavigateToLevel moves to level. With a node id the entry for level is
// (re)placed at the end of the trail and every entry at or below it is
// dropped, so repeating a call is idempotent. Without a node id the trail
// is only cut back to level. Unknown levels leave the state unchanged.
func (s State) NavigateToLevel(level Level, nodeID, label string) State {
	rank := level.Rank()
	if rank < 0 {
		return s
	}

	crumbs := s.trail()
	switch {
	case level == LevelAll:
		crumbs = crumbs[:0]
	case nodeID != "":
		crumbs = keepBelow(crumbs, rank)
		if label == "" {
			label = nodeID
		}
		crumbs = append(crumbs, Breadcrumb{ID: nodeID, Label: label, Type: level})
	default:
		crumbs = keepBelow(crumbs, rank+1)
	}

	next := State{
		CurrentLevel: level,
		Breadcrumbs:  crumbs,
	}
	switch level {
	case LevelSites:
		next.SelectedSiteID = nodeID
	case LevelAll:
	default:
		next.SelectedSiteID = s.SelectedSiteID
	}
	switch level {
	case LevelRacks:
		next.SelectedRackID = nodeID
	case LevelAll, LevelSites:
	default:
		next.SelectedRackID = s.SelectedRackID
	}
	if level == LevelEquipment {
		next.SelectedEquipmentID = nodeID
	}
	if level == LevelServerDetails {
		next.SelectedServerID = nodeID
	}
	return next
}

// NavigateToBreadcrumb jumps back to the breadcrumb at index. -1 resets;
// any other out-of-range index is a no-op.
func (s State) NavigateToBreadcrumb(index int) State {
	if index < -1 || index >= len(s.Breadcrumbs) {
		return s
	}
	if index == -1 {
		return New()
	}

	target := s.Breadcrumbs[index]
	crumbs := make([]Breadcrumb, index+1)
	copy(crumbs, s.Breadcrumbs[:index+1])

	next := State{
		CurrentLevel: target.Type,
		Breadcrumbs:  crumbs,
	}
	rank := target.Type.Rank()
	switch {
	case target.Type == LevelSites:
		next.SelectedSiteID = target.ID
	case rank > LevelSites.Rank():
		next.SelectedSiteID = s.SelectedSiteID
	}
	switch {
	case target.Type == LevelRacks:
		next.SelectedRackID = target.ID
	case rank > LevelRacks.Rank():
		next.SelectedRackID = s.SelectedRackID
	}
	if target.Type == LevelEquipment {
		next.SelectedEquipmentID = target.ID
	}
	if target.Type == LevelServerDetails {
		next.SelectedServerID = target.ID
	}
	return next
}

// Entry is one known ancestor handed to SetHierarchy.
type Entry struct {
	Level Level  `json:"level"`
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SetHierarchy replaces the trail with entries, sorted by rank. When two
// entries share a level the later one wins. Entries for `all` or unknown
// levels are ignored; an empty list leaves the state unchanged.
func (s State) SetHierarchy(entries []Entry) State {
	byLevel := make(map[Level]Entry)
	for _, e := range entries {
		if e.Level == LevelAll || !e.Level.Valid() {
			continue
		}
		byLevel[e.Level] = e
	}
	if len(byLevel) == 0 {
		return s
	}

	sorted := make([]Entry, 0, len(byLevel))
	for _, e := range byLevel {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level.Rank() < sorted[j].Level.Rank() })

	next := State{
		CurrentLevel:   sorted[len(sorted)-1].Level,
		SelectedSiteID: s.SelectedSiteID,
		SelectedRackID: s.SelectedRackID,
		Breadcrumbs:    make([]Breadcrumb, 0, len(sorted)),
	}
	for _, e := range sorted {
		label := e.Label
		if label == "" {
			label = e.ID
		}
		next.Breadcrumbs = append(next.Breadcrumbs, Breadcrumb{ID: e.ID, Label: label, Type: e.Level})
		switch e.Level {
		case LevelSites:
			next.SelectedSiteID = e.ID
		case LevelRacks:
			next.SelectedRackID = e.ID
		case LevelEquipment:
			next.SelectedEquipmentID = e.ID
		case LevelServerDetails:
			next.SelectedServerID = e.ID
		}
	}
	return next
}

// Reset is NavigateToLevel(LevelAll).
func (s State) Reset() State {
	return s.NavigateToLevel(LevelAll, "", "")
}

// Selected returns the selected id for level, if any.
func (s State) Selected(level Level) string {
	switch level {
	case LevelSites:
		return s.SelectedSiteID
	case LevelRacks:
		return s.SelectedRackID
	case LevelEquipment:
		return s.SelectedEquipmentID
	case LevelServerDetails:
		return s.SelectedServerID
	}
	return ""
}
