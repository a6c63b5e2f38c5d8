package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/dot"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
)

var (
	// ErrStale is returned when a newer navigation started before this one
	// finished. The result has been discarded.
	ErrStale = errors.New("navigation superseded")
	// ErrUnknownNode means a clicked title matched nothing in the current view.
	ErrUnknownNode = errors.New("no node matches title")
)

// Target maps a clicked node to the level and id it opens. Server-typed
// equipment opens the server's details.
func Target(m dot.NodeIDMapping) (hierarchy.Level, string) {
	switch m.Type {
	case dot.KindSite:
		return hierarchy.LevelSites, m.DataID
	case dot.KindRack:
		return hierarchy.LevelRacks, m.DataID
	case dot.KindServer:
		return hierarchy.LevelServerDetails, m.DataID
	default:
		if m.Subtype == "server" {
			return hierarchy.LevelServerDetails, m.DataID
		}
		return hierarchy.LevelEquipment, m.DataID
	}
}

// Session owns the hierarchy state of one user. Every navigation bumps a
// generation counter; a result that returns after a newer navigation began
// is dropped instead of overwriting the newer state.
type Session struct {
	src ViewSource

	mu    sync.Mutex
	state hierarchy.State
	view  *View
	err   error
	gen   uint64
}

// NewSession starts at the `all` level. Call Reload to fetch the first view.
func NewSession(src ViewSource) *Session {
	return &Session{src: src, state: hierarchy.New()}
}

// State returns the current hierarchy state.
func (s *Session) State() hierarchy.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the last successfully loaded view and the error of the last
// navigation, if it failed.
func (s *Session) View() (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view, s.err
}

// target picks the id to render for a state. NavigateToLevel without an id
// keeps the breadcrumb but clears the selection, so the trail is consulted.
func target(st hierarchy.State) (hierarchy.Level, string) {
	level := st.CurrentLevel
	if id := st.Selected(level); id != "" {
		return level, id
	}
	for i := len(st.Breadcrumbs) - 1; i >= 0; i-- {
		if st.Breadcrumbs[i].Type == level {
			return level, st.Breadcrumbs[i].ID
		}
	}
	return level, ""
}

func (s *Session) apply(ctx context.Context, next hierarchy.State) (*View, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	level, id := target(next)
	v, err := s.src.View(ctx, level, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		TopolordStaleNavigations.Inc()
		log.WithFields(log.Fields{"level": level, "id": id}).Debug("navigator: dropping superseded result")
		return nil, ErrStale
	}
	s.state = next
	s.err = err
	if err != nil {
		s.view = nil
		return nil, err
	}
	s.view = v
	return v, nil
}

// Navigate moves to level with the given selection.
func (s *Session) Navigate(ctx context.Context, level hierarchy.Level, id, label string) (*View, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	s.mu.Lock()
	next := s.state.NavigateToLevel(level, strings.TrimSpace(id), label)
	s.mu.Unlock()
	return s.apply(ctx, next)
}

// Breadcrumb jumps back to the breadcrumb at index; -1 returns to `all`.
// An out-of-range index leaves the session untouched.
func (s *Session) Breadcrumb(ctx context.Context, index int) (*View, error) {
	s.mu.Lock()
	if index < -1 || index >= len(s.state.Breadcrumbs) {
		v, err := s.view, s.err
		s.mu.Unlock()
		return v, err
	}
	next := s.state.NavigateToBreadcrumb(index)
	s.mu.Unlock()
	return s.apply(ctx, next)
}

// Up goes back one breadcrumb.
func (s *Session) Up(ctx context.Context) (*View, error) {
	s.mu.Lock()
	n := len(s.state.Breadcrumbs)
	s.mu.Unlock()
	if n == 0 {
		return s.Reload(ctx)
	}
	return s.Breadcrumb(ctx, n-2)
}

// Open jumps straight to an entity, rebuilding the trail from its resolved
// ancestors. Unresolved ancestors are left out of the trail.
func (s *Session) Open(ctx context.Context, level hierarchy.Level, id string) (*View, error) {
	id = strings.TrimSpace(id)
	entries, err := s.src.Ancestors(ctx, level, id)
	if err != nil {
		return nil, err
	}
	next := hierarchy.New().SetHierarchy(entries)
	if next.CurrentLevel != level {
		next = hierarchy.New().NavigateToLevel(level, id, "")
	}
	return s.apply(ctx, next)
}

// Reload fetches the view of the current state again.
func (s *Session) Reload(ctx context.Context) (*View, error) {
	s.mu.Lock()
	next := s.state
	s.mu.Unlock()
	return s.apply(ctx, next)
}

// Click resolves a node title against the current view and navigates to it.
func (s *Session) Click(ctx context.Context, title string) (*View, error) {
	s.mu.Lock()
	var mappings dot.Mappings
	if s.view != nil {
		mappings = s.view.Graph.Mappings
	}
	s.mu.Unlock()

	m, ok := dot.ResolveNodeID(title, mappings)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, title)
	}
	level, id := Target(m)
	switch level {
	case hierarchy.LevelSites, hierarchy.LevelRacks:
		return s.Navigate(ctx, level, id, m.Label)
	default:
		return s.Open(ctx, level, id)
	}
}
