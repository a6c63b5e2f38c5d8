package main

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/store/memory"
	"github.com/rmax-ai/topolord/pkg/topology"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateCache(ctx context.Context, key string) error {
	c.calls++
	return nil
}

func testSession() *navigator.Session {
	st := memory.New(
		topology.Document{ID: "topo", Type: topology.DocumentSiteTopology, Payload: `
type: site-topology
sites:
  - {id: tokyo, label: Tokyo}
`},
		topology.Document{ID: "eq", Type: topology.DocumentSiteEquipment, Payload: `
type: site-equipment
siteId: tokyo
racks:
  - id: r1
    label: Rack 1
    equipment:
      - {id: sw-1, type: switch, label: Switch, position: {unit: "40"}}
`},
	)
	return navigator.NewSession(navigator.NewLoader(st, cache.NewMemory(time.Minute)))
}

// step feeds a key through Update and runs the command it returns.
func step(t *testing.T, m model, key tea.KeyMsg) model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(model)
	if cmd == nil {
		t.Fatalf("key %q produced no command", key.String())
	}
	next, _ = m.Update(cmd())
	return next.(model)
}

func TestModel_Navigation(t *testing.T) {
	session := testSession()
	inv := &countingInvalidator{}
	m := newModel(session, inv)

	next, _ := m.Update(navigate(session.Reload)())
	m = next.(model)
	if m.loading || m.err != nil {
		t.Fatalf("loading=%v err=%v after first view", m.loading, m.err)
	}
	if got := len(m.nodes.Items()); got != 1 {
		t.Fatalf("expected 1 node on the sites view, got %d", got)
	}

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if st := session.State(); st.CurrentLevel != hierarchy.LevelSites || st.SelectedSiteID != "tokyo" {
		t.Fatalf("after enter: %+v", st)
	}
	if !strings.Contains(m.View(), "Tokyo") {
		t.Errorf("breadcrumb header does not show the site label")
	}

	m = step(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if st := session.State(); st.CurrentLevel != hierarchy.LevelAll {
		t.Fatalf("after backspace: %+v", st)
	}

	m = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if inv.calls != 1 {
		t.Errorf("expected reload to invalidate the cache once, got %d", inv.calls)
	}
	if m.err != nil {
		t.Errorf("unexpected error after reload: %v", m.err)
	}
}

func TestModel_BreadcrumbDigits(t *testing.T) {
	session := testSession()
	ctx := context.Background()
	if _, err := session.Navigate(ctx, hierarchy.LevelSites, "tokyo", "Tokyo"); err != nil {
		t.Fatal(err)
	}
	if _, err := session.Navigate(ctx, hierarchy.LevelRacks, "r1", "Rack 1"); err != nil {
		t.Fatal(err)
	}

	m := newModel(session, nil)
	m = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	if st := session.State(); st.CurrentLevel != hierarchy.LevelSites || len(st.Breadcrumbs) != 1 {
		t.Fatalf("after 1: %+v", st)
	}
	m = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("0")})
	if st := session.State(); st.CurrentLevel != hierarchy.LevelAll {
		t.Fatalf("after 0: %+v", st)
	}
}

func TestModel_IgnoresStaleResults(t *testing.T) {
	m := newModel(testSession(), nil)
	next, _ := m.Update(viewMsg{err: navigator.ErrStale})
	m = next.(model)
	if !m.loading || m.err != nil {
		t.Errorf("stale result changed the model: loading=%v err=%v", m.loading, m.err)
	}
}
