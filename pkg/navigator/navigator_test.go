package navigator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rmax-ai/topolord/pkg/blob"
	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/dot"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/store"
	"github.com/rmax-ai/topolord/pkg/store/memory"
	"github.com/rmax-ai/topolord/pkg/topology"
)

func fixtureStore() *memory.Store {
	return memory.New(
		topology.Document{ID: "topo", Type: topology.DocumentSiteTopology, Payload: `
type: site-topology
sites:
  - id: site-tokyo
    label: Tokyo
  - id: site-osaka
    label: Osaka
connections:
  - {from: site-tokyo, to: site-osaka, bandwidth: 10Gbps}
`},
		topology.Document{ID: "eq-tokyo", Type: topology.DocumentSiteEquipment, Payload: `
type: site-equipment
siteId: site-tokyo
racks:
  - id: rack-a1
    label: Rack A1
    equipment:
      - {id: sw-1, type: switch, label: Switch, position: {unit: "40"}}
      - {id: legacy-srv, type: server, label: Legacy, position: {unit: "1-2"}}
  - id: rack-a2
    label: Rack A2
connections:
  - {from: sw-1, to: legacy-srv, type: copper}
`},
		topology.Document{ID: "rs-a1", Type: topology.DocumentRackServers, Payload: `
type: rack-servers
rackId: rack-a1
label: Rack A1 servers
servers:
  - id: srv-1
    label: Web 1
    position: {unit: "10-11"}
    ports: [{id: eth0, role: public}]
  - {id: srv-2, label: Web 2, position: {unit: "12"}}
`},
		topology.Document{ID: "sd-1", Type: topology.DocumentServerDetails, Payload: `
type: server-details
serverId: srv-1
label: Web 1 details
slots: [{id: s0, status: installed}, {id: s1, status: empty}]
`},
		topology.Document{ID: "sd-9", Type: topology.DocumentServerDetails, Payload: `
type: server-details
serverId: srv-9
label: Orphan
`},
	)
}

func newTestLoader(st *memory.Store) *Loader {
	return NewLoader(st, cache.NewMemory(time.Minute))
}

func TestLoader_SitesView(t *testing.T) {
	l := newTestLoader(fixtureStore())
	v, err := l.View(context.Background(), hierarchy.LevelAll, "")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(v.Scene.Nodes) != 2 {
		t.Errorf("expected 2 site nodes, got %d", len(v.Scene.Nodes))
	}
	m, ok := v.Graph.Mappings["site_site-tokyo"]
	if !ok || m.DataID != "site-tokyo" || m.Type != dot.KindSite {
		t.Errorf("unexpected mapping %+v, %v", m, ok)
	}
}

func TestLoader_SiteView(t *testing.T) {
	l := newTestLoader(fixtureStore())
	v, err := l.View(context.Background(), hierarchy.LevelSites, "site-tokyo")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.Label != "Tokyo" {
		t.Errorf("label = %q", v.Label)
	}
	for _, id := range []string{"rack-a1", "rack-a2", "sw-1", "legacy-srv", "srv-1", "srv-2"} {
		if _, ok := v.Graph.Mappings[id]; !ok {
			t.Errorf("missing mapping for %s", id)
		}
	}
	if len(v.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", v.Warnings)
	}
}

func TestLoader_SiteViewDegradesOnSecondaryFailure(t *testing.T) {
	st := fixtureStore()
	st.FailGet("rs-a1", errors.New("backend down"))
	l := newTestLoader(st)

	before := testutil.ToFloat64(TopolordDegradedFetches)
	v, err := l.View(context.Background(), hierarchy.LevelSites, "site-tokyo")
	if err != nil {
		t.Fatalf("secondary failure must not fail the view: %v", err)
	}
	if _, ok := v.Graph.Mappings["srv-1"]; ok {
		t.Error("servers of the failed rack should be absent")
	}
	if _, ok := v.Graph.Mappings["sw-1"]; !ok {
		t.Error("equipment should still render")
	}
	if len(v.Warnings) != 1 || !strings.Contains(v.Warnings[0], "rack-a1") {
		t.Errorf("warnings = %v", v.Warnings)
	}
	if got := testutil.ToFloat64(TopolordDegradedFetches) - before; got != 1 {
		t.Errorf("degraded fetches delta = %v", got)
	}
}

func TestLoader_SiteViewPrimaryFailure(t *testing.T) {
	st := fixtureStore()
	boom := errors.New("backend down")
	st.FailGet("eq-tokyo", boom)
	l := newTestLoader(st)

	if _, err := l.View(context.Background(), hierarchy.LevelSites, "site-tokyo"); !errors.Is(err, boom) {
		t.Errorf("expected primary error, got %v", err)
	}
	if _, err := l.View(context.Background(), hierarchy.LevelSites, "site-osaka"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a site without equipment, got %v", err)
	}
}

func TestLoader_ListFailure(t *testing.T) {
	st := fixtureStore()
	st.FailList(errors.New("offline"))
	l := NewLoader(st, nil)
	if _, err := l.View(context.Background(), hierarchy.LevelAll, ""); err == nil {
		t.Error("expected error when listing fails")
	}
}

func TestLoader_RackView(t *testing.T) {
	l := newTestLoader(fixtureStore())

	t.Run("document", func(t *testing.T) {
		v, err := l.View(context.Background(), hierarchy.LevelRacks, "rack-a1")
		if err != nil {
			t.Fatalf("View: %v", err)
		}
		if _, ok := v.Graph.Mappings["srv-1"]; !ok {
			t.Error("missing srv-1")
		}
		if len(v.Warnings) != 0 {
			t.Errorf("unexpected warnings %v", v.Warnings)
		}
	})

	t.Run("equipment fallback", func(t *testing.T) {
		v, err := l.View(context.Background(), hierarchy.LevelRacks, "rack-a2")
		if err != nil {
			t.Fatalf("View: %v", err)
		}
		if v.Label != "Rack A2" || len(v.Warnings) != 1 {
			t.Errorf("label=%q warnings=%v", v.Label, v.Warnings)
		}
		if !strings.Contains(v.Graph.Text, "// no servers") {
			t.Errorf("expected empty rack comment:\n%s", v.Graph.Text)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := l.View(context.Background(), hierarchy.LevelRacks, "rack-zz"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestLoader_EquipmentView(t *testing.T) {
	l := newTestLoader(fixtureStore())
	v, err := l.View(context.Background(), hierarchy.LevelEquipment, "sw-1")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.Level != hierarchy.LevelEquipment || v.ID != "sw-1" {
		t.Errorf("level=%s id=%s", v.Level, v.ID)
	}
	if _, ok := v.Graph.Mappings["rack-a2"]; ok {
		t.Error("equipment view should be filtered to the owning rack")
	}
	if _, ok := v.Graph.Mappings["rack-a1"]; !ok {
		t.Error("owning rack missing")
	}
}

func TestLoader_ServerView(t *testing.T) {
	l := newTestLoader(fixtureStore())

	v, err := l.View(context.Background(), hierarchy.LevelServerDetails, "srv-1")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.Details == nil || len(v.Details.Slots) != 2 {
		t.Fatalf("details = %+v", v.Details)
	}
	if v.Graph.Mappings == nil {
		t.Error("mappings must be non-nil")
	}

	orphan, err := l.View(context.Background(), hierarchy.LevelServerDetails, "srv-9")
	if err != nil {
		t.Fatalf("orphan view should still build: %v", err)
	}
	if len(orphan.Warnings) != 1 {
		t.Errorf("expected orphan warning, got %v", orphan.Warnings)
	}

	if _, err := l.View(context.Background(), hierarchy.LevelServerDetails, "legacy-srv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoader_InvalidRequests(t *testing.T) {
	l := newTestLoader(fixtureStore())
	if _, err := l.View(context.Background(), "planet", "x"); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
	if _, err := l.View(context.Background(), hierarchy.LevelRacks, "  "); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel for missing id, got %v", err)
	}
}

func TestLoader_Ancestors(t *testing.T) {
	l := newTestLoader(fixtureStore())

	tests := []struct {
		name  string
		level hierarchy.Level
		id    string
		want  []hierarchy.Entry
	}{
		{
			name:  "server",
			level: hierarchy.LevelServerDetails,
			id:    "srv-1",
			want: []hierarchy.Entry{
				{Level: hierarchy.LevelSites, ID: "site-tokyo", Label: "Tokyo"},
				{Level: hierarchy.LevelRacks, ID: "rack-a1", Label: "Rack A1"},
				{Level: hierarchy.LevelServerDetails, ID: "srv-1", Label: "Web 1"},
			},
		},
		{
			name:  "orphan server",
			level: hierarchy.LevelServerDetails,
			id:    "srv-9",
			want: []hierarchy.Entry{
				{Level: hierarchy.LevelServerDetails, ID: "srv-9", Label: "Orphan"},
			},
		},
		{
			name:  "equipment",
			level: hierarchy.LevelEquipment,
			id:    "sw-1",
			want: []hierarchy.Entry{
				{Level: hierarchy.LevelSites, ID: "site-tokyo", Label: "Tokyo"},
				{Level: hierarchy.LevelRacks, ID: "rack-a1", Label: "Rack A1"},
				{Level: hierarchy.LevelEquipment, ID: "sw-1", Label: "Switch"},
			},
		},
		{
			name:  "all",
			level: hierarchy.LevelAll,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Ancestors(context.Background(), tt.level, tt.id)
			if err != nil {
				t.Fatalf("Ancestors: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Ancestors mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoader_Validate(t *testing.T) {
	l := newTestLoader(fixtureStore())
	issues, skipped, err := l.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("unexpected skipped %v", skipped)
	}
	if len(issues) != 1 || issues[0].Value != "srv-9" {
		t.Errorf("expected one issue for srv-9, got %+v", issues)
	}
}

func TestLoader_CachesDocuments(t *testing.T) {
	st := fixtureStore()
	c := cache.NewMemory(time.Minute)
	l := NewLoader(st, c)

	if _, err := l.View(context.Background(), hierarchy.LevelRacks, "rack-a1"); err != nil {
		t.Fatalf("View: %v", err)
	}
	st.FailGet("rs-a1", errors.New("down"))
	if _, err := l.View(context.Background(), hierarchy.LevelRacks, "rack-a1"); err != nil {
		t.Errorf("cached document should be served: %v", err)
	}
	c.InvalidateAll(context.Background())
	if _, err := l.View(context.Background(), hierarchy.LevelRacks, "rack-a1"); err == nil {
		t.Error("expected error after invalidation")
	}
}

func TestSession_BreadcrumbTruncation(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newTestLoader(fixtureStore()))

	if _, err := s.Navigate(ctx, hierarchy.LevelSites, "site-tokyo", "Tokyo"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Navigate(ctx, hierarchy.LevelRacks, "rack-a1", "Rack A1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Navigate(ctx, hierarchy.LevelServerDetails, "srv-1", "Web 1"); err != nil {
		t.Fatal(err)
	}
	if n := len(s.State().Breadcrumbs); n != 3 {
		t.Fatalf("expected 3 breadcrumbs, got %d", n)
	}

	v, err := s.Breadcrumb(ctx, 0)
	if err != nil {
		t.Fatalf("Breadcrumb: %v", err)
	}
	st := s.State()
	if st.CurrentLevel != hierarchy.LevelSites || len(st.Breadcrumbs) != 1 || st.Breadcrumbs[0].ID != "site-tokyo" {
		t.Errorf("unexpected state %+v", st)
	}
	if v.Level != hierarchy.LevelSites || v.ID != "site-tokyo" {
		t.Errorf("view level=%s id=%s", v.Level, v.ID)
	}

	// out of range is a no-op
	if _, err := s.Breadcrumb(ctx, 7); err != nil {
		t.Errorf("out-of-range breadcrumb: %v", err)
	}
	if s.State().CurrentLevel != hierarchy.LevelSites {
		t.Error("out-of-range breadcrumb changed the state")
	}

	if _, err := s.Up(ctx); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if s.State().CurrentLevel != hierarchy.LevelAll {
		t.Errorf("Up from sites should reach all, got %s", s.State().CurrentLevel)
	}
}

func TestSession_OpenOrphan(t *testing.T) {
	s := NewSession(newTestLoader(fixtureStore()))
	v, err := s.Open(context.Background(), hierarchy.LevelServerDetails, "srv-9")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st := s.State()
	if st.CurrentLevel != hierarchy.LevelServerDetails || len(st.Breadcrumbs) != 1 || st.SelectedSiteID != "" {
		t.Errorf("unexpected state %+v", st)
	}
	if v.Details == nil {
		t.Error("orphan details should render")
	}
}

func TestSession_Click(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newTestLoader(fixtureStore()))
	if _, err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Click(ctx, `"site_site-tokyo"`); err != nil {
		t.Fatalf("click site: %v", err)
	}
	if s.State().SelectedSiteID != "site-tokyo" {
		t.Errorf("state %+v", s.State())
	}

	if _, err := s.Click(ctx, "sw-1"); err != nil {
		t.Fatalf("click equipment: %v", err)
	}
	st := s.State()
	if st.CurrentLevel != hierarchy.LevelEquipment || st.SelectedRackID != "rack-a1" || len(st.Breadcrumbs) != 3 {
		t.Errorf("state %+v", st)
	}

	if _, err := s.Click(ctx, "zzz"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode, got %v", err)
	}
}

func TestTarget(t *testing.T) {
	tests := []struct {
		m     dot.NodeIDMapping
		level hierarchy.Level
	}{
		{dot.NodeIDMapping{Type: dot.KindSite, DataID: "a"}, hierarchy.LevelSites},
		{dot.NodeIDMapping{Type: dot.KindRack, DataID: "a"}, hierarchy.LevelRacks},
		{dot.NodeIDMapping{Type: dot.KindServer, DataID: "a"}, hierarchy.LevelServerDetails},
		{dot.NodeIDMapping{Type: dot.KindEquipment, Subtype: "server", DataID: "a"}, hierarchy.LevelServerDetails},
		{dot.NodeIDMapping{Type: dot.KindEquipment, Subtype: "switch", DataID: "a"}, hierarchy.LevelEquipment},
	}
	for _, tt := range tests {
		if level, id := Target(tt.m); level != tt.level || id != "a" {
			t.Errorf("Target(%+v) = %s, %s", tt.m, level, id)
		}
	}
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) View(_ context.Context, level hierarchy.Level, id string) (*View, error) {
	if id == "slow" {
		close(b.started)
		<-b.release
	}
	return &View{Level: level, ID: id}, nil
}

func (b *blockingSource) Ancestors(context.Context, hierarchy.Level, string) ([]hierarchy.Entry, error) {
	return nil, nil
}

func TestSession_StaleResultDiscarded(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	s := NewSession(src)
	ctx := context.Background()

	before := testutil.ToFloat64(TopolordStaleNavigations)
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Navigate(ctx, hierarchy.LevelSites, "slow", "")
		errCh <- err
	}()
	<-src.started

	if _, err := s.Navigate(ctx, hierarchy.LevelSites, "fast", ""); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	close(src.release)

	if err := <-errCh; !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
	if got := s.State().SelectedSiteID; got != "fast" {
		t.Errorf("stale result overwrote state: %s", got)
	}
	v, _ := s.View()
	if v == nil || v.ID != "fast" {
		t.Errorf("view = %+v", v)
	}
	if got := testutil.ToFloat64(TopolordStaleNavigations) - before; got != 1 {
		t.Errorf("stale counter delta = %v", got)
	}
}

func TestWatcher_InvalidatesOnChange(t *testing.T) {
	ctx := context.Background()
	st := fixtureStore()
	c := cache.NewMemory(time.Minute)
	w := NewWatcher(st, c, 0)

	changed, err := w.Check(ctx)
	if err != nil || changed {
		t.Fatalf("first check = %v, %v", changed, err)
	}

	c.Set(ctx, "document:x", []byte("1"))
	if changed, _ := w.Check(ctx); changed {
		t.Error("no write happened")
	}
	if c.Len() != 1 {
		t.Error("cache flushed without a change")
	}

	if err := st.Put(ctx, topology.Document{ID: "new", Type: topology.DocumentSiteTopology, Payload: "sites: []"}); err != nil {
		t.Fatal(err)
	}
	changed, err = w.Check(ctx)
	if err != nil || !changed {
		t.Fatalf("check after write = %v, %v", changed, err)
	}
	if c.Len() != 0 {
		t.Errorf("cache not flushed, %d entries left", c.Len())
	}
}

type failingStamper struct{}

func (failingStamper) ChangeStamp(context.Context) (int64, error) {
	return 0, store.ErrNotFound
}

func TestWatcher_StartStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(failingStamper{}, nil, time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestLoader_Export(t *testing.T) {
	ctx := context.Background()
	dst := blob.NewLocalBlobStore(t.TempDir())
	l := newTestLoader(fixtureStore())

	sum, err := l.Export(ctx, dst)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.Written != 8 || len(sum.Failed) != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	keys, err := dst.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"all.dot", "all.json",
		"equipment/legacy-srv.dot", "equipment/legacy-srv.json",
		"equipment/sw-1.dot", "equipment/sw-1.json",
		"racks/rack-a1.dot", "racks/rack-a1.json",
		"racks/rack-a2.dot", "racks/rack-a2.json",
		"server-details/srv-1.dot", "server-details/srv-1.json",
		"server-details/srv-9.dot", "server-details/srv-9.json",
		"sites/site-tokyo.dot", "sites/site-tokyo.json",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("exported keys (-want +got):\n%s", diff)
	}
}

func TestLoader_ExportRecordsFailures(t *testing.T) {
	st := fixtureStore()
	st.FailGet("rs-a1", errors.New("down"))

	sum, err := newTestLoader(st).Export(context.Background(), blob.NewLocalBlobStore(t.TempDir()))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	found := false
	for _, f := range sum.Failed {
		if strings.HasPrefix(f, "racks/rack-a1:") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected rack-a1 to be reported as failed, got %v", sum.Failed)
	}
}

func TestExportKey(t *testing.T) {
	if got := ExportKey(hierarchy.LevelAll, ""); got != "all" {
		t.Errorf("ExportKey(all) = %q", got)
	}
	if got := ExportKey(hierarchy.LevelRacks, "row a/1"); got != "racks/row%20a%2F1" {
		t.Errorf("ExportKey(racks) = %q", got)
	}
}

func TestLoader_SiteViewByRack(t *testing.T) {
	ctx := context.Background()
	l := newTestLoader(fixtureStore())

	v, err := l.SiteView(ctx, "", "rack-a2")
	if err != nil {
		t.Fatalf("SiteView: %v", err)
	}
	if v.ID != "site-tokyo" {
		t.Errorf("expected the rack's site, got %q", v.ID)
	}
	if strings.Contains(v.Graph.Text, "Switch") {
		t.Errorf("rack filter leaked rack-a1 equipment:\n%s", v.Graph.Text)
	}

	if _, err := l.SiteView(ctx, "", ""); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
	if _, err := l.SiteView(ctx, "", "rack-zz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
