package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmax-ai/topolord/pkg/api"
	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/store/memory"
	"github.com/rmax-ai/topolord/pkg/topology"
)

func newDaemon(t *testing.T) (*httptest.Server, *cache.Memory) {
	t.Helper()
	st := memory.New(
		topology.Document{ID: "topo", Type: topology.DocumentSiteTopology, Payload: `
sites:
  - {id: S1, label: Tokyo}
`},
		topology.Document{ID: "eq", Type: topology.DocumentSiteEquipment, Payload: `
siteId: S1
racks:
  - id: R1
    equipment:
      - {id: SW1, type: switch}
`},
		topology.Document{ID: "rs", Type: topology.DocumentRackServers, Payload: `
rackId: R1
servers:
  - {id: SRV1, label: Web}
`},
		topology.Document{ID: "sd", Type: topology.DocumentServerDetails, Payload: `
serverId: SRV1
label: Web details
`},
	)
	c := cache.NewMemory(time.Minute)
	loader := navigator.NewLoader(st, c)
	srv := httptest.NewServer(api.NewServer(loader, loader.Cache(), "").Handler())
	t.Cleanup(srv.Close)
	return srv, c
}

func TestClient_Views(t *testing.T) {
	srv, _ := newDaemon(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	tests := []struct {
		level   hierarchy.Level
		id      string
		mapping string
	}{
		{hierarchy.LevelAll, "", "site_S1"},
		{hierarchy.LevelSites, "S1", "SW1"},
		{hierarchy.LevelRacks, "R1", "SRV1"},
		{hierarchy.LevelEquipment, "SW1", "R1"},
		{hierarchy.LevelServerDetails, "SRV1", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			v, err := c.View(ctx, tt.level, tt.id)
			if err != nil {
				t.Fatalf("View: %v", err)
			}
			if tt.mapping != "" {
				if _, ok := v.Graph.Mappings[tt.mapping]; !ok {
					t.Errorf("missing mapping %s", tt.mapping)
				}
			}
		})
	}

	if _, err := c.View(ctx, hierarchy.LevelRacks, "nope"); !errors.Is(err, navigator.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.View(ctx, "planet", "x"); !errors.Is(err, navigator.ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestClient_SessionOverHTTP(t *testing.T) {
	srv, _ := newDaemon(t)
	s := navigator.NewSession(NewClient(srv.URL))
	ctx := context.Background()

	if _, err := s.Open(ctx, hierarchy.LevelServerDetails, "SRV1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	st := s.State()
	if len(st.Breadcrumbs) != 3 || st.SelectedSiteID != "S1" || st.SelectedRackID != "R1" {
		t.Errorf("unexpected state %+v", st)
	}

	if _, err := s.Breadcrumb(ctx, 1); err != nil {
		t.Fatalf("Breadcrumb: %v", err)
	}
	if _, err := s.Click(ctx, "SRV1"); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if s.State().CurrentLevel != hierarchy.LevelServerDetails {
		t.Errorf("level = %s", s.State().CurrentLevel)
	}
}

func TestClient_ResolveNodeAndValidate(t *testing.T) {
	srv, _ := newDaemon(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	resp, err := c.ResolveNode(ctx, hierarchy.LevelAll, "", `"site_S1"`)
	if err != nil {
		t.Fatalf("ResolveNode: %v", err)
	}
	if resp.TargetLevel != hierarchy.LevelSites || resp.TargetID != "S1" {
		t.Errorf("unexpected %+v", resp)
	}

	issues, skipped, err := c.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(issues) != 0 || len(skipped) != 0 {
		t.Errorf("issues=%v skipped=%v", issues, skipped)
	}
}

func TestClient_InvalidateCache(t *testing.T) {
	srv, mc := newDaemon(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	if _, err := c.View(ctx, hierarchy.LevelAll, ""); err != nil {
		t.Fatal(err)
	}
	if mc.Len() == 0 {
		t.Fatal("expected cached entries")
	}
	if err := c.InvalidateCache(ctx, ""); err != nil {
		t.Fatalf("InvalidateCache: %v", err)
	}
	if mc.Len() != 0 {
		t.Errorf("cache not flushed")
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":"data_unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetry(ConstantBackoff(time.Millisecond), 2)
	status, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if status.Status != "ok" || calls.Load() != 3 {
		t.Errorf("status=%+v calls=%d", status, calls.Load())
	}

	calls.Store(-10)
	if _, err := c.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("Expected path /v1/health, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	status, err := NewClient(server.URL).Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("Ping() status = %s, want ok", status.Status)
	}
}
