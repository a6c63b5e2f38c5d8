// Package navigator turns hierarchy navigation steps into rendered views.
// A Loader fetches and resolves documents; a Session owns one user's
// breadcrumb state and discards results that a newer navigation overtook.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/dot"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/index"
	"github.com/rmax-ai/topolord/pkg/layout"
	"github.com/rmax-ai/topolord/pkg/store"
	"github.com/rmax-ai/topolord/pkg/telemetry"
	"github.com/rmax-ai/topolord/pkg/topology"
)

var (
	// ErrNotFound means no document backs the requested entity.
	ErrNotFound = errors.New("topology entity not found")
	// ErrInvalidLevel is returned for levels outside the hierarchy.
	ErrInvalidLevel = errors.New("invalid hierarchy level")
)

// View is everything a client needs to draw one hierarchy level.
type View struct {
	Level    hierarchy.Level         `json:"level"`
	ID       string                  `json:"id,omitempty"`
	Label    string                  `json:"label"`
	Graph    dot.Result              `json:"graph"`
	Scene    layout.Scene            `json:"scene"`
	Details  *topology.ServerDetails `json:"details,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
}

// ViewSource builds views and resolves ancestor trails. Loader implements
// it directly; the HTTP client implements it against a daemon.
type ViewSource interface {
	View(ctx context.Context, level hierarchy.Level, id string) (*View, error)
	Ancestors(ctx context.Context, level hierarchy.Level, id string) ([]hierarchy.Entry, error)
}

const (
	documentsKey     = "documents"
	fetchConcurrency = 8
)

func documentKey(id string) string { return "document:" + id }

// Loader reads documents through the lookup cache.
type Loader struct {
	docs  store.DocumentStore
	cache *cache.Loader
}

// NewLoader returns a Loader. A nil cache disables caching.
func NewLoader(docs store.DocumentStore, c cache.Cache) *Loader {
	return &Loader{docs: docs, cache: cache.NewLoader(c)}
}

// Cache returns the lookup cache. Invalidate through it so loads in
// flight are not stored afterwards.
func (l *Loader) Cache() cache.Cache {
	return l.cache
}

// Index builds the document index over the current collection.
func (l *Loader) Index(ctx context.Context) (*index.Index, error) {
	ctx, span := telemetry.StartSpan(ctx, "navigator.index", "", "")
	defer span.End()

	docs, err := cache.GetOrLoadJSON(ctx, l.cache, documentsKey, l.docs.ListAll)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return index.Build(docs), nil
}

func (l *Loader) document(ctx context.Context, id string) (*topology.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "navigator.document", "", id)
	defer span.End()

	doc, err := cache.GetOrLoadJSON(ctx, l.cache, documentKey(id), func(ctx context.Context) (*topology.Document, error) {
		return l.docs.GetByID(ctx, id)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// View builds the view for level. id is the selected entity at that level
// and is ignored for LevelAll.
func (l *Loader) View(ctx context.Context, level hierarchy.Level, id string) (*View, error) {
	start := time.Now()
	id = strings.TrimSpace(id)
	ctx, span := telemetry.StartSpan(ctx, "navigator.view", string(level), id)
	defer span.End()

	v, err := l.buildView(ctx, level, id)

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
	}
	TopolordViewsTotal.WithLabelValues(string(level), result).Inc()
	TopolordViewSeconds.WithLabelValues(string(level)).Observe(time.Since(start).Seconds())
	return v, err
}

func (l *Loader) buildView(ctx context.Context, level hierarchy.Level, id string) (*View, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	if level != hierarchy.LevelAll && id == "" {
		return nil, fmt.Errorf("%w: level %s needs an id", ErrInvalidLevel, level)
	}

	idx, err := l.Index(ctx)
	if err != nil {
		return nil, err
	}

	switch level {
	case hierarchy.LevelAll:
		return sitesView(idx), nil
	case hierarchy.LevelSites:
		return l.siteView(ctx, idx, id, "")
	case hierarchy.LevelRacks:
		return l.rackView(ctx, idx, id)
	case hierarchy.LevelEquipment:
		rackID, siteID, ok := idx.LocateEquipment(id)
		if !ok {
			return nil, fmt.Errorf("%w: equipment %s is not mounted in any rack", ErrNotFound, id)
		}
		v, err := l.siteView(ctx, idx, siteID, rackID)
		if err != nil {
			return nil, err
		}
		v.Level, v.ID = hierarchy.LevelEquipment, id
		return v, nil
	default:
		return l.serverView(ctx, idx, id)
	}
}

// SiteView renders the racks of a site, optionally limited to one rack.
// With only a rack id the site is resolved from the rack.
func (l *Loader) SiteView(ctx context.Context, siteID, rackID string) (*View, error) {
	start := time.Now()
	siteID, rackID = strings.TrimSpace(siteID), strings.TrimSpace(rackID)
	ctx, span := telemetry.StartSpan(ctx, "navigator.site_view", string(hierarchy.LevelSites), siteID)
	defer span.End()

	v, err := func() (*View, error) {
		idx, err := l.Index(ctx)
		if err != nil {
			return nil, err
		}
		if siteID == "" {
			if rackID == "" {
				return nil, fmt.Errorf("%w: site or rack id required", ErrInvalidLevel)
			}
			var ok bool
			if siteID, ok = idx.ResolveSiteForEquipment(rackID); !ok {
				return nil, fmt.Errorf("%w: rack %s", ErrNotFound, rackID)
			}
		}
		return l.siteView(ctx, idx, siteID, rackID)
	}()

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
	}
	TopolordViewsTotal.WithLabelValues(string(hierarchy.LevelSites), result).Inc()
	TopolordViewSeconds.WithLabelValues(string(hierarchy.LevelSites)).Observe(time.Since(start).Seconds())
	return v, err
}

func sitesView(idx *index.Index) *View {
	topologies := idx.Topologies()
	v := &View{
		Level: hierarchy.LevelAll,
		Label: "All sites",
		Graph: dot.Sites(topologies),
		Scene: layout.Sites(topologies),
	}
	for _, s := range idx.Skipped() {
		v.Warnings = append(v.Warnings, fmt.Sprintf("document %s skipped: %s", s.DocumentID, s.Reason))
	}
	v.Warnings = append(v.Warnings, v.Graph.Diagnostics...)
	return v
}

// siteView renders a site's racks. The site-equipment document is the
// primary fetch; each rack's servers document is fetched alongside it and
// a failure there only drops that rack's servers.
func (l *Loader) siteView(ctx context.Context, idx *index.Index, siteID, rackFilter string) (*View, error) {
	ids := idx.DocumentIDs(topology.DocumentSiteEquipment, siteID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no site-equipment document for site %s", ErrNotFound, siteID)
	}

	var rackIDs []string
	if indexed, ok := idx.SiteEquipmentForSite(siteID); ok {
		for _, r := range indexed.Racks {
			rackID := strings.TrimSpace(r.ID)
			if rackID != "" && (rackFilter == "" || rackID == rackFilter) {
				rackIDs = append(rackIDs, rackID)
			}
		}
	}

	var (
		eq       *topology.SiteEquipment
		mu       sync.Mutex
		servers  = make(map[string]*topology.RackServers)
		warnings []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	g.Go(func() error {
		doc, err := l.document(gctx, ids[0])
		if err != nil {
			return err
		}
		eq, err = topology.ParseSiteEquipment(doc.Payload)
		if err != nil {
			return fmt.Errorf("parse %s: %w", doc.ID, err)
		}
		return nil
	})
	for _, rackID := range rackIDs {
		rsIDs := idx.DocumentIDs(topology.DocumentRackServers, rackID)
		if len(rsIDs) == 0 {
			continue
		}
		g.Go(func() error {
			rs, err := l.rackServers(gctx, rsIDs[0])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				TopolordDegradedFetches.Inc()
				log.WithError(err).WithField("rack_id", rackID).Debug("navigator: rack servers unavailable")
				warnings = append(warnings, fmt.Sprintf("rack %s: servers unavailable", rackID))
				return nil
			}
			servers[rackID] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	label := eq.Label
	if site, ok := idx.Site(siteID); ok {
		label = labelOr(site.Label, siteID)
	}
	v := &View{
		Level:    hierarchy.LevelSites,
		ID:       siteID,
		Label:    labelOr(label, siteID),
		Graph:    dot.SiteEquipment(eq, dot.EquipmentOptions{RackServers: servers, FilterRackID: rackFilter}),
		Scene:    layout.SiteEquipment(eq, rackFilter),
		Warnings: warnings,
	}
	v.Warnings = append(v.Warnings, v.Graph.Diagnostics...)
	return v, nil
}

func (l *Loader) rackServers(ctx context.Context, docID string) (*topology.RackServers, error) {
	doc, err := l.document(ctx, docID)
	if err != nil {
		return nil, err
	}
	rs, err := topology.ParseRackServers(doc.Payload)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", doc.ID, err)
	}
	return rs, nil
}

// rackView renders a rack's servers, falling back to the server-typed
// equipment of the rack when it has no servers document.
func (l *Loader) rackView(ctx context.Context, idx *index.Index, rackID string) (*View, error) {
	var (
		rs       *topology.RackServers
		warnings []string
	)
	if ids := idx.DocumentIDs(topology.DocumentRackServers, rackID); len(ids) > 0 {
		var err error
		if rs, err = l.rackServers(ctx, ids[0]); err != nil {
			return nil, err
		}
	} else {
		fallback, ok := idx.ServersFromEquipment(rackID)
		if !ok {
			return nil, fmt.Errorf("%w: rack %s", ErrNotFound, rackID)
		}
		rs = fallback
		warnings = append(warnings, fmt.Sprintf("rack %s has no rack-servers document; showing mounted servers", rackID))
	}

	var rackPtr *topology.Rack
	label := rs.Label
	if rack, _, ok := idx.Rack(rackID); ok {
		rackPtr = &rack
		if label == "" {
			label = rack.Label
		}
	}

	v := &View{
		Level:    hierarchy.LevelRacks,
		ID:       rackID,
		Label:    labelOr(label, rackID),
		Graph:    dot.RackServers(rs),
		Scene:    layout.RackServers(rs, rackPtr),
		Warnings: warnings,
	}
	v.Warnings = append(v.Warnings, v.Graph.Diagnostics...)
	return v, nil
}

func (l *Loader) serverView(ctx context.Context, idx *index.Index, serverID string) (*View, error) {
	ids := idx.DocumentIDs(topology.DocumentServerDetails, serverID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no server-details document for server %s", ErrNotFound, serverID)
	}
	doc, err := l.document(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	sd, err := topology.ParseServerDetails(doc.Payload)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", doc.ID, err)
	}

	server, _ := idx.Server(serverID)
	v := &View{
		Level:   hierarchy.LevelServerDetails,
		ID:      serverID,
		Label:   labelOr(sd.Label, serverID),
		Graph:   dot.Result{Mappings: make(dot.Mappings)},
		Scene:   layout.ServerDetails(sd, server),
		Details: sd,
	}
	if _, ok := idx.ResolveRackForServer(serverID); !ok {
		v.Warnings = append(v.Warnings, fmt.Sprintf("server %s is not listed in any rack", serverID))
	}
	return v, nil
}

// Ancestors resolves the breadcrumb trail leading to id at level. Missing
// links leave gaps in the trail instead of failing, so orphaned entities
// still open.
func (l *Loader) Ancestors(ctx context.Context, level hierarchy.Level, id string) ([]hierarchy.Entry, error) {
	id = strings.TrimSpace(id)
	ctx, span := telemetry.StartSpan(ctx, "navigator.ancestors", string(level), id)
	defer span.End()

	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	if level == hierarchy.LevelAll || id == "" {
		return nil, nil
	}
	idx, err := l.Index(ctx)
	if err != nil {
		return nil, err
	}

	var out []hierarchy.Entry
	site := func(siteID string) {
		label := siteID
		if s, ok := idx.Site(siteID); ok {
			label = labelOr(s.Label, siteID)
		}
		out = append(out, hierarchy.Entry{Level: hierarchy.LevelSites, ID: siteID, Label: label})
	}
	rack := func(rackID string) {
		label := rackID
		r, siteID, ok := idx.Rack(rackID)
		if ok {
			label = labelOr(r.Label, rackID)
		}
		if siteID == "" {
			siteID, _ = idx.ResolveSiteForEquipment(rackID)
		}
		if siteID != "" {
			site(siteID)
		}
		out = append(out, hierarchy.Entry{Level: hierarchy.LevelRacks, ID: rackID, Label: label})
	}

	switch level {
	case hierarchy.LevelSites:
		site(id)
	case hierarchy.LevelRacks:
		rack(id)
	case hierarchy.LevelEquipment:
		label := id
		if rackID, _, ok := idx.LocateEquipment(id); ok {
			rack(rackID)
			if r, _, ok := idx.Rack(rackID); ok {
				for _, e := range r.Equipment {
					if strings.TrimSpace(e.ID) == id {
						label = labelOr(e.Label, id)
					}
				}
			}
		}
		out = append(out, hierarchy.Entry{Level: hierarchy.LevelEquipment, ID: id, Label: label})
	case hierarchy.LevelServerDetails:
		label := id
		if s, ok := idx.Server(id); ok {
			label = labelOr(s.Label, id)
		} else if sd, ok := idx.ServerDetailsForServer(id); ok {
			label = labelOr(sd.Label, id)
		}
		if rackID, ok := idx.ResolveRackForServer(id); ok {
			rack(rackID)
		} else {
			log.WithField("server_id", id).Debug("navigator: server has no rack, trail starts at the server")
		}
		out = append(out, hierarchy.Entry{Level: hierarchy.LevelServerDetails, ID: id, Label: label})
	}
	return out, nil
}

// Validate reports broken references and unparseable documents.
func (l *Loader) Validate(ctx context.Context) ([]index.Issue, []index.Skipped, error) {
	idx, err := l.Index(ctx)
	if err != nil {
		return nil, nil, err
	}
	return idx.ValidateReferences(), idx.Skipped(), nil
}

func labelOr(label, id string) string {
	if strings.TrimSpace(label) != "" {
		return label
	}
	return id
}
