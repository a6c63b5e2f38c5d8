package navigator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/blob"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
)

// ExportSummary reports what Export wrote. Views that could not be built
// are listed in Failed as "level/id: reason" and do not stop the export.
type ExportSummary struct {
	Written int      `json:"written"`
	Failed  []string `json:"failed,omitempty"`
}

type exportTarget struct {
	level hierarchy.Level
	id    string
}

// ExportKey is the blob key prefix of one view: "all" for the root level,
// otherwise "<level>/<escaped id>".
func ExportKey(level hierarchy.Level, id string) string {
	if level == hierarchy.LevelAll {
		return "all"
	}
	return string(level) + "/" + url.PathEscape(id)
}

// exportTargets lists every entity reachable in idx, deduplicated and sorted
// within each level.
func (l *Loader) exportTargets(ctx context.Context) ([]exportTarget, error) {
	idx, err := l.Index(ctx)
	if err != nil {
		return nil, err
	}

	sets := map[hierarchy.Level]map[string]bool{
		hierarchy.LevelSites:         {},
		hierarchy.LevelRacks:         {},
		hierarchy.LevelEquipment:     {},
		hierarchy.LevelServerDetails: {},
	}
	add := func(level hierarchy.Level, id string) {
		if id = strings.TrimSpace(id); id != "" {
			sets[level][id] = true
		}
	}
	for _, se := range idx.SiteEquipment() {
		add(hierarchy.LevelSites, se.SiteID)
		for _, r := range se.Racks {
			add(hierarchy.LevelRacks, r.ID)
			for _, e := range r.Equipment {
				add(hierarchy.LevelEquipment, e.ID)
			}
		}
	}
	for _, sd := range idx.ServerDetails() {
		add(hierarchy.LevelServerDetails, sd.ServerID)
	}

	out := []exportTarget{{level: hierarchy.LevelAll}}
	for _, level := range []hierarchy.Level{hierarchy.LevelSites, hierarchy.LevelRacks, hierarchy.LevelEquipment, hierarchy.LevelServerDetails} {
		ids := make([]string, 0, len(sets[level]))
		for id := range sets[level] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, exportTarget{level: level, id: id})
		}
	}
	return out, nil
}

// Export renders every level of the collection into dst as "<key>.dot" and
// "<key>.json" (the full view).
func (l *Loader) Export(ctx context.Context, dst blob.BlobStore) (ExportSummary, error) {
	var sum ExportSummary
	targets, err := l.exportTargets(ctx)
	if err != nil {
		return sum, err
	}

	for _, t := range targets {
		v, err := l.View(ctx, t.level, t.id)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sum, err
			}
			sum.Failed = append(sum.Failed, fmt.Sprintf("%s/%s: %v", t.level, t.id, err))
			continue
		}

		key := ExportKey(t.level, t.id)
		if err := dst.Put(ctx, key+".dot", strings.NewReader(v.Graph.Text)); err != nil {
			return sum, err
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return sum, fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		if err := dst.Put(ctx, key+".json", bytes.NewReader(data)); err != nil {
			return sum, err
		}
		sum.Written++
	}

	log.WithFields(log.Fields{"written": sum.Written, "failed": len(sum.Failed)}).Info("navigator: export complete")
	return sum, nil
}
