package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// RackCapacity is one row of the rack capacity report.
type RackCapacity struct {
	SiteID     string   `json:"site_id"`
	RackID     string   `json:"rack_id"`
	Label      string   `json:"label"`
	Units      int      `json:"units"`
	Used       int      `json:"used"`
	Free       int      `json:"free"`
	FreeRanges []string `json:"free_ranges"`
	Equipment  int      `json:"equipment"`
	Servers    int      `json:"servers"`
}

// RackCapacityReport lists unit usage per rack. Equipment and the servers of
// the rack's rack-servers document both occupy units; overlaps count once.
type RackCapacityReport struct {
	src Source
}

func NewRackCapacityReport(src Source) *RackCapacityReport {
	return &RackCapacityReport{src: src}
}

// Rows computes the report without rendering it.
func (r *RackCapacityReport) Rows(ctx context.Context) ([]RackCapacity, error) {
	idx, err := r.src.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	out := []RackCapacity{}
	seen := make(map[string]bool)
	for _, se := range idx.SiteEquipment() {
		for _, rack := range se.Racks {
			id := strings.TrimSpace(rack.ID)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true

			positions := topology.RackPositions(rack)
			servers := 0
			if rs, ok := idx.RackServersForRack(id); ok {
				servers = len(rs.Servers)
				for _, s := range rs.Servers {
					if s.Position == nil {
						continue
					}
					if p, ok := topology.ParseUPosition(s.Position.Unit); ok {
						positions = append(positions, p)
					}
				}
			}

			units := rack.Units()
			row := RackCapacity{
				SiteID:     strings.TrimSpace(se.SiteID),
				RackID:     id,
				Label:      rack.Label,
				Units:      units,
				Used:       topology.UsedUnits(positions, units),
				Free:       topology.FreeUnits(positions, units),
				FreeRanges: []string{},
				Equipment:  len(rack.Equipment),
				Servers:    servers,
			}
			for _, fr := range topology.FreeRanges(positions, units) {
				row.FreeRanges = append(row.FreeRanges, formatRange(fr))
			}
			out = append(out, row)
		}
	}
	return out, nil
}

func formatRange(p topology.UPosition) string {
	if p.Height <= 1 {
		return strconv.Itoa(p.Start)
	}
	return fmt.Sprintf("%d-%d", p.Start, p.End())
}

func (r *RackCapacityReport) Generate(ctx context.Context, format ReportFormat) (io.Reader, error) {
	rows, err := r.Rows(ctx)
	if err != nil {
		return nil, err
	}
	t := table{
		headers: []string{"site_id", "rack_id", "label", "units", "used", "free", "free_ranges", "equipment", "servers"},
		records: rows,
	}
	for _, row := range rows {
		t.rows = append(t.rows, []string{
			row.SiteID,
			row.RackID,
			row.Label,
			strconv.Itoa(row.Units),
			strconv.Itoa(row.Used),
			strconv.Itoa(row.Free),
			strings.Join(row.FreeRanges, ";"),
			strconv.Itoa(row.Equipment),
			strconv.Itoa(row.Servers),
		})
	}
	return t.render(format)
}
