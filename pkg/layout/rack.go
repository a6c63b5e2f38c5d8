package layout

import (
	"strings"

	"github.com/rmax-ai/topolord/pkg/topology"
)

var serverPalette = []string{"#2563eb", "#dc2626", "#16a34a", "#ea580c", "#9333ea", "#0891b2"}

// RackServers lays out one rack with its servers stacked by U-position.
// rack is optional; when present it supplies the unit capacity and the
// positions of servers whose own document omits them.
func RackServers(rs *topology.RackServers, rack *topology.Rack) Scene {
	scene := newScene()
	if rs == nil {
		return scene
	}

	capacity := topology.DefaultRackUnits
	mounted := make(map[string]*topology.UnitPosition)
	if rack != nil {
		capacity = rackUnits(*rack)
		for _, e := range rack.Equipment {
			if e.Position != nil {
				mounted[strings.TrimSpace(e.ID)] = e.Position
			}
		}
	}
	height := float64(capacity) * UnitHeight
	rackID := strings.TrimSpace(rs.RackID)

	scene.Nodes = append(scene.Nodes, Node{
		ID:       rackID,
		Kind:     KindRack,
		Label:    labelOr(rs.Label, rackID),
		Position: Vec3{Y: height / 2},
		Size:     Vec3{X: RackWidth, Y: height, Z: RackDepth},
		Color:    rackColor,
		RackID:   rackID,
	})

	positions := make(map[string]Vec3)
	var used []topology.UPosition
	for i, s := range rs.Servers {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		unit := s.Position
		if unit == nil || unit.Unit == "" {
			unit = mounted[id]
		}
		if unit == nil {
			continue
		}
		p, ok := topology.ParseUPosition(unit.Unit)
		if !ok {
			continue
		}
		used = append(used, p)
		cy, h := unitBox(p)
		pos := Vec3{Y: cy, Z: RackDepth * 0.15}
		positions[id] = pos
		scene.Nodes = append(scene.Nodes, Node{
			ID:       id,
			Kind:     KindServer,
			Label:    labelOr(s.Label, id),
			Position: pos,
			Size:     Vec3{X: RackWidth * 0.92, Y: h * 0.98, Z: RackDepth * 0.7},
			Color:    serverPalette[i%len(serverPalette)],
			RackID:   rackID,
		})
	}
	scene.Nodes = append(scene.Nodes, freeUnitNodes(rackID, Vec3{}, used, capacity)...)

	center := Vec3{Y: height / 2}
	for _, s := range rs.Servers {
		from := strings.TrimSpace(s.ID)
		for _, c := range s.Connections {
			to := c.To.ID()
			a, okA := positions[from]
			z, okB := positions[to]
			if to == "" || to == from {
				continue
			}
			if !okA {
				a = center
			}
			if !okB {
				z = center
			}
			scene.Links = append(scene.Links, lanes(from, to, a, z, 1, intraRackLift, LatencyColor(c.Latency), c.Bandwidth)...)
		}
	}

	scene.Camera = Camera{Position: Vec3{Y: height / 2, Z: 2}, Target: center}
	return scene
}
