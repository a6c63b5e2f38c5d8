package layout

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// Rack geometry in metres.
const (
	UnitHeight = 0.04445
	RackWidth  = 0.6
	RackDepth  = 1.0

	rackSpacingX = 1.0
	rackSpacingY = 3.0
	rackSpacingZ = 1.0

	rackLaneLift  = 0.3
	intraRackLift = 0.1

	rackColor      = "#e0e0e0"
	freeUnitsColor = "#90ee90"
)

var equipmentColors = map[topology.EquipmentType]string{
	topology.EquipmentServer:   "#2563eb",
	topology.EquipmentSwitch:   "#16a34a",
	topology.EquipmentRouter:   "#dc2626",
	topology.EquipmentFirewall: "#ea580c",
	topology.EquipmentStorage:  "#9333ea",
}

// EquipmentColor returns the 3D colour of a device type.
func EquipmentColor(t topology.EquipmentType) string {
	if c, ok := equipmentColors[topology.EquipmentType(strings.ToLower(string(t)))]; ok {
		return c
	}
	return "#6b7280"
}

var rackPrefix = regexp.MustCompile(`^rack_([^_]+)`)

// RackPosition converts a floor-grid location into the rack's base point:
// row letter along X, floor along Y (floor 1 when unset), position along Z.
func RackPosition(loc *topology.RackLocation) Vec3 {
	if loc == nil {
		return Vec3{Y: rackSpacingY}
	}
	row := 0
	if r := strings.TrimSpace(loc.Row); r != "" {
		if c := unicode.ToUpper(rune(r[0])); c >= 'A' && c <= 'Z' {
			row = int(c - 'A')
		}
	}
	floor := loc.Floor
	if floor == 0 {
		floor = 1
	}
	return Vec3{
		X: float64(row) * rackSpacingX,
		Y: float64(floor) * rackSpacingY,
		Z: float64(loc.Position) * rackSpacingZ,
	}
}

// unitBox returns the centre Y offset and height of p inside a rack.
func unitBox(p topology.UPosition) (centerY, height float64) {
	height = float64(p.Height) * UnitHeight
	return float64(p.Start-1)*UnitHeight + height/2, height
}

type rackPlacement struct {
	base   Vec3
	height float64
}

func (r rackPlacement) center() Vec3 {
	return Vec3{X: r.base.X, Y: r.base.Y + r.height/2, Z: r.base.Z}
}

// SiteEquipment lays out the racks of a site with their mounted devices and
// free unit ranges. When filterRackID is set only that rack is placed.
func SiteEquipment(eq *topology.SiteEquipment, filterRackID string) Scene {
	scene := newScene()
	if eq == nil {
		return scene
	}
	filter := strings.TrimSpace(filterRackID)

	racks := make(map[string]rackPlacement)
	deviceRack := make(map[string]string)
	devicePos := make(map[string]Vec3)
	var b bounds

	for _, rack := range eq.Racks {
		rackID := strings.TrimSpace(rack.ID)
		if rackID == "" || (filter != "" && rackID != filter) {
			continue
		}
		if _, dup := racks[rackID]; dup {
			continue
		}
		capacity := rackUnits(rack)
		place := rackPlacement{base: RackPosition(rack.Location), height: float64(capacity) * UnitHeight}
		racks[rackID] = place
		b.add(place.base)
		b.add(place.base.Add(Vec3{Y: place.height}))

		scene.Nodes = append(scene.Nodes, Node{
			ID:       rackID,
			Kind:     KindRack,
			Label:    labelOr(rack.Label, rackID),
			Position: place.center(),
			Size:     Vec3{X: RackWidth, Y: place.height, Z: RackDepth},
			Color:    rackColor,
			RackID:   rackID,
		})

		for _, e := range rack.Equipment {
			id := strings.TrimSpace(e.ID)
			if id == "" {
				continue
			}
			deviceRack[id] = rackID
			if e.Position == nil {
				continue
			}
			p, ok := topology.ParseUPosition(e.Position.Unit)
			if !ok {
				continue
			}
			cy, h := unitBox(p)
			pos := place.base.Add(Vec3{Y: cy, Z: RackDepth * 0.15})
			devicePos[id] = pos
			scene.Nodes = append(scene.Nodes, Node{
				ID:       id,
				Kind:     KindEquipment,
				Label:    labelOr(e.Label, id),
				Position: pos,
				Size:     Vec3{X: RackWidth * 0.92, Y: h * 0.98, Z: RackDepth * 0.7},
				Color:    EquipmentColor(e.Type),
				RackID:   rackID,
			})
		}

		scene.Nodes = append(scene.Nodes, freeUnitNodes(rackID, place.base, topology.RackPositions(rack), capacity)...)
	}

	rackOf := func(device string) (string, bool) {
		if r, ok := deviceRack[device]; ok {
			return r, true
		}
		if m := rackPrefix.FindStringSubmatch(device); m != nil {
			guess := "rack_" + m[1]
			if _, ok := racks[guess]; ok {
				return guess, true
			}
		}
		return "", false
	}
	endpoint := func(device, rackID string) Vec3 {
		if p, ok := devicePos[device]; ok {
			return p
		}
		return racks[rackID].center()
	}

	var interRack []topology.Connection
	for _, c := range eq.Connections {
		from, to := c.From.ID(), c.To.ID()
		fr, okF := rackOf(from)
		tr, okT := rackOf(to)
		if !okF || !okT {
			continue
		}
		if fr != tr {
			rewritten := c
			rewritten.From = topology.Endpoint{Device: fr}
			rewritten.To = topology.Endpoint{Device: tr}
			interRack = append(interRack, rewritten)
			continue
		}
		scene.Links = append(scene.Links, lanes(from, to, endpoint(from, fr), endpoint(to, tr), 1, intraRackLift, LatencyColor(c.Latency), c.Bandwidth)...)
	}
	for _, g := range groupConnections(interRack) {
		first := g.conns[0]
		n := LaneCount(len(g.conns), first.Bandwidth)
		scene.Links = append(scene.Links, lanes(g.from, g.to, racks[g.from].center(), racks[g.to].center(), n, rackLaneLift, LatencyColor(first.Latency), first.Bandwidth)...)
	}

	if b.set {
		d := b.maxExtent(Vec3{X: RackWidth, Z: RackDepth}) * 1.5
		scene.Camera = frame(b, d, Vec3{X: 0.7, Y: 0.5, Z: 0.7})
	}
	return scene
}

func freeUnitNodes(rackID string, base Vec3, used []topology.UPosition, capacity int) []Node {
	var out []Node
	for _, free := range topology.FreeRanges(used, capacity) {
		cy, h := unitBox(free)
		out = append(out, Node{
			ID:       rackID + "/free/" + itoa(free.Start),
			Kind:     KindFreeUnits,
			Label:    itoa(free.Height) + "U free",
			Position: base.Add(Vec3{Y: cy, Z: RackDepth * 0.1}),
			Size:     Vec3{X: RackWidth * 0.9, Y: h, Z: RackDepth * 0.3},
			Color:    freeUnitsColor,
			RackID:   rackID,
		})
	}
	return out
}
