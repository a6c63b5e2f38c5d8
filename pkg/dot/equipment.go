package dot

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// EquipmentOptions tunes the site-equipment graph.
type EquipmentOptions struct {
	// RackServers maps a rack id to its servers document. Servers listed
	// there but not mounted as equipment are drawn inside the rack cluster.
	RackServers map[string]*topology.RackServers
	// FilterRackID limits the graph to a single rack when set.
	FilterRackID string
}

type palette struct {
	fill, stroke string
}

var equipmentPalette = map[topology.EquipmentType]palette{
	topology.EquipmentServer:   {"lightyellow", "orange"},
	topology.EquipmentSwitch:   {"lightcyan", "cyan"},
	topology.EquipmentRouter:   {"lightpink", "pink"},
	topology.EquipmentFirewall: {"lightcoral", "red"},
	topology.EquipmentStorage:  {"lightsteelblue", "steelblue"},
}

func equipmentColors(t topology.EquipmentType) palette {
	if p, ok := equipmentPalette[topology.EquipmentType(strings.ToLower(string(t)))]; ok {
		return p
	}
	return palette{"lightgray", "gray"}
}

// SiteEquipment renders the racks of one site as clusters.
func SiteEquipment(eq *topology.SiteEquipment, opts EquipmentOptions) (res Result) {
	defer recoverInto("site-equipment", &res)

	if eq == nil {
		return ErrorGraph("no site equipment document")
	}

	g := newGenerator("site-equipment")
	filter := strings.TrimSpace(opts.FilterRackID)

	var rackNodes []string
	for _, rack := range eq.Racks {
		rackID := strings.TrimSpace(rack.ID)
		if filter != "" && rackID != filter {
			continue
		}
		rackLabel := labelOr(rack.Label, rackID)
		rackNode, ok := g.register(rackID, KindRack, rackID, rackLabel)
		if !ok {
			continue
		}
		rackNodes = append(rackNodes, rackNode)

		g.line("  subgraph " + EscapeNodeID("cluster_"+rackID) + " {")
		g.line("    label=" + quote(rackLabel) + ";")
		g.line("    style=rounded;")
		g.node("    ", rackNode,
			str("label", rackLabel),
			raw("shape", "box"),
			raw("style", "filled"),
			raw("fillcolor", "lightgray"),
			raw("color", "gray"),
			raw("penwidth", "2"),
			raw("fontcolor", "white"),
		)

		stack := []string{rackNode}
		for _, e := range rack.Equipment {
			id := strings.TrimSpace(e.ID)
			label := labelOr(e.Label, id)
			nodeID, ok := g.register(id, KindEquipment, id, label)
			if !ok {
				continue
			}
			m := g.res.Mappings[id]
			m.Subtype = strings.ToLower(string(e.Type))
			g.res.Mappings[id] = m
			c := equipmentColors(e.Type)
			text := label
			if e.Model != "" {
				text += "\n" + e.Model
			}
			g.node("    ", nodeID,
				str("label", text),
				raw("shape", "box3d"),
				raw("style", "filled"),
				raw("fillcolor", c.fill),
				raw("color", c.stroke),
				raw("penwidth", "1.5"),
			)
			stack = append(stack, nodeID)
		}

		if rs := opts.RackServers[rackID]; rs != nil {
			for _, s := range rs.Servers {
				id := strings.TrimSpace(s.ID)
				if id == "" {
					continue
				}
				if _, mounted := g.res.Mappings[id]; mounted {
					continue
				}
				label := labelOr(s.Label, id)
				nodeID, ok := g.register(id, KindServer, id, label)
				if !ok {
					continue
				}
				g.node("    ", nodeID,
					str("label", serverLabel(s, label, false)),
					raw("shape", "box"),
					raw("style", "filled"),
					raw("fillcolor", "lightyellow"),
					raw("color", "orange"),
				)
				stack = append(stack, nodeID)
			}
		}

		for i := 1; i < len(stack); i++ {
			g.edge("    ", stack[i-1], stack[i], raw("style", "invis"))
		}
		g.line("  }")
		g.line("")
	}

	if len(rackNodes) > 1 {
		g.line("  { rank=same; " + strings.Join(rackNodes, "; ") + "; }")
		g.line("")
	}

	for _, c := range eq.Connections {
		g.connection(c)
	}

	return g.finish()
}

// connection draws a device-to-device link when both ends are in the map.
func (g *generator) connection(c topology.Connection) {
	from, to := c.From.ID(), c.To.ID()
	fm, okFrom := g.res.Mappings[from]
	tm, okTo := g.res.Mappings[to]
	if !okFrom || !okTo {
		g.diag("skipping connection with unresolved endpoint", log.Fields{"from": from, "to": to})
		return
	}

	var parts []string
	for _, p := range []string{c.Type, c.Bandwidth, c.Network, c.Description} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	var attrs []attr
	if len(parts) > 0 {
		attrs = append(attrs, str("label", strings.Join(parts, "\n")))
	}
	if strings.EqualFold(c.Type, "fiber") {
		attrs = append(attrs, raw("color", "orange"))
	} else {
		attrs = append(attrs, raw("color", "blue"))
	}
	attrs = append(attrs, raw("style", "solid"))
	g.edge("  ", fm.NodeID, tm.NodeID, attrs...)
}

// serverLabel summarises a server's hardware. withStorage adds the storage
// capacity line used by the rack view.
func serverLabel(s topology.Server, label string, withStorage bool) string {
	cores, ram, storage := "N/A", "N/A", "N/A"
	if s.Specs != nil {
		if s.Specs.CPU != nil && s.Specs.CPU.Cores > 0 {
			cores = itoa(s.Specs.CPU.Cores) + " cores"
		}
		if s.Specs.Memory != nil && s.Specs.Memory.Total != "" {
			ram = s.Specs.Memory.Total
		}
		if s.Specs.Storage != nil && s.Specs.Storage.Capacity != "" {
			storage = s.Specs.Storage.Capacity
		}
	}
	out := label
	if s.Model != "" {
		out += "\n" + s.Model
	}
	out += "\nCPU: " + cores + ", RAM: " + ram
	if withStorage {
		out += "\nStorage: " + storage
	}
	return out
}
