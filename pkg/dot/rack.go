package dot

import (
	"strings"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// PortKey is the identity key of a port node. Port nodes are not clickable
// and never enter the identity map.
func PortKey(serverID, portID string) string {
	return "port_" + serverID + "_" + portID
}

// RackServers renders the servers of one rack with their ports.
func RackServers(rs *topology.RackServers) (res Result) {
	defer recoverInto("rack-servers", &res)

	if rs == nil {
		return ErrorGraph("no rack servers document")
	}

	g := newGenerator("rack-servers")
	rackID := strings.TrimSpace(rs.RackID)
	rackLabel := labelOr(rs.Label, rackID)

	g.line("  subgraph " + EscapeNodeID("cluster_"+rackID) + " {")
	g.line("    label=" + quote(rackLabel) + ";")
	g.line("    style=rounded;")

	if len(rs.Servers) == 0 {
		g.line("    // no servers")
	}

	var servers []string
	members := make(map[string]bool)
	for _, s := range rs.Servers {
		id := strings.TrimSpace(s.ID)
		label := labelOr(s.Label, id)
		nodeID, ok := g.register(id, KindServer, id, label)
		if !ok {
			continue
		}
		members[id] = true
		servers = append(servers, nodeID)
		g.node("    ", nodeID,
			str("label", serverLabel(s, label, true)),
			raw("shape", "box"),
			raw("style", "filled"),
			raw("fillcolor", "lightyellow"),
			raw("color", "orange"),
		)

		for _, p := range s.Ports {
			portID := strings.TrimSpace(p.ID)
			if portID == "" {
				continue
			}
			portNode := EscapeNodeID(PortKey(id, portID))
			g.node("    ", portNode,
				str("label", portLabel(p, portID)),
				raw("shape", "tab"),
				raw("style", "filled"),
				raw("fillcolor", "lightgray"),
				raw("color", "gray"),
				raw("penwidth", "1"),
			)
			g.edge("    ", nodeID, portNode, raw("style", "dashed"), raw("color", "gray"), raw("arrowhead", "none"))
		}
	}

	for i := 1; i < len(servers); i++ {
		g.edge("    ", servers[i-1], servers[i], raw("style", "invis"))
	}
	g.line("  }")
	g.line("")

	for _, s := range rs.Servers {
		from := strings.TrimSpace(s.ID)
		for _, c := range s.Connections {
			to := c.To.ID()
			if to == from || !members[to] || !members[from] {
				continue
			}
			var attrs []attr
			if c.Type != "" {
				attrs = append(attrs, str("label", c.Type))
			}
			attrs = append(attrs, raw("color", "blue"), raw("style", "solid"))
			g.edge("  ", EscapeNodeID(from), EscapeNodeID(to), attrs...)
		}
	}

	return g.finish()
}

func portLabel(p topology.Port, id string) string {
	out := labelOr(p.Label, id)
	var info []string
	for _, v := range []string{p.Type, p.Speed} {
		if v != "" {
			info = append(info, v)
		}
	}
	if p.Role != "" {
		info = append(info, "["+p.Role+"]")
	}
	if len(info) > 0 {
		out += "\n" + strings.Join(info, " ")
	}
	if p.IP != "" {
		out += "\n" + p.IP
	}
	return out
}
