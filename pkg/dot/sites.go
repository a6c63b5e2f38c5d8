package dot

import (
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// SiteKey is the identity map key of a site node. Sites are prefixed so
// they cannot collide with unrelated ids in other documents.
func SiteKey(siteID string) string {
	return "site_" + siteID
}

// Sites renders every site of every topology document, plus the
// connections between them. Connections naming an unknown site are skipped.
func Sites(topologies []*topology.SiteTopology) (res Result) {
	defer recoverInto("sites", &res)

	g := newGenerator("sites")
	known := make(map[string]bool)
	var conns []topology.Connection

	for _, t := range topologies {
		if t == nil {
			continue
		}
		for _, site := range t.Sites {
			id := strings.TrimSpace(site.ID)
			label := labelOr(site.Label, id)
			if id == "" {
				g.diag("skipping node without id", log.Fields{"type": KindSite, "label": label})
				continue
			}
			nodeID, ok := g.register(SiteKey(id), KindSite, id, label)
			if !ok {
				continue
			}
			known[id] = true
			g.node("  ", nodeID,
				str("label", siteLabel(site, label)),
				raw("shape", "box3d"),
				str("style", "rounded,filled"),
				raw("fillcolor", "lightblue"),
				raw("color", "blue"),
				raw("penwidth", "2"),
			)
		}
		conns = append(conns, t.Connections...)
	}

	g.line("")

	for _, c := range conns {
		from, to := c.From.ID(), c.To.ID()
		if !known[from] || !known[to] {
			g.diag("skipping connection to unknown site", log.Fields{"from": from, "to": to})
			continue
		}

		var attrs []attr
		var label []string
		if c.Type != "" {
			label = append(label, c.Type)
		}
		if c.Bandwidth != "" {
			label = append(label, c.Bandwidth)
		}
		if len(label) > 0 {
			attrs = append(attrs, str("label", strings.Join(label, "\n")))
		}
		if c.Provider != "" {
			attrs = append(attrs, raw("color", "blue"))
		} else {
			attrs = append(attrs, raw("color", "gray"))
		}
		attrs = append(attrs, raw("style", "dashed"))

		g.edge("  ", EscapeNodeID(SiteKey(from)), EscapeNodeID(SiteKey(to)), attrs...)
	}

	return g.finish()
}

func siteLabel(site topology.Site, label string) string {
	if site.Location != nil && site.Location.Address != "" {
		label += "\n" + site.Location.Address
	}
	if site.Capacity != nil {
		var info []string
		if site.Capacity.Racks > 0 {
			info = append(info, itoa(site.Capacity.Racks)+" racks")
		}
		if site.Capacity.Power > 0 {
			info = append(info, strconv.FormatFloat(site.Capacity.Power, 'f', -1, 64)+" kW")
		}
		if len(info) > 0 {
			label += "\n[" + strings.Join(info, ", ") + "]"
		}
	}
	return label
}
