package layout

import (
	"math"
	"strings"

	"github.com/rmax-ai/topolord/pkg/topology"
)

const (
	kmPerDegree    = 111.0
	gridSpacing    = 2.0
	defaultRacks   = 10
	geoSizeFactor  = 5.0
	siteLaneLift   = 0.5
	siteBuildColor = "#4b5563"
)

// Sites lays out every site of every topology document. When all sites
// carry coordinates they are projected around their centroid in km;
// otherwise they sit on a square grid.
func Sites(topologies []*topology.SiteTopology) Scene {
	scene := newScene()

	var sites []topology.Site
	var conns []topology.Connection
	seen := make(map[string]bool)
	for _, t := range topologies {
		if t == nil {
			continue
		}
		for _, s := range t.Sites {
			id := strings.TrimSpace(s.ID)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			sites = append(sites, s)
		}
		conns = append(conns, t.Connections...)
	}
	if len(sites) == 0 {
		return scene
	}

	geo := true
	var centerLat, centerLon float64
	for _, s := range sites {
		if !s.Location.HasCoordinates() {
			geo = false
			break
		}
		centerLat += *s.Location.Lat
		centerLon += *s.Location.Lon
	}
	if geo {
		centerLat /= float64(len(sites))
		centerLon /= float64(len(sites))
	}
	scene.Geographic = geo

	cols := int(math.Ceil(math.Sqrt(float64(len(sites)))))
	factor := 1.0
	if geo {
		factor = geoSizeFactor
	}

	positions := make(map[string]Vec3, len(sites))
	var b bounds
	for i, s := range sites {
		var p Vec3
		if geo {
			p = Project(*s.Location.Lat, *s.Location.Lon, centerLat, centerLon)
		} else {
			p = Vec3{X: float64(i%cols) * gridSpacing, Z: float64(i/cols) * gridSpacing}
		}
		id := strings.TrimSpace(s.ID)
		positions[id] = p
		b.add(p)

		racks := defaultRacks
		if s.Capacity != nil && s.Capacity.Racks > 0 {
			racks = s.Capacity.Racks
		}
		footprint := clamp(float64(racks)/50, 0.5, 2) * factor
		height := clamp(float64(racks)/80, 0.4, 1.5) * factor

		scene.Nodes = append(scene.Nodes, Node{
			ID:       id,
			Kind:     KindSite,
			Label:    labelOr(s.Label, id),
			Position: Vec3{X: p.X, Y: p.Y + height/2, Z: p.Z},
			Size:     Vec3{X: footprint, Y: height, Z: footprint},
			Color:    siteBuildColor,
		})
	}

	for _, g := range groupConnections(conns) {
		a, okA := positions[g.from]
		z, okB := positions[g.to]
		if !okA || !okB {
			continue
		}
		first := g.conns[0]
		n := LaneCount(len(g.conns), first.Bandwidth)
		scene.Links = append(scene.Links, lanes(g.from, g.to, a, z, n, siteLaneLift, LatencyColor(first.Latency), first.Bandwidth)...)
	}

	maxSize := b.maxExtent(Vec3{})
	distance := maxSize * 0.5
	if geo {
		distance = maxSize * 0.15
	}
	scene.Camera = frame(b, math.Max(distance, 1.5), Vec3{X: 0.4, Y: 0.2, Z: 0.4})
	return scene
}

// Project maps lat/lon to a local east/south plane in km around a centre.
func Project(lat, lon, centerLat, centerLon float64) Vec3 {
	return Vec3{
		X: (lon - centerLon) * kmPerDegree * math.Cos(centerLat*math.Pi/180),
		Z: -(lat - centerLat) * kmPerDegree,
	}
}

type connGroup struct {
	from, to string
	conns    []topology.Connection
}

// groupConnections buckets connections by directed endpoint pair, keeping
// first-seen order.
func groupConnections(conns []topology.Connection) []*connGroup {
	var out []*connGroup
	byKey := make(map[string]*connGroup)
	for _, c := range conns {
		from, to := c.From.ID(), c.To.ID()
		if from == "" || to == "" {
			continue
		}
		key := from + "\x00" + to
		g, ok := byKey[key]
		if !ok {
			g = &connGroup{from: from, to: to}
			byKey[key] = g
			out = append(out, g)
		}
		g.conns = append(g.conns, c)
	}
	return out
}

func labelOr(label, id string) string {
	if strings.TrimSpace(label) != "" {
		return label
	}
	return id
}
