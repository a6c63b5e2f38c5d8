// Package layout computes 3D scene geometry for each hierarchy level.
// All functions are pure: they never fail and clamp or default bad input.
//
// Units are metres inside a site and kilometres between geo-located sites.
package layout

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// Vec3 is a point or direction in scene space. Y is up.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v.X * f, v.Y * f, v.Z * f}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns v scaled to unit length, or the zero vector.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return Vec3{}
	}
	return v.Scale(1 / n)
}

// NodeKind tags scene nodes for picking.
type NodeKind string

const (
	KindSite      NodeKind = "site"
	KindRack      NodeKind = "rack"
	KindEquipment NodeKind = "equipment"
	KindServer    NodeKind = "server"
	KindFreeUnits NodeKind = "free-units"
	KindSlot      NodeKind = "slot"
	KindPort      NodeKind = "port"
)

// Node is one box in the scene. Position is the box centre.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Label    string   `json:"label"`
	Position Vec3     `json:"position"`
	Size     Vec3     `json:"size"`
	Color    string   `json:"color"`
	RackID   string   `json:"rack_id,omitempty"`
}

// Link is one drawn lane: a three-point arc through Points[1].
type Link struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Lane   int    `json:"lane"`
	Points []Vec3 `json:"points"`
	Color  string `json:"color"`
	Label  string `json:"label,omitempty"`
}

// Camera frames the scene.
type Camera struct {
	Position Vec3 `json:"position"`
	Target   Vec3 `json:"target"`
}

// Scene is the layout of one hierarchy level.
type Scene struct {
	Nodes      []Node `json:"nodes"`
	Links      []Link `json:"links"`
	Camera     Camera `json:"camera"`
	Geographic bool   `json:"geographic,omitempty"`
}

func newScene() Scene {
	return Scene{Nodes: []Node{}, Links: []Link{}}
}

const (
	LatencyLow    = "#10b981"
	LatencyMedium = "#f59e0b"
	LatencyHigh   = "#ef4444"
)

var (
	bandwidthRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(Gbps|Mbps|Kbps)`)
	latencyRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ms|s)`)
)

// ParseBandwidth returns the bandwidth in Gbps. Unparseable or empty input
// counts as 1 Gbps.
func ParseBandwidth(s string) float64 {
	m := bandwidthRe.FindStringSubmatch(s)
	if m == nil {
		return 1
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 1
	}
	switch strings.ToLower(m[2]) {
	case "mbps":
		return v / 1e3
	case "kbps":
		return v / 1e6
	}
	return v
}

// ParseLatency returns the latency in milliseconds, 0 when unknown.
func ParseLatency(s string) float64 {
	m := latencyRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if strings.EqualFold(m[2], "s") {
		return v * 1000
	}
	return v
}

// LatencyColor maps a latency string to the link colour.
func LatencyColor(latency string) string {
	ms := ParseLatency(latency)
	switch {
	case ms > 100:
		return LatencyHigh
	case ms > 50:
		return LatencyMedium
	}
	return LatencyLow
}

// LaneCount is the number of parallel lanes drawn for a group of
// connections: the group size or one lane per 10 Gbps, whichever is larger,
// clamped to 1..10.
func LaneCount(groupSize int, bandwidth string) int {
	byBandwidth := math.Ceil(ParseBandwidth(bandwidth) / 10)
	if math.IsNaN(byBandwidth) || byBandwidth > 10 {
		byBandwidth = 10
	}
	return clampInt(max(groupSize, int(byBandwidth)), 1, 10)
}

const laneSpacing = 0.1

// maxRackUnits bounds the unit capacity drawn for a rack. Declared
// capacities above it are drawn at this height.
const maxRackUnits = 100

func rackUnits(r topology.Rack) int {
	return clampInt(r.Units(), 1, maxRackUnits)
}

// lanes draws n arcs from a to b, offset along the horizontal perpendicular
// and centred on the a-b line. Each arc peaks lift above the higher end,
// stepping up 0.05 per lane.
func lanes(from, to string, a, b Vec3, n int, lift float64, color, label string) []Link {
	dir := b.Sub(a).Normalize()
	perp := Vec3{X: -dir.Z, Z: dir.X}.Normalize()
	start := -float64(n-1) * laneSpacing / 2

	out := make([]Link, 0, n)
	for i := 0; i < n; i++ {
		off := perp.Scale(start + float64(i)*laneSpacing)
		pa, pb := a.Add(off), b.Add(off)
		apex := Vec3{
			X: (pa.X + pb.X) / 2,
			Y: math.Max(pa.Y, pb.Y) + lift + float64(i)*0.05,
			Z: (pa.Z + pb.Z) / 2,
		}
		out = append(out, Link{
			From:   from,
			To:     to,
			Lane:   i,
			Points: []Vec3{pa, apex, pb},
			Color:  color,
			Label:  label,
		})
	}
	return out
}

type bounds struct {
	min, max Vec3
	set      bool
}

func (b *bounds) add(p Vec3) {
	if !b.set {
		b.min, b.max, b.set = p, p, true
		return
	}
	b.min = Vec3{math.Min(b.min.X, p.X), math.Min(b.min.Y, p.Y), math.Min(b.min.Z, p.Z)}
	b.max = Vec3{math.Max(b.max.X, p.X), math.Max(b.max.Y, p.Y), math.Max(b.max.Z, p.Z)}
}

func (b bounds) center() Vec3 {
	return b.min.Add(b.max).Scale(0.5)
}

// maxExtent is the largest box side, never below 5.
func (b bounds) maxExtent(pad Vec3) float64 {
	size := b.max.Sub(b.min).Add(pad)
	return math.Max(math.Max(size.X, size.Y), math.Max(size.Z, 5))
}

// frame places the camera at centre + offset*distance looking at the centre.
func frame(b bounds, distance float64, offset Vec3) Camera {
	c := b.center()
	return Camera{Position: c.Add(offset.Scale(distance)), Target: c}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func itoa(n int) string { return strconv.Itoa(n) }
