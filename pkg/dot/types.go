// Package dot renders one hierarchy level as Graphviz DOT text together with
// the identity map that ties rendered nodes back to domain ids.
package dot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// NodeKind is the domain kind behind a rendered node.
type NodeKind string

const (
	KindSite      NodeKind = "site"
	KindRack      NodeKind = "rack"
	KindEquipment NodeKind = "equipment"
	KindServer    NodeKind = "server"
)

// NodeIDMapping joins a rendered node to its domain entity. Subtype carries
// the equipment type for equipment nodes.
type NodeIDMapping struct {
	NodeID  string   `json:"node_id"`
	Type    NodeKind `json:"type"`
	DataID  string   `json:"data_id"`
	Label   string   `json:"label"`
	Subtype string   `json:"subtype,omitempty"`
}

// Mappings is keyed by the unquoted node id.
type Mappings map[string]NodeIDMapping

// Result is the output of every generator. Mappings is never nil.
type Result struct {
	Text        string   `json:"dot"`
	Mappings    Mappings `json:"mappings"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

type generator struct {
	name string
	b    strings.Builder
	res  Result
}

func newGenerator(name string) *generator {
	g := &generator{
		name: name,
		res:  Result{Mappings: make(Mappings)},
	}
	g.b.WriteString("digraph G {\n")
	g.b.WriteString("  rankdir=TB;\n")
	g.b.WriteString("  node [shape=box, style=rounded];\n")
	g.b.WriteString("  edge [arrowhead=normal];\n")
	g.b.WriteString("  size=\"10,10\";\n")
	g.b.WriteString("  ratio=compress;\n\n")
	return g
}

func (g *generator) diag(msg string, fields log.Fields) {
	log.WithFields(fields).WithField("generator", g.name).Warn(msg)
	if len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for _, k := range sortedKeys(fields) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		msg = msg + " (" + strings.Join(parts, " ") + ")"
	}
	g.res.Diagnostics = append(g.res.Diagnostics, msg)
}

// register claims key in the identity map. It returns false when the key is
// already taken, in which case the caller must not emit the node again.
func (g *generator) register(key string, kind NodeKind, dataID, label string) (string, bool) {
	if key == "" {
		g.diag("skipping node without id", log.Fields{"type": kind, "label": label})
		return "", false
	}
	if _, taken := g.res.Mappings[key]; taken {
		g.diag("skipping duplicate node id", log.Fields{"id": key, "type": kind})
		return "", false
	}
	nodeID := EscapeNodeID(key)
	g.res.Mappings[key] = NodeIDMapping{NodeID: nodeID, Type: kind, DataID: dataID, Label: label}
	return nodeID, true
}

type attr struct {
	key, value string
}

func str(key, value string) attr { return attr{key, quote(value)} }
func raw(key, value string) attr { return attr{key, value} }

func joinAttrs(attrs []attr) string {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = a.key + "=" + a.value
	}
	return strings.Join(parts, ", ")
}

func (g *generator) node(indent, id string, attrs ...attr) {
	fmt.Fprintf(&g.b, "%s%s [%s];\n", indent, id, joinAttrs(attrs))
}

func (g *generator) edge(indent, from, to string, attrs ...attr) {
	if len(attrs) == 0 {
		fmt.Fprintf(&g.b, "%s%s -> %s;\n", indent, from, to)
		return
	}
	fmt.Fprintf(&g.b, "%s%s -> %s [%s];\n", indent, from, to, joinAttrs(attrs))
}

func (g *generator) line(s string) {
	g.b.WriteString(s)
	g.b.WriteByte('\n')
}

func (g *generator) finish() Result {
	g.b.WriteString("}\n")
	g.res.Text = g.b.String()
	return g.res
}

// recoverInto turns a panic inside a generator into the placeholder graph.
func recoverInto(name string, res *Result) {
	if r := recover(); r != nil {
		log.WithField("generator", name).Errorf("dot generation panicked: %v", r)
		*res = ErrorGraph(fmt.Sprintf("%s: %v", name, r))
	}
}

// ErrorGraph is the minimal graph emitted when a level cannot be rendered.
func ErrorGraph(message string) Result {
	var b strings.Builder
	b.WriteString("digraph G {\n")
	fmt.Fprintf(&b, "  error [label=%s, shape=box, style=filled, fillcolor=mistyrose, color=red];\n", quote("Unable to render: "+message))
	b.WriteString("}\n")
	return Result{
		Text:        b.String(),
		Mappings:    make(Mappings),
		Diagnostics: []string{message},
	}
}

func labelOr(label, id string) string {
	if strings.TrimSpace(label) != "" {
		return label
	}
	return id
}

func sortedKeys(fields log.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func itoa(n int) string { return strconv.Itoa(n) }
