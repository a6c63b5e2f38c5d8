package dot

import (
	"strconv"
	"strings"
	"testing"

	"github.com/rmax-ai/topolord/pkg/topology"
)

func ep(id string) topology.Endpoint { return topology.Endpoint{Device: id} }

// unescapedQuotes counts the double quotes on a line that are not preceded
// by a backslash escape.
func unescapedQuotes(line string) int {
	n := 0
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			n++
		}
	}
	return n
}

func assertBalanced(t *testing.T, text string) {
	t.Helper()
	for i, line := range strings.Split(text, "\n") {
		if unescapedQuotes(line)%2 != 0 {
			t.Fatalf("line %d has an unterminated string: %q", i+1, line)
		}
	}
	if !strings.HasPrefix(text, "digraph G {") || !strings.HasSuffix(text, "}\n") {
		t.Fatalf("not a complete digraph:\n%s", text)
	}
}

func TestEscapeNodeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"site_tokyo", "site_tokyo"},
		{"_x9", "_x9"},
		{"rack-a1", `"rack-a1"`},
		{"9lives", `"9lives"`},
		{`a"b c`, `"a\"b c"`},
		{`srv\`, `"srv\\"`},
		{`c:\racks\n1`, `"c:\\racks\\n1"`},
		{"two\nlines", `"two\nlines"`},
	}
	for _, tt := range tests {
		got := EscapeNodeID(tt.in)
		if got != tt.want {
			t.Errorf("EscapeNodeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if back := UnquoteNodeID(got); back != tt.in {
			t.Errorf("UnquoteNodeID(%q) = %q, want %q", got, back, tt.in)
		}
	}
	if got := UnquoteNodeID("'srv-1'"); got != "srv-1" {
		t.Errorf("single quotes not stripped: %q", got)
	}
}

func TestUnquoteNodeID_KeepsUnknownEscapes(t *testing.T) {
	if got := UnquoteNodeID(`"a\tb\"`); got != `a\tb\` {
		t.Errorf("UnquoteNodeID = %q", got)
	}
}

func TestSites_TrailingBackslashID(t *testing.T) {
	res := Sites([]*topology.SiteTopology{{
		Sites: []topology.Site{{ID: `srv\`}, {ID: "other"}},
		Connections: []topology.Connection{{From: ep(`srv\`), To: ep("other")}},
	}})
	assertBalanced(t, res.Text)

	m, ok := res.Mappings[`site_srv\`]
	if !ok {
		t.Fatalf("missing mapping: %+v", res.Mappings)
	}
	if m.NodeID != `"site_srv\\"` {
		t.Errorf("NodeID = %s", m.NodeID)
	}
	if !strings.Contains(res.Text, `"site_srv\\" -> site_other`) {
		t.Errorf("edge not emitted with escaped id:\n%s", res.Text)
	}
	got, ok := ResolveNodeID(m.NodeID, res.Mappings)
	if !ok || got.DataID != `srv\` {
		t.Errorf("ResolveNodeID(%s) = %+v, %v", m.NodeID, got, ok)
	}
}

// dotLabels returns the decoded value of every label="..." attribute in
// text, in order of appearance.
func dotLabels(t *testing.T, text string) []string {
	t.Helper()
	var out []string
	for {
		i := strings.Index(text, `label="`)
		if i < 0 {
			return out
		}
		text = text[i+len(`label="`):]
		var b strings.Builder
		closed := false
	scan:
		for j := 0; j < len(text); j++ {
			switch c := text[j]; c {
			case '"':
				text = text[j+1:]
				closed = true
				break scan
			case '\\':
				if j+1 == len(text) {
					t.Fatalf("dangling escape at end of text")
				}
				j++
				switch text[j] {
				case '"', '\\':
					b.WriteByte(text[j])
				case 'n':
					b.WriteByte('\n')
				default:
					t.Fatalf("unexpected escape \\%c", text[j])
				}
			case '\n':
				t.Fatalf("raw newline inside label %q", b.String())
			default:
				b.WriteByte(c)
			}
		}
		if !closed {
			t.Fatalf("unterminated label %q", b.String())
		}
		out = append(out, b.String())
	}
}

func TestSites_LabelsDecodeToOriginal(t *testing.T) {
	labels := []string{
		`He said "hi"`,
		`C:\racks\a`,
		"first\r\nsecond\nthird",
		`ends with \`,
		`\"`,
	}
	var sites []topology.Site
	for i, l := range labels {
		sites = append(sites, topology.Site{ID: "s" + strconv.Itoa(i), Label: l})
	}
	res := Sites([]*topology.SiteTopology{{Sites: sites}})
	assertBalanced(t, res.Text)

	got := dotLabels(t, res.Text)
	if len(got) != len(labels) {
		t.Fatalf("decoded %d labels, want %d:\n%s", len(got), len(labels), res.Text)
	}
	for i, want := range labels {
		// carriage returns are dropped on output
		want = strings.ReplaceAll(want, "\r", "")
		if got[i] != want {
			t.Errorf("label %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestEscapeLabel(t *testing.T) {
	got := EscapeLabel("a\"b\\c\nd\r")
	want := `a\"b\\c\nd`
	if got != want {
		t.Errorf("EscapeLabel = %q, want %q", got, want)
	}
}

func twoSites() []*topology.SiteTopology {
	return []*topology.SiteTopology{{
		ID: "topo",
		Sites: []topology.Site{
			{ID: "tokyo", Label: "Tokyo DC", Location: &topology.SiteLocation{Address: "Chiyoda"}, Capacity: &topology.SiteCapacity{Racks: 40, Power: 500}},
			{ID: "osaka", Label: "Osaka DC"},
		},
		Connections: []topology.Connection{
			{From: ep("tokyo"), To: ep("osaka"), Type: "fiber", Bandwidth: "10Gbps", Provider: "NTT"},
			{From: ep("osaka"), To: ep("tokyo"), Type: "vpn"},
			{From: ep("tokyo"), To: ep("nagoya"), Type: "fiber"},
		},
	}}
}

func TestSites(t *testing.T) {
	res := Sites(twoSites())
	assertBalanced(t, res.Text)

	if len(res.Mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %+v", res.Mappings)
	}
	m := res.Mappings["site_tokyo"]
	if m.NodeID != "site_tokyo" || m.Type != KindSite || m.DataID != "tokyo" || m.Label != "Tokyo DC" {
		t.Errorf("unexpected mapping %+v", m)
	}
	for _, want := range []string{
		`site_tokyo [label="Tokyo DC\nChiyoda\n[40 racks, 500 kW]", shape=box3d, style="rounded,filled", fillcolor=lightblue, color=blue, penwidth=2];`,
		`site_tokyo -> site_osaka [label="fiber\n10Gbps", color=blue, style=dashed];`,
		`site_osaka -> site_tokyo [label="vpn", color=gray, style=dashed];`,
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("missing %q in:\n%s", want, res.Text)
		}
	}
	if strings.Contains(res.Text, "nagoya") {
		t.Errorf("edge to unknown site was emitted:\n%s", res.Text)
	}
	if len(res.Diagnostics) != 1 || !strings.Contains(res.Diagnostics[0], "to=nagoya") {
		t.Errorf("unexpected diagnostics %v", res.Diagnostics)
	}
}

func TestSites_HostileLabels(t *testing.T) {
	res := Sites([]*topology.SiteTopology{{
		Sites: []topology.Site{
			{ID: `we"ird`, Label: "He said \"hi\"\r\nand left\\"},
			{ID: "plain", Label: "}; digraph X {"},
		},
		Connections: []topology.Connection{{From: ep(`we"ird`), To: ep("plain"), Type: `"q"`}},
	}})
	assertBalanced(t, res.Text)

	if _, ok := res.Mappings[`site_we"ird`]; !ok {
		t.Fatalf("missing mapping for quoted id: %+v", res.Mappings)
	}
	if !strings.Contains(res.Text, `"site_we\"ird" [label="He said \"hi\"\nand left\\"`) {
		t.Errorf("label not escaped:\n%s", res.Text)
	}
}

func TestSites_DuplicateAndEmptyIDs(t *testing.T) {
	res := Sites([]*topology.SiteTopology{
		{Sites: []topology.Site{{ID: "a"}, {ID: ""}}},
		{Sites: []topology.Site{{ID: "a", Label: "again"}}},
	})
	assertBalanced(t, res.Text)
	if len(res.Mappings) != 1 || res.Mappings["site_a"].Label != "a" {
		t.Errorf("expected first site a to win: %+v", res.Mappings)
	}
	if len(res.Diagnostics) != 2 {
		t.Errorf("expected 2 diagnostics, got %v", res.Diagnostics)
	}
}

func TestSites_Empty(t *testing.T) {
	res := Sites(nil)
	assertBalanced(t, res.Text)
	if res.Mappings == nil || len(res.Mappings) != 0 {
		t.Errorf("expected empty non-nil mappings, got %#v", res.Mappings)
	}
}

func siteEquipment() *topology.SiteEquipment {
	return &topology.SiteEquipment{
		ID:     "eq-tokyo",
		SiteID: "tokyo",
		Racks: []topology.Rack{
			{ID: "r1", Label: "Rack 1", Equipment: []topology.Equipment{
				{ID: "sw-1", Type: topology.EquipmentSwitch, Label: "Core switch", Model: "QFX"},
				{ID: "srv-1", Type: topology.EquipmentServer, Label: "Web 1"},
			}},
			{ID: "r2", Label: "Rack 2", Equipment: []topology.Equipment{
				{ID: "fw-1", Type: "Firewall", Label: "Edge"},
			}},
		},
		Connections: []topology.Connection{
			{From: ep("sw-1"), To: ep("fw-1"), Type: "fiber", Bandwidth: "40Gbps"},
			{From: ep("sw-1"), To: ep("ghost"), Type: "copper"},
		},
	}
}

func sideTable() map[string]*topology.RackServers {
	return map[string]*topology.RackServers{
		"r1": {RackID: "r1", Servers: []topology.Server{
			{ID: "srv-1", Label: "dup"},
			{ID: "srv-2", Label: "Web 2", Model: "R650", Specs: &topology.ServerSpecs{CPU: &topology.CPUSpec{Cores: 32}}},
		}},
	}
}

func TestSiteEquipment(t *testing.T) {
	res := SiteEquipment(siteEquipment(), EquipmentOptions{RackServers: sideTable()})
	assertBalanced(t, res.Text)

	if len(res.Mappings) != 6 {
		t.Fatalf("expected 6 mappings, got %d: %+v", len(res.Mappings), res.Mappings)
	}
	if m := res.Mappings["srv-1"]; m.Type != KindEquipment || m.Label != "Web 1" {
		t.Errorf("mounted server should keep its equipment mapping: %+v", m)
	}
	if m := res.Mappings["srv-2"]; m.Type != KindServer || m.NodeID != `"srv-2"` {
		t.Errorf("unexpected side-table mapping: %+v", m)
	}
	if m := res.Mappings["r1"]; m.Type != KindRack || m.NodeID != "r1" {
		t.Errorf("unexpected rack mapping: %+v", m)
	}

	for _, want := range []string{
		"subgraph cluster_r1 {",
		`label="Rack 1";`,
		`"sw-1" [label="Core switch\nQFX", shape=box3d, style=filled, fillcolor=lightcyan, color=cyan, penwidth=1.5];`,
		`"fw-1" [label="Edge", shape=box3d, style=filled, fillcolor=lightcoral, color=red, penwidth=1.5];`,
		`"srv-2" [label="Web 2\nR650\nCPU: 32 cores, RAM: N/A"`,
		`r1 -> "sw-1" [style=invis];`,
		`"srv-1" -> "srv-2" [style=invis];`,
		"{ rank=same; r1; r2; }",
		`"sw-1" -> "fw-1" [label="fiber\n40Gbps", color=orange, style=solid];`,
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("missing %q in:\n%s", want, res.Text)
		}
	}
	if strings.Contains(res.Text, "ghost") {
		t.Errorf("unresolved edge emitted:\n%s", res.Text)
	}
	if len(res.Diagnostics) != 1 {
		t.Errorf("expected one diagnostic, got %v", res.Diagnostics)
	}
}

func TestSiteEquipment_FilterRack(t *testing.T) {
	res := SiteEquipment(siteEquipment(), EquipmentOptions{FilterRackID: " r2 "})
	assertBalanced(t, res.Text)

	if len(res.Mappings) != 2 {
		t.Fatalf("expected rack r2 and fw-1 only, got %+v", res.Mappings)
	}
	if strings.Contains(res.Text, "rank=same") || strings.Contains(res.Text, "cluster_r1") {
		t.Errorf("filtered graph leaks other racks:\n%s", res.Text)
	}
}

func TestSiteEquipment_DuplicateRack(t *testing.T) {
	eq := &topology.SiteEquipment{Racks: []topology.Rack{{ID: "r1"}, {ID: "r1"}}}
	res := SiteEquipment(eq, EquipmentOptions{})
	assertBalanced(t, res.Text)
	if strings.Count(res.Text, "subgraph") != 1 {
		t.Errorf("duplicate rack rendered twice:\n%s", res.Text)
	}
	if len(res.Diagnostics) != 1 {
		t.Errorf("expected a duplicate diagnostic, got %v", res.Diagnostics)
	}
}

func TestNilInputsYieldErrorGraph(t *testing.T) {
	for name, res := range map[string]Result{
		"equipment": SiteEquipment(nil, EquipmentOptions{}),
		"rack":      RackServers(nil),
	} {
		assertBalanced(t, res.Text)
		if res.Mappings == nil || len(res.Mappings) != 0 {
			t.Errorf("%s: expected empty non-nil mappings", name)
		}
		if !strings.Contains(res.Text, "error [label=") {
			t.Errorf("%s: missing error node:\n%s", name, res.Text)
		}
	}
}

func TestRackServers(t *testing.T) {
	rs := &topology.RackServers{
		RackID: "r1",
		Label:  "Rack 1",
		Servers: []topology.Server{
			{
				ID:    "srv-1",
				Label: "Web 1",
				Specs: &topology.ServerSpecs{
					CPU:     &topology.CPUSpec{Cores: 16},
					Memory:  &topology.MemorySpec{Total: "128GB"},
					Storage: &topology.StorageSpec{Capacity: "4TB"},
				},
				Ports: []topology.Port{{ID: "eth0", Type: "ethernet", Speed: "10G", Role: "mgmt", IP: "10.0.0.1"}},
				Connections: []topology.Connection{
					{From: ep("srv-1"), To: ep("srv-2"), Type: "lacp"},
					{From: ep("srv-1"), To: ep("sw-9"), Type: "uplink"},
				},
			},
			{ID: "srv-2"},
		},
	}
	res := RackServers(rs)
	assertBalanced(t, res.Text)

	if len(res.Mappings) != 2 {
		t.Fatalf("ports must not be mapped: %+v", res.Mappings)
	}
	for _, want := range []string{
		`"srv-1" [label="Web 1\nCPU: 16 cores, RAM: 128GB\nStorage: 4TB"`,
		`"srv-2" [label="srv-2\nCPU: N/A, RAM: N/A\nStorage: N/A"`,
		`"port_srv-1_eth0" [label="eth0\nethernet 10G [mgmt]\n10.0.0.1", shape=tab, style=filled, fillcolor=lightgray, color=gray, penwidth=1];`,
		`"srv-1" -> "port_srv-1_eth0" [style=dashed, color=gray, arrowhead=none];`,
		`"srv-1" -> "srv-2" [style=invis];`,
		`"srv-1" -> "srv-2" [label="lacp", color=blue, style=solid];`,
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("missing %q in:\n%s", want, res.Text)
		}
	}
	if strings.Contains(res.Text, "sw-9") {
		t.Errorf("edge to a server outside the rack emitted:\n%s", res.Text)
	}
}

func TestRackServers_Empty(t *testing.T) {
	res := RackServers(&topology.RackServers{RackID: "r1"})
	assertBalanced(t, res.Text)
	if !strings.Contains(res.Text, "// no servers") {
		t.Errorf("expected empty-rack comment:\n%s", res.Text)
	}
}

func TestIdentityMapRoundTrip(t *testing.T) {
	results := []Result{
		Sites(twoSites()),
		SiteEquipment(siteEquipment(), EquipmentOptions{RackServers: sideTable()}),
	}
	for _, res := range results {
		for key, m := range res.Mappings {
			if UnquoteNodeID(m.NodeID) != key {
				t.Errorf("key %q does not round-trip through node id %q", key, m.NodeID)
			}
			got, ok := ResolveNodeID(m.NodeID, res.Mappings)
			if !ok || got != m {
				t.Errorf("ResolveNodeID(%q) = %+v, %v", m.NodeID, got, ok)
			}
		}
	}
}

func TestResolveNodeID(t *testing.T) {
	m := SiteEquipment(siteEquipment(), EquipmentOptions{RackServers: sideTable()}).Mappings

	tests := []struct {
		title  string
		wantID string
		wantOK bool
	}{
		{" r1 ", "r1", true},
		{`"sw-1"`, "sw-1", true},
		{"srv", "srv-1", true},
		{"node fw-1 title", "fw-1", true},
		{"zzz", "", false},
		{`""`, "", false},
		{"''", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveNodeID(tt.title, m)
		if ok != tt.wantOK || got.DataID != tt.wantID {
			t.Errorf("ResolveNodeID(%q) = %q, %v; want %q, %v", tt.title, got.DataID, ok, tt.wantID, tt.wantOK)
		}
	}
}
