package dot

import (
	"sort"
	"strings"
)

// ResolveNodeID maps a node title reported by a renderer back to its
// identity map entry. Titles are tried as given, then unquoted, then by
// substring in either direction. Substring matches pick the first key in
// sorted order.
func ResolveNodeID(rawTitle string, m Mappings) (NodeIDMapping, bool) {
	title := strings.TrimSpace(rawTitle)
	if title == "" || len(m) == 0 {
		return NodeIDMapping{}, false
	}
	if v, ok := m[title]; ok {
		return v, true
	}
	unquoted := UnquoteNodeID(title)
	if unquoted == "" {
		return NodeIDMapping{}, false
	}
	if v, ok := m[unquoted]; ok {
		return v, true
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			continue
		}
		if strings.Contains(unquoted, k) || strings.Contains(k, unquoted) {
			return m[k], true
		}
	}
	return NodeIDMapping{}, false
}
