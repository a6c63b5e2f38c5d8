// Package index builds a per-session lookup structure over the flat document
// collection. Documents only know their immediate parent, so every ancestor
// question is answered here instead of by rescanning payloads.
package index

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// Skipped records a document that could not be typed or parsed.
type Skipped struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

type topologyEntry struct {
	docID string
	doc   *topology.SiteTopology
}

type equipmentEntry struct {
	docID string
	doc   *topology.SiteEquipment
}

type rackServersEntry struct {
	docID string
	doc   *topology.RackServers
}

type serverDetailsEntry struct {
	docID string
	doc   *topology.ServerDetails
}

// Index is an immutable view over one snapshot of the document collection.
type Index struct {
	topologies    []topologyEntry
	equipment     []equipmentEntry
	rackServers   []rackServersEntry
	serverDetails []serverDetailsEntry

	// (type, declared parent field) -> positions in the slices above
	equipmentBySite   map[string][]int
	rackServersByRack map[string][]int
	detailsByServer   map[string][]int

	rackToSite            map[string]string
	rackRefs              map[string]rackRef
	serverToRack          map[string]string
	equipmentServerToRack map[string]string
	equipmentToRack       map[string]string
	serverRefs            map[string]serverRef
	sites                 map[string]topology.Site

	skipped []Skipped
}

type rackRef struct {
	equipment int
	rack      int
}

type serverRef struct {
	rackServers int
	server      int
}

// Build parses every document once. Documents that fail to parse are
// recorded in Skipped and otherwise ignored.
func Build(docs []topology.Document) *Index {
	idx := &Index{
		equipmentBySite:       make(map[string][]int),
		rackServersByRack:     make(map[string][]int),
		detailsByServer:       make(map[string][]int),
		rackToSite:            make(map[string]string),
		rackRefs:              make(map[string]rackRef),
		serverToRack:          make(map[string]string),
		equipmentServerToRack: make(map[string]string),
		equipmentToRack:       make(map[string]string),
		serverRefs:            make(map[string]serverRef),
		sites:                 make(map[string]topology.Site),
	}

	for _, d := range docs {
		docType, ok := topology.DetectType(d.Payload, d.Type)
		if !ok {
			idx.skip(d.ID, "unknown document type")
			continue
		}
		switch docType {
		case topology.DocumentSiteTopology:
			v, err := topology.ParseSiteTopology(d.Payload)
			if err != nil {
				idx.skip(d.ID, err.Error())
				continue
			}
			idx.addTopology(d.ID, v)
		case topology.DocumentSiteEquipment:
			v, err := topology.ParseSiteEquipment(d.Payload)
			if err != nil {
				idx.skip(d.ID, err.Error())
				continue
			}
			idx.addEquipment(d.ID, v)
		case topology.DocumentRackServers:
			v, err := topology.ParseRackServers(d.Payload)
			if err != nil {
				idx.skip(d.ID, err.Error())
				continue
			}
			idx.addRackServers(d.ID, v)
		case topology.DocumentServerDetails:
			v, err := topology.ParseServerDetails(d.Payload)
			if err != nil {
				idx.skip(d.ID, err.Error())
				continue
			}
			idx.addServerDetails(d.ID, v)
		}
	}

	return idx
}

func (idx *Index) skip(docID, reason string) {
	log.WithFields(log.Fields{"document_id": docID, "reason": reason}).Warn("index: skipping document")
	idx.skipped = append(idx.skipped, Skipped{DocumentID: docID, Reason: reason})
}

func (idx *Index) addTopology(docID string, v *topology.SiteTopology) {
	idx.topologies = append(idx.topologies, topologyEntry{docID: docID, doc: v})
	for _, s := range v.Sites {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		if _, seen := idx.sites[id]; !seen {
			idx.sites[id] = s
		}
	}
}

func (idx *Index) addEquipment(docID string, v *topology.SiteEquipment) {
	pos := len(idx.equipment)
	idx.equipment = append(idx.equipment, equipmentEntry{docID: docID, doc: v})
	if v.SiteID != "" {
		idx.equipmentBySite[v.SiteID] = append(idx.equipmentBySite[v.SiteID], pos)
	}
	for ri, r := range v.Racks {
		rackID := strings.TrimSpace(r.ID)
		if rackID == "" {
			continue
		}
		if _, seen := idx.rackRefs[rackID]; !seen {
			idx.rackRefs[rackID] = rackRef{equipment: pos, rack: ri}
			if v.SiteID != "" {
				idx.rackToSite[rackID] = v.SiteID
			}
		}
		for _, eq := range r.Equipment {
			eqID := strings.TrimSpace(eq.ID)
			if eqID == "" {
				continue
			}
			if _, seen := idx.equipmentToRack[eqID]; !seen {
				idx.equipmentToRack[eqID] = rackID
			}
			if !eq.Type.Is(topology.EquipmentServer) {
				continue
			}
			if _, seen := idx.equipmentServerToRack[eqID]; !seen {
				idx.equipmentServerToRack[eqID] = rackID
			}
		}
	}
}

func (idx *Index) addRackServers(docID string, v *topology.RackServers) {
	pos := len(idx.rackServers)
	idx.rackServers = append(idx.rackServers, rackServersEntry{docID: docID, doc: v})
	if v.RackID == "" {
		return
	}
	idx.rackServersByRack[v.RackID] = append(idx.rackServersByRack[v.RackID], pos)
	for si, s := range v.Servers {
		serverID := strings.TrimSpace(s.ID)
		if _, seen := idx.serverToRack[serverID]; serverID != "" && !seen {
			idx.serverToRack[serverID] = v.RackID
			idx.serverRefs[serverID] = serverRef{rackServers: pos, server: si}
		}
	}
}

func (idx *Index) addServerDetails(docID string, v *topology.ServerDetails) {
	pos := len(idx.serverDetails)
	idx.serverDetails = append(idx.serverDetails, serverDetailsEntry{docID: docID, doc: v})
	if v.ServerID != "" {
		idx.detailsByServer[v.ServerID] = append(idx.detailsByServer[v.ServerID], pos)
	}
}

// Skipped lists documents ignored during Build.
func (idx *Index) Skipped() []Skipped {
	return idx.skipped
}

// Topologies returns every parsed site-topology document in input order.
func (idx *Index) Topologies() []*topology.SiteTopology {
	out := make([]*topology.SiteTopology, 0, len(idx.topologies))
	for _, e := range idx.topologies {
		out = append(out, e.doc)
	}
	return out
}

// SiteEquipment returns every parsed site-equipment document in input order.
func (idx *Index) SiteEquipment() []*topology.SiteEquipment {
	out := make([]*topology.SiteEquipment, 0, len(idx.equipment))
	for _, e := range idx.equipment {
		out = append(out, e.doc)
	}
	return out
}

// ServerDetails returns every parsed server-details document in input order.
func (idx *Index) ServerDetails() []*topology.ServerDetails {
	out := make([]*topology.ServerDetails, 0, len(idx.serverDetails))
	for _, e := range idx.serverDetails {
		out = append(out, e.doc)
	}
	return out
}

// Site returns the first site declared with the given id.
func (idx *Index) Site(siteID string) (topology.Site, bool) {
	s, ok := idx.sites[strings.TrimSpace(siteID)]
	return s, ok
}

// SiteEquipmentForSite returns the first site-equipment document whose
// siteId matches.
func (idx *Index) SiteEquipmentForSite(siteID string) (*topology.SiteEquipment, bool) {
	positions := idx.equipmentBySite[strings.TrimSpace(siteID)]
	if len(positions) == 0 {
		return nil, false
	}
	return idx.equipment[positions[0]].doc, true
}

// RackServersForRack returns the first rack-servers document whose rackId
// matches.
func (idx *Index) RackServersForRack(rackID string) (*topology.RackServers, bool) {
	positions := idx.rackServersByRack[strings.TrimSpace(rackID)]
	if len(positions) == 0 {
		return nil, false
	}
	return idx.rackServers[positions[0]].doc, true
}

// ServerDetailsForServer returns the first server-details document whose
// serverId matches.
func (idx *Index) ServerDetailsForServer(serverID string) (*topology.ServerDetails, bool) {
	positions := idx.detailsByServer[strings.TrimSpace(serverID)]
	if len(positions) == 0 {
		return nil, false
	}
	return idx.serverDetails[positions[0]].doc, true
}

// Rack returns the first rack declared with rackID, along with the site id
// of the document that declares it (which may be empty).
func (idx *Index) Rack(rackID string) (topology.Rack, string, bool) {
	ref, ok := idx.rackRefs[strings.TrimSpace(rackID)]
	if !ok {
		return topology.Rack{}, "", false
	}
	e := idx.equipment[ref.equipment]
	return e.doc.Racks[ref.rack], e.doc.SiteID, true
}

// ResolveSiteForEquipment finds the site owning rackID.
func (idx *Index) ResolveSiteForEquipment(rackID string) (string, bool) {
	siteID, ok := idx.rackToSite[strings.TrimSpace(rackID)]
	return siteID, ok
}

// ResolveRackForServer finds the rack owning serverID, preferring
// rack-servers documents and falling back to server-typed equipment.
func (idx *Index) ResolveRackForServer(serverID string) (string, bool) {
	id := strings.TrimSpace(serverID)
	if rackID, ok := idx.serverToRack[id]; ok {
		return rackID, true
	}
	rackID, ok := idx.equipmentServerToRack[id]
	return rackID, ok
}

// ServersFromEquipment builds a rack-servers view from the server-typed
// equipment of a rack, for racks that have no rack-servers document.
func (idx *Index) ServersFromEquipment(rackID string) (*topology.RackServers, bool) {
	rack, _, ok := idx.Rack(rackID)
	if !ok {
		return nil, false
	}
	rs := &topology.RackServers{RackID: strings.TrimSpace(rackID), Label: rack.Label}
	for _, eq := range rack.Equipment {
		if !eq.Type.Is(topology.EquipmentServer) {
			continue
		}
		rs.Servers = append(rs.Servers, topology.Server{
			ID:       eq.ID,
			Label:    eq.Label,
			Model:    eq.Model,
			Position: eq.Position,
			Ports:    eq.Ports,
		})
	}
	return rs, true
}

// LocateEquipment finds the rack holding a mounted device of any type and
// the site of the document declaring that rack.
func (idx *Index) LocateEquipment(equipmentID string) (rackID, siteID string, ok bool) {
	rackID, ok = idx.equipmentToRack[strings.TrimSpace(equipmentID)]
	if !ok {
		return "", "", false
	}
	siteID, _ = idx.ResolveSiteForEquipment(rackID)
	return rackID, siteID, true
}

// Server returns the server entry of the first rack-servers document listing
// serverID.
func (idx *Index) Server(serverID string) (*topology.Server, bool) {
	ref, ok := idx.serverRefs[strings.TrimSpace(serverID)]
	if !ok {
		return nil, false
	}
	s := idx.rackServers[ref.rackServers].doc.Servers[ref.server]
	return &s, true
}

// DocumentIDs returns the ids of the documents of type t whose declared
// parent (siteId, rackId or serverId) is parentID, in store order. Site
// topologies have no parent and are all returned.
func (idx *Index) DocumentIDs(t topology.DocumentType, parentID string) []string {
	parentID = strings.TrimSpace(parentID)
	var out []string
	switch t {
	case topology.DocumentSiteTopology:
		for _, e := range idx.topologies {
			out = append(out, e.docID)
		}
	case topology.DocumentSiteEquipment:
		for _, p := range idx.equipmentBySite[parentID] {
			out = append(out, idx.equipment[p].docID)
		}
	case topology.DocumentRackServers:
		for _, p := range idx.rackServersByRack[parentID] {
			out = append(out, idx.rackServers[p].docID)
		}
	case topology.DocumentServerDetails:
		for _, p := range idx.detailsByServer[parentID] {
			out = append(out, idx.serverDetails[p].docID)
		}
	}
	return out
}
