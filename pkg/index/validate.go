package index

import (
	"fmt"
	"strings"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// IssueKind classifies a reference problem.
type IssueKind string

const (
	IssueMissingField     IssueKind = "missing_field"
	IssueMissingReference IssueKind = "missing_reference"
)

// Issue is one broken or absent parent reference.
type Issue struct {
	Kind       IssueKind             `json:"kind"`
	SourceType topology.DocumentType `json:"source_type"`
	DocumentID string                `json:"document_id"`
	Label      string                `json:"label"`
	Field      string                `json:"field"`
	Value      string                `json:"value,omitempty"`
	Message    string                `json:"message"`
}

// ValidateReferences checks the declared parent of every non-root document:
// siteId must name a topology site, rackId a rack of some site-equipment
// document, serverId a server listed either in rack-servers or as
// server-typed equipment.
func (idx *Index) ValidateReferences() []Issue {
	issues := make([]Issue, 0)

	for _, e := range idx.equipment {
		label := labelOr(e.doc.Label, e.docID)
		switch {
		case e.doc.SiteID == "":
			issues = append(issues, missingField(topology.DocumentSiteEquipment, e.docID, label, "siteId"))
		default:
			if _, ok := idx.sites[e.doc.SiteID]; !ok {
				issues = append(issues, missingRef(topology.DocumentSiteEquipment, e.docID, label, "siteId", e.doc.SiteID, "site"))
			}
		}
	}

	for _, e := range idx.rackServers {
		label := labelOr(e.doc.Label, e.docID)
		switch {
		case e.doc.RackID == "":
			issues = append(issues, missingField(topology.DocumentRackServers, e.docID, label, "rackId"))
		default:
			if _, ok := idx.rackRefs[e.doc.RackID]; !ok {
				issues = append(issues, missingRef(topology.DocumentRackServers, e.docID, label, "rackId", e.doc.RackID, "rack"))
			}
		}
	}

	for _, e := range idx.serverDetails {
		label := labelOr(e.doc.Label, e.docID)
		switch {
		case e.doc.ServerID == "":
			issues = append(issues, missingField(topology.DocumentServerDetails, e.docID, label, "serverId"))
		default:
			if !idx.knownServer(e.doc.ServerID) {
				issues = append(issues, missingRef(topology.DocumentServerDetails, e.docID, label, "serverId", e.doc.ServerID, "server"))
			}
		}
	}

	return issues
}

func (idx *Index) knownServer(id string) bool {
	if _, ok := idx.serverToRack[id]; ok {
		return true
	}
	_, ok := idx.equipmentServerToRack[id]
	return ok
}

func labelOr(label, fallback string) string {
	if strings.TrimSpace(label) != "" {
		return label
	}
	return fallback
}

func missingField(t topology.DocumentType, docID, label, field string) Issue {
	return Issue{
		Kind:       IssueMissingField,
		SourceType: t,
		DocumentID: docID,
		Label:      label,
		Field:      field,
		Message:    fmt.Sprintf("%s %q has no %s", t, label, field),
	}
}

func missingRef(t topology.DocumentType, docID, label, field, value, target string) Issue {
	return Issue{
		Kind:       IssueMissingReference,
		SourceType: t,
		DocumentID: docID,
		Label:      label,
		Field:      field,
		Value:      value,
		Message:    fmt.Sprintf("%s %q references %s %q which does not exist", t, label, target, value),
	}
}
