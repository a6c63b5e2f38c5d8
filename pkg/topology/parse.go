package topology

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DetectType reads the embedded `type` field of a payload. When the payload
// cannot be parsed or carries no recognised type, the declared fallback is
// returned instead. ok is false when neither yields a valid type.
func DetectType(payload string, fallback DocumentType) (DocumentType, bool) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := yaml.Unmarshal([]byte(payload), &head); err == nil {
		t := DocumentType(strings.TrimSpace(head.Type))
		if t.Valid() {
			return t, true
		}
	}
	return fallback, fallback.Valid()
}

// ParseSiteTopology decodes a site-topology payload.
func ParseSiteTopology(payload string) (*SiteTopology, error) {
	var v SiteTopology
	if err := decode(payload, &v); err != nil {
		return nil, fmt.Errorf("failed to parse site-topology: %w", err)
	}
	return &v, nil
}

// ParseSiteEquipment decodes a site-equipment payload.
func ParseSiteEquipment(payload string) (*SiteEquipment, error) {
	var v SiteEquipment
	if err := decode(payload, &v); err != nil {
		return nil, fmt.Errorf("failed to parse site-equipment: %w", err)
	}
	v.SiteID = strings.TrimSpace(v.SiteID)
	return &v, nil
}

// ParseRackServers decodes a rack-servers payload.
func ParseRackServers(payload string) (*RackServers, error) {
	var v RackServers
	if err := decode(payload, &v); err != nil {
		return nil, fmt.Errorf("failed to parse rack-servers: %w", err)
	}
	v.RackID = strings.TrimSpace(v.RackID)
	return &v, nil
}

// ParseServerDetails decodes a server-details payload.
func ParseServerDetails(payload string) (*ServerDetails, error) {
	var v ServerDetails
	if err := decode(payload, &v); err != nil {
		return nil, fmt.Errorf("failed to parse server-details: %w", err)
	}
	v.ServerID = strings.TrimSpace(v.ServerID)
	return &v, nil
}

func decode(payload string, out any) error {
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("empty payload")
	}
	return yaml.Unmarshal([]byte(payload), out)
}
