package topology

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Endpoint is one side of a Connection.
type Endpoint struct {
	Device string `yaml:"device,omitempty" json:"device,omitempty"`
	Port   string `yaml:"port,omitempty" json:"port,omitempty"`
}

// ID returns the trimmed device id of the endpoint.
func (e Endpoint) ID() string {
	return strings.TrimSpace(e.Device)
}

// IsZero reports whether the endpoint names no device.
func (e Endpoint) IsZero() bool {
	return e.ID() == ""
}

// UnmarshalYAML accepts "dev-1" as well as {device: dev-1, port: eth0}.
func (e *Endpoint) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*e = Endpoint{}
			return nil
		}
		*e = Endpoint{Device: value.Value}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Device string `yaml:"device"`
			Port   string `yaml:"port"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*e = Endpoint{Device: raw.Device, Port: raw.Port}
		return nil
	default:
		return fmt.Errorf("endpoint: unsupported yaml node kind %d at line %d", value.Kind, value.Line)
	}
}

// UnmarshalJSON mirrors UnmarshalYAML for JSON encoded endpoints.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*e = Endpoint{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = Endpoint{Device: s}
		return nil
	}
	var raw struct {
		Device string `json:"device"`
		Port   string `json:"port"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	*e = Endpoint{Device: raw.Device, Port: raw.Port}
	return nil
}
