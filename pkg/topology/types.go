package topology

import (
	"strings"
	"time"
)

// DocumentType is the declared kind of a stored hierarchy document.
type DocumentType string

const (
	DocumentSiteTopology  DocumentType = "site-topology"
	DocumentSiteEquipment DocumentType = "site-equipment"
	DocumentRackServers   DocumentType = "rack-servers"
	DocumentServerDetails DocumentType = "server-details"
)

// Valid reports whether t is one of the four hierarchy document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentSiteTopology, DocumentSiteEquipment, DocumentRackServers, DocumentServerDetails:
		return true
	}
	return false
}

// Document is the envelope the document store hands out. Payload is YAML
// (JSON is accepted as a YAML subset).
type Document struct {
	ID        string       `json:"id"`
	Type      DocumentType `json:"type"`
	Payload   string       `json:"payload"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SiteTopology is the root level: all sites and the links between them.
type SiteTopology struct {
	ID          string       `yaml:"id" json:"id"`
	Label       string       `yaml:"label" json:"label"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Sites       []Site       `yaml:"sites" json:"sites"`
	Connections []Connection `yaml:"connections" json:"connections"`
}

// Site is a physical facility hosting racks.
type Site struct {
	ID       string        `yaml:"id" json:"id"`
	Label    string        `yaml:"label" json:"label"`
	Location *SiteLocation `yaml:"location,omitempty" json:"location,omitempty"`
	Capacity *SiteCapacity `yaml:"capacity,omitempty" json:"capacity,omitempty"`
}

type SiteLocation struct {
	Lat     *float64 `yaml:"lat,omitempty" json:"lat,omitempty"`
	Lon     *float64 `yaml:"lon,omitempty" json:"lon,omitempty"`
	Address string   `yaml:"address,omitempty" json:"address,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l *SiteLocation) HasCoordinates() bool {
	return l != nil && l.Lat != nil && l.Lon != nil
}

type SiteCapacity struct {
	Racks int     `yaml:"racks,omitempty" json:"racks,omitempty"`
	Power float64 `yaml:"power,omitempty" json:"power,omitempty"`
}

// SiteEquipment lists the racks of one site. SiteID is the only link back
// to the site topology.
type SiteEquipment struct {
	ID          string       `yaml:"id" json:"id"`
	Label       string       `yaml:"label" json:"label"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	SiteID      string       `yaml:"siteId" json:"siteId"`
	Racks       []Rack       `yaml:"racks" json:"racks"`
	Connections []Connection `yaml:"connections" json:"connections"`
}

type Rack struct {
	ID        string        `yaml:"id" json:"id"`
	Label     string        `yaml:"label" json:"label"`
	Location  *RackLocation `yaml:"location,omitempty" json:"location,omitempty"`
	Capacity  *RackCapacity `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	Equipment []Equipment   `yaml:"equipment" json:"equipment"`
}

// RackLocation places a rack on a floor grid: row letter, position within
// the row and floor number.
type RackLocation struct {
	Floor    int    `yaml:"floor,omitempty" json:"floor,omitempty"`
	Row      string `yaml:"row,omitempty" json:"row,omitempty"`
	Position int    `yaml:"position,omitempty" json:"position,omitempty"`
}

type RackCapacity struct {
	Units int     `yaml:"units,omitempty" json:"units,omitempty"`
	Power float64 `yaml:"power,omitempty" json:"power,omitempty"`
}

// Units returns the declared unit capacity of the rack, or DefaultRackUnits.
func (r Rack) Units() int {
	if r.Capacity != nil && r.Capacity.Units > 0 {
		return r.Capacity.Units
	}
	return DefaultRackUnits
}

// EquipmentType is the kind of a rack-mounted device.
type EquipmentType string

const (
	EquipmentServer   EquipmentType = "server"
	EquipmentSwitch   EquipmentType = "switch"
	EquipmentRouter   EquipmentType = "router"
	EquipmentFirewall EquipmentType = "firewall"
	EquipmentStorage  EquipmentType = "storage"
)

// Is reports whether t names kind, ignoring case and surrounding space.
func (t EquipmentType) Is(kind EquipmentType) bool {
	return strings.EqualFold(strings.TrimSpace(string(t)), string(kind))
}

type Equipment struct {
	ID       string        `yaml:"id" json:"id"`
	Type     EquipmentType `yaml:"type" json:"type"`
	Label    string        `yaml:"label" json:"label"`
	Model    string        `yaml:"model,omitempty" json:"model,omitempty"`
	Position *UnitPosition `yaml:"position,omitempty" json:"position,omitempty"`
	Ports    []Port        `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// UnitPosition holds a raw U-position specifier such as "10-12".
type UnitPosition struct {
	Unit string `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// RackServers lists the servers of one rack.
type RackServers struct {
	ID          string   `yaml:"id,omitempty" json:"id,omitempty"`
	RackID      string   `yaml:"rackId" json:"rackId"`
	Label       string   `yaml:"label" json:"label"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Servers     []Server `yaml:"servers" json:"servers"`
}

type Server struct {
	ID          string        `yaml:"id" json:"id"`
	Label       string        `yaml:"label" json:"label"`
	Model       string        `yaml:"model,omitempty" json:"model,omitempty"`
	Position    *UnitPosition `yaml:"position,omitempty" json:"position,omitempty"`
	Specs       *ServerSpecs  `yaml:"specs,omitempty" json:"specs,omitempty"`
	Ports       []Port        `yaml:"ports,omitempty" json:"ports,omitempty"`
	Connections []Connection  `yaml:"connections,omitempty" json:"connections,omitempty"`
}

type ServerSpecs struct {
	CPU     *CPUSpec     `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Memory  *MemorySpec  `yaml:"memory,omitempty" json:"memory,omitempty"`
	Storage *StorageSpec `yaml:"storage,omitempty" json:"storage,omitempty"`
}

type CPUSpec struct {
	Model string `yaml:"model,omitempty" json:"model,omitempty"`
	Cores int    `yaml:"cores,omitempty" json:"cores,omitempty"`
}

type MemorySpec struct {
	Total string `yaml:"total,omitempty" json:"total,omitempty"`
	Slots int    `yaml:"slots,omitempty" json:"slots,omitempty"`
}

type StorageSpec struct {
	Type     string `yaml:"type,omitempty" json:"type,omitempty"`
	Capacity string `yaml:"capacity,omitempty" json:"capacity,omitempty"`
}

// Port is a network interface on a server or device.
type Port struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Speed       string `yaml:"speed,omitempty" json:"speed,omitempty"`
	Role        string `yaml:"role,omitempty" json:"role,omitempty"`
	MAC         string `yaml:"mac,omitempty" json:"mac,omitempty"`
	IP          string `yaml:"ip,omitempty" json:"ip,omitempty"`
	VLAN        int    `yaml:"vlan,omitempty" json:"vlan,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// SlotStatus is the state of a server expansion slot.
type SlotStatus string

const (
	SlotEmpty     SlotStatus = "empty"
	SlotInstalled SlotStatus = "installed"
	SlotFailed    SlotStatus = "failed"
)

// ServerDetails is the leaf document describing one server's internals.
type ServerDetails struct {
	ID           string        `yaml:"id,omitempty" json:"id,omitempty"`
	ServerID     string        `yaml:"serverId" json:"serverId"`
	Label        string        `yaml:"label" json:"label"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Slots        []Slot        `yaml:"slots" json:"slots"`
	OS           *OSInfo       `yaml:"os,omitempty" json:"os,omitempty"`
	Middleware   []Middleware  `yaml:"middleware,omitempty" json:"middleware,omitempty"`
	Applications []Application `yaml:"applications,omitempty" json:"applications,omitempty"`
}

type Slot struct {
	ID     string     `yaml:"id" json:"id"`
	Label  string     `yaml:"label,omitempty" json:"label,omitempty"`
	Type   string     `yaml:"type,omitempty" json:"type,omitempty"`
	Status SlotStatus `yaml:"status" json:"status"`
}

type OSInfo struct {
	Type         string `yaml:"type,omitempty" json:"type,omitempty"`
	Distribution string `yaml:"distribution,omitempty" json:"distribution,omitempty"`
	Kernel       string `yaml:"kernel,omitempty" json:"kernel,omitempty"`
}

type Middleware struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

type Application struct {
	Name        string            `yaml:"name" json:"name"`
	Port        int               `yaml:"port,omitempty" json:"port,omitempty"`
	Environment string            `yaml:"environment,omitempty" json:"environment,omitempty"`
	EnvVars     map[string]string `yaml:"env_vars,omitempty" json:"env_vars,omitempty"`
}

// Connection links two devices or sites. Both endpoints accept either a bare
// id string or a {device, port} mapping.
type Connection struct {
	ID          string   `yaml:"id,omitempty" json:"id,omitempty"`
	From        Endpoint `yaml:"from" json:"from"`
	To          Endpoint `yaml:"to" json:"to"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"`
	Bandwidth   string   `yaml:"bandwidth,omitempty" json:"bandwidth,omitempty"`
	Latency     string   `yaml:"latency,omitempty" json:"latency,omitempty"`
	Provider    string   `yaml:"provider,omitempty" json:"provider,omitempty"`
	Network     string   `yaml:"network,omitempty" json:"network,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}
