package layout

import (
	"strings"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// 1U chassis in metres.
const (
	ServerWidth  = 0.48
	ServerHeight = 0.044
	ServerDepth  = 0.7

	slotsPerRow = 5
	portsPerRow = 5

	chassisColor = "#2d3748"
)

var slotColors = map[topology.SlotStatus]string{
	topology.SlotEmpty:     "#4a5568",
	topology.SlotInstalled: "#48bb78",
	topology.SlotFailed:    "#f56565",
}

// SlotColor returns the colour of a slot by status; unknown is empty.
func SlotColor(s topology.SlotStatus) string {
	if c, ok := slotColors[topology.SlotStatus(strings.ToLower(string(s)))]; ok {
		return c
	}
	return slotColors[topology.SlotEmpty]
}

var portRoleColors = map[string]string{
	"management": "#48bb78",
	"public":     "#ed8936",
	"internal":   "#4299e1",
	"storage":    "#9f7aea",
	"backup":     "#f56565",
	"unused":     "#718096",
}

// PortColor returns the colour of a network port by role.
func PortColor(role string) string {
	if c, ok := portRoleColors[strings.ToLower(strings.TrimSpace(role))]; ok {
		return c
	}
	return "#4299e1"
}

// ServerDetails lays out a single chassis: expansion slots on the front
// panel and network ports on the rear. server is optional and only
// contributes its ports.
func ServerDetails(sd *topology.ServerDetails, server *topology.Server) Scene {
	scene := newScene()
	if sd == nil {
		return scene
	}

	id := strings.TrimSpace(sd.ServerID)
	scene.Nodes = append(scene.Nodes, Node{
		ID:       id,
		Kind:     KindServer,
		Label:    labelOr(sd.Label, id),
		Position: Vec3{Y: ServerHeight / 2},
		Size:     Vec3{X: ServerWidth, Y: ServerHeight, Z: ServerDepth},
		Color:    chassisColor,
	})

	for i, slot := range sd.Slots {
		row, col := i/slotsPerRow, i%slotsPerRow
		scene.Nodes = append(scene.Nodes, Node{
			ID:    id + "/slot/" + labelOr(slot.ID, itoa(i)),
			Kind:  KindSlot,
			Label: labelOr(slot.Label, slot.ID),
			Position: Vec3{
				X: -ServerWidth*0.35 + float64(col)*ServerWidth*0.18,
				Y: ServerHeight/2 - float64(row)*ServerHeight*0.5,
				Z: ServerDepth/2 + 0.005,
			},
			Size:  Vec3{X: ServerWidth * 0.15, Y: ServerHeight * 0.6, Z: 0.01},
			Color: SlotColor(slot.Status),
		})
	}

	if server != nil {
		spacing := ServerWidth / (portsPerRow + 1)
		rowHeight := ServerHeight / 3
		for i, p := range server.Ports {
			row, col := i/portsPerRow, i%portsPerRow
			scene.Nodes = append(scene.Nodes, Node{
				ID:    id + "/port/" + labelOr(p.ID, itoa(i)),
				Kind:  KindPort,
				Label: labelOr(p.Label, p.ID),
				Position: Vec3{
					X: -ServerWidth/2 + spacing*float64(col+1),
					Y: ServerHeight/2 - rowHeight*float64(row),
					Z: -ServerDepth/2 + 0.01,
				},
				Size:  Vec3{X: 0.008, Y: 0.004, Z: 0.01},
				Color: PortColor(p.Role),
			})
		}
	}

	scene.Camera = Camera{Position: Vec3{Y: 0.5, Z: 1.5}, Target: Vec3{Y: ServerHeight / 2}}
	return scene
}
