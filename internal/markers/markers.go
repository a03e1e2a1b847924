// Package markers projects visits and pool shipments onto map marker
// descriptors.
package markers

import (
	"sync"

	"dispatchdesk/internal/model"
)

type Marker struct {
	ID            string  `json:"id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Status        string  `json:"status"`
	TaskType      string  `json:"taskType"`
	SequenceIndex int     `json:"sequenceIndex"`
	Color         string  `json:"color"`
	Icon          string  `json:"icon"`
}

var statusColors = map[string]string{
	"New":        "#1e88e5",
	"Assigned":   "#8e24aa",
	"InTransit":  "#fb8c00",
	"Arrived":    "#fdd835",
	"Delivered":  "#43a047",
	"PickedUp":   "#00897b",
	"Failed":     "#e53935",
	"draft":      "#546e7a",
	"dispatched": "#3949ab",
}

const defaultColor = "#757575"

func colorFor(status string) string {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return defaultColor
}

func iconFor(taskType string) string {
	switch taskType {
	case string(model.TaskDropoff):
		return "pin-dropoff"
	case string(model.TaskPickup):
		return "pin-pickup"
	case "driver":
		return "pin-driver"
	}
	return "pin"
}

func plottable(lat, lng float64) bool {
	return !(lat == 0 && lng == 0)
}

// FromVisits projects a job's visits in array order. SequenceIndex is the
// 1-based position of the visit in visits; unplottable visits are skipped
// without renumbering the rest.
func FromVisits(visits []model.Visit) []Marker {
	out := []Marker{}
	for i, v := range visits {
		p := v.Address.Point
		if p == nil || !plottable(p.Lat(), p.Lng()) {
			continue
		}
		status, taskType := "", ""
		if len(v.Tasks) > 0 {
			status = v.Tasks[0].Status
			taskType = string(v.Tasks[0].Type)
		}
		out = append(out, Marker{
			ID:            v.VisitID,
			Lat:           p.Lat(),
			Lng:           p.Lng(),
			Status:        status,
			TaskType:      taskType,
			SequenceIndex: i + 1,
			Color:         colorFor(status),
			Icon:          iconFor(taskType),
		})
	}
	return out
}

// FromShipments projects pool shipments in array order.
func FromShipments(shipments []model.Shipment) []Marker {
	out := []Marker{}
	for i, s := range shipments {
		if s.Address.Lat == nil || s.Address.Lng == nil {
			continue
		}
		lat, lng := *s.Address.Lat, *s.Address.Lng
		if !plottable(lat, lng) {
			continue
		}
		out = append(out, Marker{
			ID:            s.ID,
			Lat:           lat,
			Lng:           lng,
			Status:        string(s.Status),
			TaskType:      s.TaskType.String(),
			SequenceIndex: i + 1,
			Color:         colorFor(string(s.Status)),
			Icon:          iconFor(s.TaskType.String()),
		})
	}
	return out
}

// DriverPosition is a driver's last known location, when the pool has one.
type DriverPosition struct {
	DriverID string
	Lat      *float64
	Lng      *float64
}

func FromDrivers(drivers []DriverPosition) []Marker {
	out := []Marker{}
	for i, d := range drivers {
		if d.Lat == nil || d.Lng == nil || !plottable(*d.Lat, *d.Lng) {
			continue
		}
		out = append(out, Marker{
			ID:            d.DriverID,
			Lat:           *d.Lat,
			Lng:           *d.Lng,
			TaskType:      "driver",
			SequenceIndex: i + 1,
			Color:         defaultColor,
			Icon:          iconFor("driver"),
		})
	}
	return out
}

// MapSession is the marker layer of one dispatch session. Each SetMarkers
// replaces the whole layer.
type MapSession struct {
	mu      sync.RWMutex
	markers []Marker
	version uint64
}

func NewMapSession() *MapSession { return &MapSession{markers: []Marker{}} }

func (m *MapSession) SetMarkers(ms []Marker) {
	cp := make([]Marker, len(ms))
	copy(cp, ms)
	m.mu.Lock()
	m.markers = cp
	m.version++
	m.mu.Unlock()
}

func (m *MapSession) Clear() { m.SetMarkers(nil) }

// Markers returns a copy of the current layer and its version.
func (m *MapSession) Markers() ([]Marker, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]Marker, len(m.markers))
	copy(cp, m.markers)
	return cp, m.version
}
