package backend

import (
	"dispatchdesk/internal/model"
)

// Page is a 1-based page request; the backend pages with skip/top.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	return p
}

// Top is the page size sent as top.
func (p Page) Top() int { return p.normalized().Size }

// Skip is top * (page - 1).
func (p Page) Skip() int {
	n := p.normalized()
	return n.Size * (n.Number - 1)
}

const DefaultPageSize = 50

type ShipmentQuery struct {
	Statuses    []model.ShipmentStatus
	TaskTypes   []model.ShipmentTaskType
	WarehouseID string
	Page        Page
}

type DriverQuery struct {
	Status *model.DriverStatus
	Page   Page
}

type JobQuery struct {
	JobIDs []string
	Status model.JobStatus
	Page   Page
}

type SoloAssignRequest struct {
	ShipmentIDs []string `json:"shipmentIds"`
	DriverID    string   `json:"driverId"`
}

type OptimizeRequest struct {
	ShipmentIDs []string `json:"shipmentIds"`
	DriverIDs   []string `json:"driverIds"`
	// DriverDepartureTimes maps driver id to an RFC3339 departure time.
	DriverDepartureTimes map[string]string `json:"driverDepartureTimes,omitempty"`
}

type ManualAssignRequest struct {
	ShipmentIDs               []string `json:"shipmentIds"`
	DriverID                  string   `json:"driverId"`
	JobID                     string   `json:"jobId,omitempty"`
	DepartureTime             string   `json:"departureTime"`
	WorkingTimeMinutesDefault int      `json:"workingTimeMinutesDefault"`
}

type ChangeDriverRequest struct {
	JobID    string   `json:"jobId"`
	DriverID string   `json:"driverId"`
	VisitIDs []string `json:"visitIds,omitempty"`
}

type unassignRequest struct {
	ShipmentIDs []string `json:"shipmentIds"`
}

type dispatchBatchRequest struct {
	JobIDs []string `json:"jobIds"`
}

// Ack is the backend's acknowledgement of a write.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"jobId,omitempty"`
}

// DispatchResult is one job's entry in a batch dispatch response.
type DispatchResult struct {
	JobID   string `json:"jobId"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type dispatchBatchResponse struct {
	Results []DispatchResult `json:"results"`
}
