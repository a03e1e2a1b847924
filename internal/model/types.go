package model

// Core domain types shared by the pool, dispatch, transform and draft packages.

type ShipmentStatus string

const (
	ShipmentNew       ShipmentStatus = "New"
	ShipmentAssigned  ShipmentStatus = "Assigned"
	ShipmentInTransit ShipmentStatus = "InTransit"
	ShipmentArrived   ShipmentStatus = "Arrived"
	ShipmentDelivered ShipmentStatus = "Delivered"
	ShipmentPickedUp  ShipmentStatus = "PickedUp"
	ShipmentFailed    ShipmentStatus = "Failed"
)

// SyncStatus tracks a shipment's replication to the dispatch provider.
type SyncStatus string

const (
	SyncNew        SyncStatus = "New"
	SyncUpdate     SyncStatus = "Update"
	SyncProcessing SyncStatus = "Processing"
	SyncSynced     SyncStatus = "Synced"
	SyncFailed     SyncStatus = "Failed"
)

// AddressStatus is the geocoding state of a shipment address.
type AddressStatus string

const (
	AddressCustomerProvided AddressStatus = "CustomerProvided"
	AddressSuccess          AddressStatus = "Success"
	AddressPending          AddressStatus = "Pending"
	AddressFailed           AddressStatus = "Failed"
)

// ShipmentTaskType is the pool-side task type code.
type ShipmentTaskType int

const (
	TaskTypeDropoff ShipmentTaskType = 1
	TaskTypePickup  ShipmentTaskType = 2
)

func (t ShipmentTaskType) String() string {
	switch t {
	case TaskTypeDropoff:
		return "dropoff"
	case TaskTypePickup:
		return "pickup"
	}
	return "unknown"
}

type DriverStatus int

const (
	DriverInactive DriverStatus = 0
	DriverActive   DriverStatus = 1
	DriverNew      DriverStatus = 2
)

type Customer struct {
	Name   string   `json:"name"`
	Phones []string `json:"phones,omitempty"`
}

type Address struct {
	Line   string        `json:"line"`
	Label  string        `json:"label,omitempty"`
	Lat    *float64      `json:"lat,omitempty"`
	Lng    *float64      `json:"lng,omitempty"`
	Status AddressStatus `json:"status"`
}

type Item struct {
	Qty      int     `json:"qty"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type Shipment struct {
	ID                 string           `json:"id"`
	ProviderShipmentID string           `json:"providerShipmentId,omitempty"`
	Customer           Customer         `json:"customer"`
	Address            Address          `json:"address"`
	Item               Item             `json:"item"`
	TaskType           ShipmentTaskType `json:"taskType"`
	Status             ShipmentStatus   `json:"status"`
	SyncStatus         SyncStatus       `json:"syncStatus"`
	Note               string           `json:"note,omitempty"`
}

// Selectable reports whether the shipment may be picked for a dispatch.
func (s Shipment) Selectable() bool {
	return Selectable(s.Status, s.Address.Status, s.SyncStatus)
}

// Selectable is the pool eligibility rule: status New or Failed, a usable
// geocode, and a completed sync with the dispatch provider.
func Selectable(status ShipmentStatus, addr AddressStatus, sync SyncStatus) bool {
	if status != ShipmentNew && status != ShipmentFailed {
		return false
	}
	if addr != AddressCustomerProvided && addr != AddressSuccess {
		return false
	}
	return sync == SyncSynced
}

type Driver struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Phone     string       `json:"phone,omitempty"`
	AvatarURL string       `json:"avatarUrl,omitempty"`
	Zone      string       `json:"zone,omitempty"`
	FleetType string       `json:"fleetType,omitempty"`
	Status    DriverStatus `json:"status"`
}

type Zone struct {
	Name string `json:"name"`
}

// DriverSnapshot is the driver as embedded in a job.
type DriverSnapshot struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PrimaryPhone string `json:"primaryPhone,omitempty"`
	ProfileURL   string `json:"profileUrl,omitempty"`
	Zone         Zone   `json:"zone"`
	FleetType    string `json:"fleetType,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Snapshot builds the job-embedded view of a pool driver.
func (d Driver) Snapshot() DriverSnapshot {
	return DriverSnapshot{
		ID:           d.ID,
		Username:     d.Name,
		PrimaryPhone: d.Phone,
		ProfileURL:   d.AvatarURL,
		Zone:         Zone{Name: d.Zone},
		FleetType:    d.FleetType,
		Role:         "Driver",
	}
}

// Point is a GeoJSON point; Coordinates are [lng, lat].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func NewPoint(lat, lng float64) *Point {
	return &Point{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

func (p *Point) Lat() float64 { return p.Coordinates[1] }
func (p *Point) Lng() float64 { return p.Coordinates[0] }

type VisitAddress struct {
	Label string `json:"label,omitempty"`
	Line  string `json:"line,omitempty"`
	Note  string `json:"note,omitempty"`
	Point *Point `json:"point,omitempty"`
}

type TaskType string

const (
	TaskPickup  TaskType = "pickup"
	TaskDropoff TaskType = "dropoff"
)

// ShipmentTypeWarehouseToCustomer is the only upstream shipment type that is a drop-off.
const (
	ShipmentTypeWarehouseToCustomer = "warehouse_to_customer"
	ShipmentTypeCustomerToWarehouse = "customer_to_warehouse"
)

// DeriveTaskType maps an upstream shipment type to a task type.
func DeriveTaskType(shipmentType string) TaskType {
	if shipmentType == ShipmentTypeWarehouseToCustomer {
		return TaskDropoff
	}
	return TaskPickup
}

type Task struct {
	TaskID       string   `json:"taskId"`
	ShipmentID   string   `json:"shipmentId"`
	Status       string   `json:"status,omitempty"`
	ShipmentType string   `json:"shipmentType"`
	Type         TaskType `json:"type"`
	Qty          int      `json:"qty,omitempty"`
	Amount       float64  `json:"amount,omitempty"`
}

type Visit struct {
	VisitID       string       `json:"visitId"`
	SequenceOrder int          `json:"sequenceOrder"`
	Address       VisitAddress `json:"address"`
	ShipmentIDs   []string     `json:"shipmentIds"`
	Tasks         []Task       `json:"tasks"`
}

type OptimizationDetails struct {
	TotalDistance     float64 `json:"totalDistance"`
	TotalTravelTime   float64 `json:"totalTravelTime"`
	TotalShipments    int     `json:"totalShipments"`
	AssignedShipments int     `json:"assignedShipments"`
	Provider          string  `json:"provider"`
}

type JobStatus string

const (
	JobDraft      JobStatus = "draft"
	JobDispatched JobStatus = "dispatched"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

type Job struct {
	JobID               string              `json:"jobId"`
	DriverID            string              `json:"driverId"`
	Driver              DriverSnapshot      `json:"driver"`
	DepartureTime       string              `json:"departureTime,omitempty"`
	EstArrivalTime      string              `json:"estArrivalTime,omitempty"`
	Visits              []Visit             `json:"visits"`
	ShipmentIDs         []string            `json:"shipmentIds"`
	OptimizationDetails OptimizationDetails `json:"optimizationDetails"`
	Status              JobStatus           `json:"status"`
	DispatchedAt        string              `json:"dispatchedAt,omitempty"`
	// Local marks a draft created in the session that the backend has not seen yet.
	Local bool `json:"local,omitempty"`
}

// FlattenShipmentIDs returns the union of the visits' shipment ids in visit order.
func FlattenShipmentIDs(visits []Visit) []string {
	out := []string{}
	for _, v := range visits {
		out = append(out, v.ShipmentIDs...)
	}
	return out
}

// UnassignedShipment is a shipment that no route currently covers.
type UnassignedShipment struct {
	Shipment
	Reason string `json:"reason,omitempty"`
}
