package model

// Payload shapes as the dispatch backend sends them. Nested objects are
// pointers so an absent object decodes to nil instead of a zero struct.

// Paged is the backend's list envelope.
type Paged[T any] struct {
	Value []T `json:"value"`
	Count int `json:"count"`
}

type ParcelCustomer struct {
	Name   string   `json:"name"`
	Phones []string `json:"phones"`
}

type ParcelAddress struct {
	Line   string        `json:"line"`
	Label  string        `json:"label"`
	Lat    *float64      `json:"lat"`
	Lng    *float64      `json:"lng"`
	Status AddressStatus `json:"status"`
}

type Parcel struct {
	ID                 string           `json:"id"`
	ProviderShipmentID string           `json:"providerShipmentId"`
	Customer           *ParcelCustomer  `json:"customer"`
	Address            *ParcelAddress   `json:"address"`
	Item               *Item            `json:"item"`
	TaskType           ShipmentTaskType `json:"taskType"`
	Status             ShipmentStatus   `json:"status"`
	SyncStatus         SyncStatus       `json:"syncStatus"`
	Note               string           `json:"note"`
}

// Shipment converts the parcel record, treating missing nested objects as empty.
func (p Parcel) Shipment() Shipment {
	s := Shipment{
		ID:                 p.ID,
		ProviderShipmentID: p.ProviderShipmentID,
		TaskType:           p.TaskType,
		Status:             p.Status,
		SyncStatus:         p.SyncStatus,
		Note:               p.Note,
	}
	if p.Customer != nil {
		s.Customer = Customer{Name: p.Customer.Name, Phones: append([]string(nil), p.Customer.Phones...)}
	}
	if p.Address != nil {
		s.Address = Address{
			Line:   p.Address.Line,
			Label:  p.Address.Label,
			Lat:    copyFloat(p.Address.Lat),
			Lng:    copyFloat(p.Address.Lng),
			Status: p.Address.Status,
		}
	}
	if p.Item != nil {
		s.Item = *p.Item
	}
	return s
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// RawDriver is the provider-specific driver block on a listed job.
type RawDriver struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	ProfileURL string `json:"profileUrl"`
	Zone       string `json:"zone"`
}

type RawMetrics struct {
	TotalHours    *float64 `json:"totalHours"`
	TotalDistance float64  `json:"totalDistance"`
}

// RawJob is a job record as returned by GET /jobs and GET /jobs/{id}.
type RawJob struct {
	JobID        string      `json:"jobId"`
	DriverID     string      `json:"driverId"`
	Driver       *RawDriver  `json:"driver"`
	Status       JobStatus   `json:"status"`
	CreatedAt    string      `json:"createdAt"`
	DispatchedAt string      `json:"dispatchedAt"`
	DeliveryDate string      `json:"deliveryDate"`
	Visits       []Visit     `json:"visits"`
	Metrics      *RawMetrics `json:"metrics"`
}

// OptimizeResult is the auto-assign-optimize response.
type OptimizeResult struct {
	Value               []Job      `json:"value"`
	UnassignedShipments []Shipment `json:"unassignedShipments"`
}
