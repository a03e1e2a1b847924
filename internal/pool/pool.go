// Package pool loads the shipments and drivers an operator can dispatch.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/model"
)

// ErrPoolUnavailable wraps any failure to read the pool from the backend.
var ErrPoolUnavailable = errors.New("could not load pool")

// Source is the slice of the backend the pool reads from.
type Source interface {
	ListShipments(ctx context.Context, q backend.ShipmentQuery) (model.Paged[model.Parcel], error)
	ListDrivers(ctx context.Context, q backend.DriverQuery) (model.Paged[model.Driver], error)
}

type Filter struct {
	Statuses    []model.ShipmentStatus
	TaskTypes   []model.ShipmentTaskType
	WarehouseID string
}

// DefaultFilter selects the statuses a dispatch can pick from.
func DefaultFilter() Filter {
	return Filter{Statuses: []model.ShipmentStatus{model.ShipmentNew, model.ShipmentFailed}}
}

// ShipmentCard is the display shape of a pool shipment.
type ShipmentCard struct {
	ID                 string               `json:"id"`
	ProviderShipmentID string               `json:"providerShipmentId"`
	CustomerName       string               `json:"customerName"`
	CustomerPhone      string               `json:"customerPhone"`
	AddressLine        string               `json:"addressLine"`
	AddressLabel       string               `json:"addressLabel"`
	Lat                *float64             `json:"lat,omitempty"`
	Lng                *float64             `json:"lng,omitempty"`
	AddressStatus      model.AddressStatus  `json:"addressStatus"`
	TaskType           string               `json:"taskType"`
	Status             model.ShipmentStatus `json:"status"`
	SyncStatus         model.SyncStatus     `json:"syncStatus"`
	Qty                int                  `json:"qty"`
	Amount             float64              `json:"amount"`
	Currency           string               `json:"currency"`
	Note               string               `json:"note"`
	Selectable         bool                 `json:"selectable"`

	shipment model.Shipment
}

// Shipment returns the full record the card was built from.
func (c ShipmentCard) Shipment() model.Shipment { return c.shipment }

type DriverCard struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatarUrl"`
	Zone      string `json:"zone"`
	FleetType string `json:"fleetType"`

	driver model.Driver
}

func (c DriverCard) Driver() model.Driver { return c.driver }

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

type Adapter struct {
	src Source
}

func NewAdapter(src Source) *Adapter { return &Adapter{src: src} }

// Shipments reads one page of pool shipments. Every call goes to the backend.
func (a *Adapter) Shipments(ctx context.Context, f Filter, p backend.Page) (Page[ShipmentCard], error) {
	if len(f.Statuses) == 0 {
		f.Statuses = DefaultFilter().Statuses
	}
	res, err := a.src.ListShipments(ctx, backend.ShipmentQuery{
		Statuses: f.Statuses, TaskTypes: f.TaskTypes, WarehouseID: f.WarehouseID, Page: p,
	})
	if err != nil {
		return Page[ShipmentCard]{}, fmt.Errorf("%w: %w", ErrPoolUnavailable, err)
	}
	cards := make([]ShipmentCard, 0, len(res.Value))
	for _, parcel := range res.Value {
		cards = append(cards, NewShipmentCard(parcel))
	}
	return Page[ShipmentCard]{Items: cards, Total: res.Count, Page: pageNumber(p), Size: p.Top()}, nil
}

// Drivers reads one page of active drivers.
func (a *Adapter) Drivers(ctx context.Context, p backend.Page) (Page[DriverCard], error) {
	active := model.DriverActive
	res, err := a.src.ListDrivers(ctx, backend.DriverQuery{Status: &active, Page: p})
	if err != nil {
		return Page[DriverCard]{}, fmt.Errorf("%w: %w", ErrPoolUnavailable, err)
	}
	cards := make([]DriverCard, 0, len(res.Value))
	for _, d := range res.Value {
		if d.Status != model.DriverActive {
			continue
		}
		cards = append(cards, NewDriverCard(d))
	}
	return Page[DriverCard]{Items: cards, Total: res.Count, Page: pageNumber(p), Size: p.Top()}, nil
}

// AllDrivers pages through every active driver.
func (a *Adapter) AllDrivers(ctx context.Context, size int) ([]model.Driver, error) {
	var out []model.Driver
	for n := 1; ; n++ {
		pg, err := a.Drivers(ctx, backend.Page{Number: n, Size: size})
		if err != nil {
			return nil, err
		}
		for _, c := range pg.Items {
			out = append(out, c.driver)
		}
		if len(pg.Items) == 0 || n*pg.Size >= pg.Total {
			return out, nil
		}
	}
}

func NewShipmentCard(p model.Parcel) ShipmentCard {
	s := p.Shipment()
	phone := ""
	if len(s.Customer.Phones) > 0 {
		phone = s.Customer.Phones[0]
	}
	return ShipmentCard{
		ID:                 s.ID,
		ProviderShipmentID: s.ProviderShipmentID,
		CustomerName:       strings.TrimSpace(s.Customer.Name),
		CustomerPhone:      phone,
		AddressLine:        s.Address.Line,
		AddressLabel:       s.Address.Label,
		Lat:                s.Address.Lat,
		Lng:                s.Address.Lng,
		AddressStatus:      s.Address.Status,
		TaskType:           s.TaskType.String(),
		Status:             s.Status,
		SyncStatus:         s.SyncStatus,
		Qty:                s.Item.Qty,
		Amount:             s.Item.Amount,
		Currency:           s.Item.Currency,
		Note:               s.Note,
		Selectable:         s.Selectable(),
		shipment:           s,
	}
}

func NewDriverCard(d model.Driver) DriverCard {
	return DriverCard{
		ID: d.ID, Name: d.Name, Phone: d.Phone, AvatarURL: d.AvatarURL, Zone: d.Zone, FleetType: d.FleetType,
		driver: d,
	}
}

// SelectableIDs returns the ids of cards that pass the eligibility rule.
func SelectableIDs(cards []ShipmentCard) []string {
	out := []string{}
	for _, c := range cards {
		if model.Selectable(c.Status, c.AddressStatus, c.SyncStatus) {
			out = append(out, c.ID)
		}
	}
	return out
}

func pageNumber(p backend.Page) int {
	if p.Number < 1 {
		return 1
	}
	return p.Number
}
