// Package dispatch builds dispatch requests, submits them, and commits
// draft jobs to the backend.
package dispatch

import (
	"errors"
	"fmt"

	"dispatchdesk/internal/backend"
)

type Kind string

const (
	KindSolo     Kind = "solo"
	KindOptimize Kind = "optimize"
)

// ErrValidation matches every selection error; nothing is sent when it occurs.
var ErrValidation = errors.New("invalid dispatch selection")

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string     { return e.Msg }
func (e *ValidationError) Is(err error) bool { return err == ErrValidation }

var (
	ErrNoShipments = &ValidationError{Field: "shipmentIds", Msg: "select at least one shipment"}
	ErrNoDrivers   = &ValidationError{Field: "driverIds", Msg: "select at least one driver"}
)

// Selection is what the operator picked from the pool.
type Selection struct {
	ShipmentIDs []string `json:"shipmentIds"`
	DriverIDs   []string `json:"driverIds"`
	// DepartureTimes is keyed by driver id; entries for unselected drivers are ignored.
	DepartureTimes map[string]string `json:"departureTimes,omitempty"`
}

// Request is either a solo assignment or an auto-optimize request.
type Request struct {
	Kind     Kind
	Solo     *backend.SoloAssignRequest
	Optimize *backend.OptimizeRequest
}

// Build turns a selection into a request: one driver means a solo
// assignment, several mean auto-optimize.
func Build(sel Selection) (Request, error) {
	shipments := dedupe(sel.ShipmentIDs)
	drivers := dedupe(sel.DriverIDs)
	if len(shipments) == 0 {
		return Request{}, ErrNoShipments
	}
	if len(drivers) == 0 {
		return Request{}, ErrNoDrivers
	}
	if len(drivers) == 1 {
		return Request{Kind: KindSolo, Solo: &backend.SoloAssignRequest{ShipmentIDs: shipments, DriverID: drivers[0]}}, nil
	}
	var times map[string]string
	for _, d := range drivers {
		if t, ok := sel.DepartureTimes[d]; ok && t != "" {
			if times == nil {
				times = map[string]string{}
			}
			times[d] = t
		}
	}
	return Request{Kind: KindOptimize, Optimize: &backend.OptimizeRequest{
		ShipmentIDs: shipments, DriverIDs: drivers, DriverDepartureTimes: times,
	}}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (r Request) String() string {
	switch r.Kind {
	case KindSolo:
		return fmt.Sprintf("solo(%d shipments -> %s)", len(r.Solo.ShipmentIDs), r.Solo.DriverID)
	case KindOptimize:
		return fmt.Sprintf("optimize(%d shipments, %d drivers)", len(r.Optimize.ShipmentIDs), len(r.Optimize.DriverIDs))
	}
	return "empty"
}
