package transform

import (
	"fmt"
	"slices"
	"sort"

	"dispatchdesk/internal/model"
)

const (
	// Placeholders for fields the job list payload does not carry.
	defaultFleetType = "Motorcycle"
	defaultRole      = "Driver"
	manualProvider   = "manual"

	reasonUnroutable = "no route could satisfy constraints"
)

// Normalize converts src into the canonical job list. It never mutates src and
// its output depends on src alone.
func Normalize(src Source) (Result, error) {
	switch src.Kind {
	case KindRefetched:
		return normalizeRefetched(src.Refetched)
	case KindOptimized:
		return normalizeOptimized(src.Optimized)
	default:
		return Result{}, ErrUnknownSource
	}
}

func normalizeRefetched(p *model.Paged[model.RawJob]) (Result, error) {
	if p == nil || p.Value == nil {
		return Result{}, &StructuralError{Kind: KindRefetched, Path: "value"}
	}
	jobs := make([]model.Job, 0, len(p.Value))
	seen := make(map[string]bool, len(p.Value))
	for i, raw := range p.Value {
		if err := checkJobID(KindRefetched, i, raw.JobID, seen); err != nil {
			return Result{}, err
		}
		visits := normalizeVisits(raw.Visits)
		ids := model.FlattenShipmentIDs(visits)

		departure := raw.DispatchedAt
		if departure == "" {
			departure = raw.CreatedAt
		}
		var hours float64
		var distance float64
		if raw.Metrics != nil {
			if raw.Metrics.TotalHours != nil {
				hours = *raw.Metrics.TotalHours
			}
			distance = raw.Metrics.TotalDistance
		}
		status := raw.Status
		if status == "" {
			status = model.JobDraft
		}
		jobs = append(jobs, model.Job{
			JobID:          raw.JobID,
			DriverID:       raw.DriverID,
			Driver:         rawDriverSnapshot(raw),
			DepartureTime:  departure,
			EstArrivalTime: raw.DeliveryDate,
			Visits:         visits,
			ShipmentIDs:    ids,
			OptimizationDetails: model.OptimizationDetails{
				TotalDistance:     distance,
				TotalTravelTime:   hours,
				TotalShipments:    len(ids),
				AssignedShipments: len(ids),
				Provider:          manualProvider,
			},
			Status:       status,
			DispatchedAt: raw.DispatchedAt,
		})
	}
	return Result{Value: jobs, UnassignedShipments: []model.UnassignedShipment{}}, nil
}

func rawDriverSnapshot(raw model.RawJob) model.DriverSnapshot {
	d := model.DriverSnapshot{ID: raw.DriverID, FleetType: defaultFleetType, Role: defaultRole}
	if raw.Driver == nil {
		return d
	}
	if raw.Driver.ID != "" {
		d.ID = raw.Driver.ID
	}
	d.Username = raw.Driver.Name
	d.PrimaryPhone = raw.Driver.Phone
	d.ProfileURL = raw.Driver.ProfileURL
	d.Zone = model.Zone{Name: raw.Driver.Zone}
	return d
}

func normalizeOptimized(r *model.OptimizeResult) (Result, error) {
	if r == nil || r.Value == nil {
		return Result{}, &StructuralError{Kind: KindOptimized, Path: "value"}
	}
	jobs := make([]model.Job, 0, len(r.Value))
	seen := make(map[string]bool, len(r.Value))
	for i, j := range r.Value {
		if err := checkJobID(KindOptimized, i, j.JobID, seen); err != nil {
			return Result{}, err
		}
		out := j
		out.Visits = normalizeVisits(j.Visits)
		out.ShipmentIDs = model.FlattenShipmentIDs(out.Visits)
		if len(j.ShipmentIDs) > 0 && !sameIDs(j.ShipmentIDs, out.ShipmentIDs) {
			return Result{}, &StructuralError{Kind: KindOptimized, Path: fmt.Sprintf("value[%d].shipmentIds", i), Reason: "shipment ids not covered by visits"}
		}
		if out.Status == "" {
			out.Status = model.JobDraft
		}
		out.Local = false
		jobs = append(jobs, out)
	}
	unassigned := make([]model.UnassignedShipment, 0, len(r.UnassignedShipments))
	for _, s := range r.UnassignedShipments {
		unassigned = append(unassigned, model.UnassignedShipment{Shipment: CopyShipment(s), Reason: reasonUnroutable})
	}
	return Result{Value: jobs, UnassignedShipments: unassigned}, nil
}

// checkJobID rejects empty and repeated job ids; the working set addresses
// jobs by id.
func checkJobID(kind Kind, i int, id string, seen map[string]bool) error {
	path := fmt.Sprintf("value[%d].jobId", i)
	if id == "" {
		return &StructuralError{Kind: kind, Path: path, Reason: "an empty job id"}
	}
	if seen[id] {
		return &StructuralError{Kind: kind, Path: path, Reason: "a duplicate job id"}
	}
	seen[id] = true
	return nil
}

// sameIDs compares two id lists as multisets.
func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

// normalizeVisits deep-copies visits, re-derives every task type and orders
// the visits by sequenceOrder.
func normalizeVisits(in []model.Visit) []model.Visit {
	out := make([]model.Visit, 0, len(in))
	for _, v := range in {
		cp := CopyVisit(v)
		for i := range cp.Tasks {
			cp.Tasks[i].Type = model.DeriveTaskType(cp.Tasks[i].ShipmentType)
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out
}

// CopyVisit returns a visit sharing no memory with v.
func CopyVisit(v model.Visit) model.Visit {
	cp := v
	if v.Address.Point != nil {
		pt := *v.Address.Point
		cp.Address.Point = &pt
	}
	cp.ShipmentIDs = append([]string{}, v.ShipmentIDs...)
	cp.Tasks = append([]model.Task{}, v.Tasks...)
	return cp
}

// CopyJob returns a job sharing no memory with j.
func CopyJob(j model.Job) model.Job {
	cp := j
	cp.Visits = make([]model.Visit, len(j.Visits))
	for i, v := range j.Visits {
		cp.Visits[i] = CopyVisit(v)
	}
	cp.ShipmentIDs = append([]string{}, j.ShipmentIDs...)
	return cp
}

func CopyShipment(s model.Shipment) model.Shipment {
	cp := s
	cp.Customer.Phones = append([]string(nil), s.Customer.Phones...)
	if s.Address.Lat != nil {
		v := *s.Address.Lat
		cp.Address.Lat = &v
	}
	if s.Address.Lng != nil {
		v := *s.Address.Lng
		cp.Address.Lng = &v
	}
	return cp
}

// CopyResult deep-copies a result.
func CopyResult(r Result) Result {
	out := Result{
		Value:               make([]model.Job, len(r.Value)),
		UnassignedShipments: make([]model.UnassignedShipment, len(r.UnassignedShipments)),
	}
	for i, j := range r.Value {
		out.Value[i] = CopyJob(j)
	}
	for i, u := range r.UnassignedShipments {
		out.UnassignedShipments[i] = model.UnassignedShipment{Shipment: CopyShipment(u.Shipment), Reason: u.Reason}
	}
	return out
}
