package draft

import (
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/transform"
)

// WorkingSet is the session-local draft state.
type WorkingSet struct {
	Jobs                []model.Job                `json:"jobs"`
	UnassignedShipments []model.UnassignedShipment `json:"unassignedShipments"`
	IsStale             bool                       `json:"isStale"`
	SelectedJobID       string                     `json:"selectedJobId,omitempty"`
}

func newWorkingSet(res transform.Result) WorkingSet {
	cp := transform.CopyResult(res)
	return WorkingSet{Jobs: cp.Value, UnassignedShipments: cp.UnassignedShipments}
}

func (w WorkingSet) clone() WorkingSet {
	cp := transform.CopyResult(transform.Result{Value: w.Jobs, UnassignedShipments: w.UnassignedShipments})
	return WorkingSet{
		Jobs:                cp.Value,
		UnassignedShipments: cp.UnassignedShipments,
		IsStale:             w.IsStale,
		SelectedJobID:       w.SelectedJobID,
	}
}

func (w *WorkingSet) jobIndex(id string) int {
	for i := range w.Jobs {
		if w.Jobs[i].JobID == id {
			return i
		}
	}
	return -1
}

func (w *WorkingSet) unassignedIndex(id string) int {
	for i := range w.UnassignedShipments {
		if w.UnassignedShipments[i].ID == id {
			return i
		}
	}
	return -1
}

// AllShipmentIDs lists every shipment id held by jobs and the unassigned pool.
func (w WorkingSet) AllShipmentIDs() []string {
	var out []string
	for _, j := range w.Jobs {
		out = append(out, j.ShipmentIDs...)
	}
	for _, u := range w.UnassignedShipments {
		out = append(out, u.ID)
	}
	return out
}

func (w *WorkingSet) pruneJob(idx int) {
	if w.SelectedJobID == w.Jobs[idx].JobID {
		w.SelectedJobID = ""
	}
	w.Jobs = append(w.Jobs[:idx], w.Jobs[idx+1:]...)
}

// extractShipments strips ids from job's visits and returns the removed
// parts as visit fragments that keep their visit id and address.
func extractShipments(job *model.Job, ids map[string]bool) []model.Visit {
	var moved []model.Visit
	kept := make([]model.Visit, 0, len(job.Visits))
	for _, v := range job.Visits {
		var keepIDs, moveIDs []string
		for _, id := range v.ShipmentIDs {
			if ids[id] {
				moveIDs = append(moveIDs, id)
			} else {
				keepIDs = append(keepIDs, id)
			}
		}
		if len(moveIDs) == 0 {
			kept = append(kept, v)
			continue
		}
		var keepTasks, moveTasks []model.Task
		for _, t := range v.Tasks {
			if ids[t.ShipmentID] {
				moveTasks = append(moveTasks, t)
			} else {
				keepTasks = append(keepTasks, t)
			}
		}
		frag := v
		frag.ShipmentIDs = moveIDs
		frag.Tasks = nonNilTasks(moveTasks)
		moved = append(moved, frag)
		if len(keepIDs) > 0 {
			v.ShipmentIDs = keepIDs
			v.Tasks = nonNilTasks(keepTasks)
			kept = append(kept, v)
		}
	}
	job.Visits = kept
	job.ShipmentIDs = model.FlattenShipmentIDs(kept)
	return moved
}

// insertVisits appends fragments to job, merging into a visit with the same id.
func insertVisits(job *model.Job, frags []model.Visit) {
	maxSeq := 0
	for _, v := range job.Visits {
		if v.SequenceOrder > maxSeq {
			maxSeq = v.SequenceOrder
		}
	}
	for _, f := range frags {
		merged := false
		for i := range job.Visits {
			if job.Visits[i].VisitID == f.VisitID {
				job.Visits[i].ShipmentIDs = append(job.Visits[i].ShipmentIDs, f.ShipmentIDs...)
				job.Visits[i].Tasks = append(job.Visits[i].Tasks, f.Tasks...)
				merged = true
				break
			}
		}
		if !merged {
			maxSeq++
			f.SequenceOrder = maxSeq
			job.Visits = append(job.Visits, f)
		}
	}
	job.ShipmentIDs = model.FlattenShipmentIDs(job.Visits)
}

func nonNilTasks(ts []model.Task) []model.Task {
	if ts == nil {
		return []model.Task{}
	}
	return ts
}

func shipmentTypeFor(t model.ShipmentTaskType) string {
	if t == model.TaskTypeDropoff {
		return model.ShipmentTypeWarehouseToCustomer
	}
	return model.ShipmentTypeCustomerToWarehouse
}

// visitFor builds a one-shipment visit for a pool shipment entering a job.
func visitFor(s model.Shipment) model.Visit {
	st := shipmentTypeFor(s.TaskType)
	addr := model.VisitAddress{Label: s.Address.Label, Line: s.Address.Line, Note: s.Note}
	if s.Address.Lat != nil && s.Address.Lng != nil {
		addr.Point = model.NewPoint(*s.Address.Lat, *s.Address.Lng)
	}
	return model.Visit{
		VisitID:     "visit-" + s.ID,
		Address:     addr,
		ShipmentIDs: []string{s.ID},
		Tasks: []model.Task{{
			TaskID:       "task-" + s.ID,
			ShipmentID:   s.ID,
			Status:       string(s.Status),
			ShipmentType: st,
			Type:         model.DeriveTaskType(st),
			Qty:          s.Item.Qty,
			Amount:       s.Item.Amount,
		}},
	}
}

// shipmentFromVisit rebuilds a shipment record from the route data of a
// job when no pool record is known for it.
func shipmentFromVisit(v model.Visit, shipmentID string) model.Shipment {
	s := model.Shipment{
		ID:         shipmentID,
		Status:     model.ShipmentNew,
		SyncStatus: model.SyncSynced,
		TaskType:   model.TaskTypePickup,
		Note:       v.Address.Note,
		Address:    model.Address{Line: v.Address.Line, Label: v.Address.Label},
	}
	if p := v.Address.Point; p != nil {
		lat, lng := p.Lat(), p.Lng()
		s.Address.Lat, s.Address.Lng = &lat, &lng
		s.Address.Status = model.AddressSuccess
	}
	for _, t := range v.Tasks {
		if t.ShipmentID != shipmentID {
			continue
		}
		if model.DeriveTaskType(t.ShipmentType) == model.TaskDropoff {
			s.TaskType = model.TaskTypeDropoff
		}
		s.Item = model.Item{Qty: t.Qty, Amount: t.Amount}
		break
	}
	return s
}
