// Package draft holds the working set of a dispatch session and the edits an
// operator makes to it before dispatching.
package draft

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatchdesk/internal/markers"
	"dispatchdesk/internal/metrics"
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/transform"
)

type Flow string

const (
	FlowCreate Flow = "create"
	FlowEdit   Flow = "edit"
)

// Pool names the unassigned shipments as a move source.
const Pool = ""

const (
	EventChanged    = "workingset.changed"
	EventSelected   = "workingset.selected"
	EventRefreshed  = "workingset.refreshed"
	EventDispatched = "jobs.dispatched"
	EventClosed     = "session.closed"
)

type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Op        string    `json:"op,omitempty"`
	Stale     bool      `json:"isStale"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}

type Options struct {
	ID      string
	Owner   string
	Flow    Flow
	Drivers []model.Driver
	Notify  func(Event)
	Now     func() time.Time
}

// Session owns one working set. Mutations run one at a time under mu and are
// refused while a backend call of the session is in flight; reads never are.
type Session struct {
	mu         sync.Mutex
	id         string
	owner      string
	flow       Flow
	ws         WorkingSet
	drivers    map[string]model.Driver
	catalog    map[string]model.Shipment
	dispatched map[string]bool
	edits      []Edit
	token      uint64
	busy       string
	closed     bool
	touched    time.Time
	layer      *markers.MapSession
	notify     func(Event)
	now        func() time.Time
}

func NewSession(res transform.Result, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Flow == "" {
		opts.Flow = FlowCreate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		id:         opts.ID,
		owner:      opts.Owner,
		flow:       opts.Flow,
		ws:         newWorkingSet(res),
		drivers:    map[string]model.Driver{},
		catalog:    map[string]model.Shipment{},
		dispatched: map[string]bool{},
		layer:      markers.NewMapSession(),
		notify:     opts.Notify,
		now:        opts.Now,
	}
	for _, d := range opts.Drivers {
		s.drivers[d.ID] = d
	}
	s.remember(s.ws)
	s.touched = s.now()
	s.projectLocked()
	return s
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Owner() string { return s.owner }
func (s *Session) Flow() Flow    { return s.flow }

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner"`
	Flow        Flow       `json:"flow"`
	WorkingSet  WorkingSet `json:"workingSet"`
	Pending     bool       `json:"pending"`
	PendingOp   string     `json:"pendingOp,omitempty"`
	Dispatched  []string   `json:"dispatchedJobIds"`
	EditCount   int        `json:"pendingEdits"`
	Closed      bool       `json:"closed"`
	LastTouched time.Time  `json:"lastTouched"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for _, j := range s.ws.Jobs {
		if s.dispatched[j.JobID] {
			ids = append(ids, j.JobID)
		}
	}
	return Snapshot{
		ID: s.id, Owner: s.owner, Flow: s.flow,
		WorkingSet:  s.ws.clone(),
		Pending:     s.busy != "",
		PendingOp:   s.busy,
		Dispatched:  ids,
		EditCount:   len(s.edits),
		Closed:      s.closed,
		LastTouched: s.touched,
	}
}

func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.IsStale
}

// Markers returns the marker layer for the current selection.
func (s *Session) Markers() []markers.Marker {
	ms, _ := s.layer.Markers()
	return ms
}

// SelectJobForMap selects the job whose route the map shows; "" clears it.
func (s *Session) SelectJobForMap(jobID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if jobID != "" && s.ws.jobIndex(jobID) < 0 {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	s.ws.SelectedJobID = jobID
	s.touched = s.now()
	s.projectLocked()
	evt := s.eventLocked(EventSelected, "select", map[string]string{"jobId": jobID})
	s.mu.Unlock()
	s.emit(evt)
	return nil
}

// ReassignJob hands the whole job to another driver.
func (s *Session) ReassignJob(jobID, driverID string) error {
	return s.mutate("reassign", func(ws *WorkingSet) ([]Edit, error) {
		i := ws.jobIndex(jobID)
		if i < 0 {
			return nil, ErrJobNotFound
		}
		if err := s.writable(ws.Jobs[i]); err != nil {
			return nil, err
		}
		snap, err := s.snapshotFor(driverID)
		if err != nil {
			return nil, err
		}
		job := &ws.Jobs[i]
		if job.DriverID == driverID {
			return nil, errNoChange
		}
		job.DriverID = driverID
		job.Driver = snap
		if job.Local {
			return nil, nil
		}
		visitIDs := make([]string, 0, len(job.Visits))
		for _, v := range job.Visits {
			visitIDs = append(visitIDs, v.VisitID)
		}
		return []Edit{{Kind: EditChangeDriver, JobID: jobID, DriverID: driverID, VisitIDs: visitIDs}}, nil
	})
}

// AssignToJob moves shipmentIDs from source (a job id or Pool) into an
// existing job.
func (s *Session) AssignToJob(shipmentIDs []string, source, targetJobID string) error {
	return s.mutate("assign_to_job", func(ws *WorkingSet) ([]Edit, error) {
		return s.move(ws, shipmentIDs, source, func(ws *WorkingSet) (int, error) {
			i := ws.jobIndex(targetJobID)
			if i < 0 {
				return -1, ErrJobNotFound
			}
			return i, nil
		})
	})
}

// AssignToDriver moves shipmentIDs into the driver's existing draft job.
func (s *Session) AssignToDriver(shipmentIDs []string, source, driverID string) error {
	return s.mutate("assign_to_driver", func(ws *WorkingSet) ([]Edit, error) {
		return s.move(ws, shipmentIDs, source, func(ws *WorkingSet) (int, error) {
			for i, j := range ws.Jobs {
				if j.DriverID == driverID && j.JobID != source && s.writable(j) == nil {
					return i, nil
				}
			}
			return -1, ErrNoJobForDriver
		})
	})
}

// AssignToNewJob moves shipmentIDs into a new local draft job for driverID.
func (s *Session) AssignToNewJob(shipmentIDs []string, source, driverID string) error {
	return s.mutate("assign_to_new_job", func(ws *WorkingSet) ([]Edit, error) {
		snap, err := s.snapshotFor(driverID)
		if err != nil {
			return nil, err
		}
		return s.move(ws, shipmentIDs, source, func(ws *WorkingSet) (int, error) {
			ws.Jobs = append(ws.Jobs, model.Job{
				JobID:         "local-" + uuid.NewString(),
				DriverID:      driverID,
				Driver:        snap,
				DepartureTime: s.now().UTC().Format(time.RFC3339),
				Visits:        []model.Visit{},
				ShipmentIDs:   []string{},
				OptimizationDetails: model.OptimizationDetails{
					Provider: "manual",
				},
				Status: model.JobDraft,
				Local:  true,
			})
			return len(ws.Jobs) - 1, nil
		})
	})
}

// RemoveShipments takes shipmentIDs off a job and returns them to the
// unassigned pool in the given order. A job left empty is dropped.
func (s *Session) RemoveShipments(jobID string, shipmentIDs []string) error {
	return s.mutate("remove", func(ws *WorkingSet) ([]Edit, error) {
		ids := dedupe(shipmentIDs)
		if len(ids) == 0 {
			return nil, ErrEmptySelection
		}
		i := ws.jobIndex(jobID)
		if i < 0 {
			return nil, ErrJobNotFound
		}
		if err := s.writable(ws.Jobs[i]); err != nil {
			return nil, err
		}
		set, err := memberSet(ws.Jobs[i].ShipmentIDs, ids)
		if err != nil {
			return nil, err
		}
		local := ws.Jobs[i].Local
		frags := extractShipments(&ws.Jobs[i], set)
		byID := map[string]model.Visit{}
		for _, f := range frags {
			for _, id := range f.ShipmentIDs {
				byID[id] = f
			}
		}
		for _, id := range ids {
			sh, ok := s.catalog[id]
			if !ok {
				sh = shipmentFromVisit(byID[id], id)
			}
			ws.UnassignedShipments = append(ws.UnassignedShipments, model.UnassignedShipment{
				Shipment: transform.CopyShipment(sh),
				Reason:   "removed from job " + jobID,
			})
		}
		if len(ws.Jobs[i].ShipmentIDs) == 0 {
			ws.pruneJob(i)
		}
		if local {
			return nil, nil
		}
		return []Edit{{Kind: EditUnassign, JobID: jobID, ShipmentIDs: ids}}, nil
	})
}

// move relocates ids from source into the job picked by target. It works on
// ws, which mutate only publishes when move succeeds.
func (s *Session) move(ws *WorkingSet, shipmentIDs []string, source string, target func(*WorkingSet) (int, error)) ([]Edit, error) {
	ids := dedupe(shipmentIDs)
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}
	src := -1
	if source != Pool {
		src = ws.jobIndex(source)
		if src < 0 {
			return nil, ErrJobNotFound
		}
		if err := s.writable(ws.Jobs[src]); err != nil {
			return nil, err
		}
		if _, err := memberSet(ws.Jobs[src].ShipmentIDs, ids); err != nil {
			return nil, err
		}
	} else {
		for _, id := range ids {
			if ws.unassignedIndex(id) < 0 {
				return nil, ErrShipmentNotFound
			}
		}
	}
	dst, err := target(ws)
	if err != nil {
		return nil, err
	}
	if err := s.writable(ws.Jobs[dst]); err != nil {
		return nil, err
	}
	if dst == src {
		return nil, ErrSameJob
	}

	var frags []model.Visit
	var edits []Edit
	if src >= 0 {
		set, _ := memberSet(ws.Jobs[src].ShipmentIDs, ids)
		frags = extractShipments(&ws.Jobs[src], set)
		if !ws.Jobs[src].Local {
			edits = append(edits, Edit{Kind: EditUnassign, JobID: source, ShipmentIDs: ids})
		}
	} else {
		for _, id := range ids {
			k := ws.unassignedIndex(id)
			frags = append(frags, visitFor(ws.UnassignedShipments[k].Shipment))
			ws.UnassignedShipments = append(ws.UnassignedShipments[:k], ws.UnassignedShipments[k+1:]...)
		}
	}
	insertVisits(&ws.Jobs[dst], frags)
	to := ws.Jobs[dst]
	if !to.Local {
		edits = append(edits, Edit{Kind: EditManualAssign, JobID: to.JobID, DriverID: to.DriverID, ShipmentIDs: ids, DepartureTime: to.DepartureTime})
	}
	if src >= 0 && len(ws.Jobs[src].ShipmentIDs) == 0 {
		ws.pruneJob(src)
	}
	return edits, nil
}

var errNoChange = errors.New("no change")

func (s *Session) mutate(op string, fn func(ws *WorkingSet) ([]Edit, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.busy != "" {
		s.mu.Unlock()
		metrics.Mutations.WithLabelValues(op, "busy").Inc()
		return ErrBusy
	}
	next := s.ws.clone()
	edits, err := fn(&next)
	if errors.Is(err, errNoChange) {
		s.mu.Unlock()
		metrics.Mutations.WithLabelValues(op, "unchanged").Inc()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		result := "rejected"
		if IsNoOp(err) {
			result = "not_found"
		}
		metrics.Mutations.WithLabelValues(op, result).Inc()
		return err
	}
	next.IsStale = true
	s.ws = next
	s.edits = append(s.edits, edits...)
	s.touched = s.now()
	s.projectLocked()
	evt := s.eventLocked(EventChanged, op, nil)
	s.mu.Unlock()
	metrics.Mutations.WithLabelValues(op, "applied").Inc()
	s.emit(evt)
	return nil
}

func (s *Session) writable(j model.Job) error {
	if s.dispatched[j.JobID] || j.Status == model.JobDispatched {
		return ErrJobDispatched
	}
	return nil
}

func (s *Session) snapshotFor(driverID string) (model.DriverSnapshot, error) {
	if d, ok := s.drivers[driverID]; ok {
		return d.Snapshot(), nil
	}
	if len(s.drivers) > 0 || driverID == "" {
		return model.DriverSnapshot{}, ErrDriverNotFound
	}
	return model.DriverSnapshot{ID: driverID, Role: "Driver"}, nil
}

// remember records pool records so shipments removed from a job come back
// with their original details.
func (s *Session) remember(ws WorkingSet) {
	for _, u := range ws.UnassignedShipments {
		s.catalog[u.ID] = transform.CopyShipment(u.Shipment)
	}
}

// projectLocked redraws the marker layer: the selected job's route, or the
// unassigned pool when nothing is selected.
func (s *Session) projectLocked() {
	if i := s.ws.jobIndex(s.ws.SelectedJobID); i >= 0 && s.ws.SelectedJobID != "" {
		s.layer.SetMarkers(markers.FromVisits(s.ws.Jobs[i].Visits))
		return
	}
	ships := make([]model.Shipment, 0, len(s.ws.UnassignedShipments))
	for _, u := range s.ws.UnassignedShipments {
		ships = append(ships, u.Shipment)
	}
	s.layer.SetMarkers(markers.FromShipments(ships))
}

func (s *Session) eventLocked(typ, op string, data any) Event {
	return Event{Type: typ, SessionID: s.id, Op: op, Stale: s.ws.IsStale, At: s.now().UTC(), Data: data}
}

func (s *Session) emit(e Event) {
	if s.notify != nil {
		s.notify(e)
	}
}

// Close tears the session down. Results of calls still in flight are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.edits = nil
	s.layer.Clear()
	evt := s.eventLocked(EventClosed, "close", nil)
	s.mu.Unlock()
	s.emit(evt)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// memberSet checks every id is in have and returns ids as a set.
func memberSet(have, ids []string) (map[string]bool, error) {
	in := make(map[string]bool, len(have))
	for _, h := range have {
		in[h] = true
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !in[id] {
			return nil, ErrShipmentNotFound
		}
		set[id] = true
	}
	return set, nil
}
