package draft

import (
	"context"
	"fmt"

	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/dispatch"
	"dispatchdesk/internal/transform"
)

type EditKind string

const (
	EditChangeDriver EditKind = "change_driver"
	EditUnassign     EditKind = "unassign"
	EditManualAssign EditKind = "manual_assign"
)

// Edit is a local change the backend has not seen yet.
type Edit struct {
	Kind          EditKind `json:"kind"`
	JobID         string   `json:"jobId,omitempty"`
	DriverID      string   `json:"driverId,omitempty"`
	ShipmentIDs   []string `json:"shipmentIds,omitempty"`
	VisitIDs      []string `json:"visitIds,omitempty"`
	DepartureTime string   `json:"departureTime,omitempty"`
}

// PendingEdits lists the edits Reconcile would send, in order. Local jobs
// appear last as manual assignments without a job id.
func (s *Session) PendingEdits() []Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Session) pendingLocked() []Edit {
	out := make([]Edit, 0, len(s.edits))
	out = append(out, s.edits...)
	for _, j := range s.ws.Jobs {
		if j.Local && len(j.ShipmentIDs) > 0 {
			out = append(out, Edit{
				Kind:          EditManualAssign,
				DriverID:      j.DriverID,
				ShipmentIDs:   append([]string{}, j.ShipmentIDs...),
				DepartureTime: j.DepartureTime,
			})
		}
	}
	return out
}

// Refetcher reads back the draft state of jobs.
type Refetcher interface {
	RefetchDrafts(ctx context.Context, jobIDs []string) (transform.Result, error)
}

// replace swaps in a new working set wholesale and clears the stale flag and
// the pending edits. It is refused while a backend call is in flight, whose
// busy flag it would otherwise drop.
func (s *Session) replace(res transform.Result) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.busy != "" {
		s.mu.Unlock()
		return ErrBusy
	}
	s.token++
	s.replaceLocked(res)
	evt := s.eventLocked(EventRefreshed, "replace", nil)
	s.mu.Unlock()
	s.emit(evt)
	return nil
}

func (s *Session) replaceLocked(res transform.Result) {
	selected := s.ws.SelectedJobID
	s.ws = newWorkingSet(res)
	if s.ws.jobIndex(selected) >= 0 {
		s.ws.SelectedJobID = selected
	}
	s.edits = nil
	s.busy = ""
	s.remember(s.ws)
	s.touched = s.now()
	s.projectLocked()
}

// BeginRefresh marks the session busy and returns the token the result must
// carry plus the backend job ids to read back.
func (s *Session) BeginRefresh() (uint64, []string, error) {
	return s.begin("refresh")
}

func (s *Session) begin(op string) (uint64, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, ErrClosed
	}
	if s.busy != "" {
		return 0, nil, ErrBusy
	}
	s.token++
	s.busy = op
	return s.token, s.backendJobIDsLocked(), nil
}

func (s *Session) backendJobIDsLocked() []string {
	ids := []string{}
	for _, j := range s.ws.Jobs {
		if !j.Local && s.writable(j) == nil {
			ids = append(ids, j.JobID)
		}
	}
	return ids
}

// ApplyRefresh lands a refresh result. Results for an older token or for a
// closed session are dropped.
func (s *Session) ApplyRefresh(token uint64, res transform.Result) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if token != s.token {
		s.mu.Unlock()
		return ErrStaleResult
	}
	s.replaceLocked(res)
	evt := s.eventLocked(EventRefreshed, "refresh", nil)
	s.mu.Unlock()
	s.emit(evt)
	return nil
}

// AbortRefresh releases the busy mark after a failed refresh; the working set
// is left as it was.
func (s *Session) AbortRefresh(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == s.token {
		s.busy = ""
	}
}

// Refresh re-reads the session's jobs from the backend and replaces the
// working set. Local edits that were not reconciled are discarded.
func (s *Session) Refresh(ctx context.Context, r Refetcher) error {
	token, ids, err := s.BeginRefresh()
	if err != nil {
		return err
	}
	res, err := r.RefetchDrafts(ctx, ids)
	if err != nil {
		s.AbortRefresh(token)
		return err
	}
	return s.ApplyRefresh(token, res)
}

// DispatchAll is the commit side of the dispatch package.
type DispatchAll interface {
	DispatchAll(ctx context.Context, jobIDs []string) []dispatch.Ack
}

// Commit dispatches jobIDs. Jobs the backend accepted become read-only; the
// rest of the working set is not modified. Jobs that are unknown, local or
// already dispatched get a failed ack without a backend call.
func (s *Session) Commit(ctx context.Context, c DispatchAll, jobIDs []string) ([]dispatch.Ack, error) {
	ids := dedupe(jobIDs)
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case s.busy != "":
		s.mu.Unlock()
		return nil, ErrBusy
	case s.ws.IsStale:
		s.mu.Unlock()
		return nil, ErrStale
	case len(ids) == 0:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no jobs selected", ErrEmptySelection)
	}
	acks := make([]dispatch.Ack, len(ids))
	var send []string
	slot := map[string]int{}
	for i, id := range ids {
		k := s.ws.jobIndex(id)
		switch {
		case k < 0:
			acks[i] = dispatch.Ack{JobID: id, Message: ErrJobNotFound.Error()}
		case s.ws.Jobs[k].Local:
			acks[i] = dispatch.Ack{JobID: id, Message: "job has not been saved; reconcile before dispatching"}
		case s.writable(s.ws.Jobs[k]) != nil:
			acks[i] = dispatch.Ack{JobID: id, Message: ErrJobDispatched.Error()}
		default:
			slot[id] = i
			send = append(send, id)
		}
	}
	if len(send) == 0 {
		s.mu.Unlock()
		return acks, nil
	}
	s.busy = "commit"
	s.mu.Unlock()

	results := c.DispatchAll(ctx, send)

	s.mu.Lock()
	s.busy = ""
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	var ok []string
	for _, r := range results {
		i, found := slot[r.JobID]
		if !found {
			continue
		}
		acks[i] = r
		if r.Success {
			s.dispatched[r.JobID] = true
			ok = append(ok, r.JobID)
		}
	}
	for id, i := range slot {
		if acks[i].JobID == "" {
			acks[i] = dispatch.Ack{JobID: id, Message: "no result returned for this job"}
		}
	}
	s.touched = s.now()
	evt := s.eventLocked(EventDispatched, "commit", map[string]any{"acks": acks, "dispatched": ok})
	s.mu.Unlock()
	s.emit(evt)
	return acks, nil
}

// EditBackend applies pending edits.
type EditBackend interface {
	ManualAssign(ctx context.Context, req backend.ManualAssignRequest) (backend.Ack, error)
	ChangeDriver(ctx context.Context, req backend.ChangeDriverRequest) (backend.Ack, error)
	Unassign(ctx context.Context, jobID string, shipmentIDs []string) (backend.Ack, error)
}

// ReconcileReport says how far a reconcile got.
type ReconcileReport struct {
	Applied int    `json:"applied"`
	Total   int    `json:"total"`
	Failed  *Edit  `json:"failed,omitempty"`
	Message string `json:"message,omitempty"`
}

// Reconcile replays the pending edits against the backend in order and then
// refreshes. It stops at the first failing edit; edits already applied are
// dropped from the log and the working set is left untouched.
func (s *Session) Reconcile(ctx context.Context, be EditBackend, r Refetcher, workingMinutes int) (ReconcileReport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ReconcileReport{}, ErrClosed
	}
	if s.busy != "" {
		s.mu.Unlock()
		return ReconcileReport{}, ErrBusy
	}
	edits := s.pendingLocked()
	logged := len(s.edits)
	var locals []string
	for _, j := range s.ws.Jobs {
		if j.Local && len(j.ShipmentIDs) > 0 {
			locals = append(locals, j.JobID)
		}
	}
	ids := s.backendJobIDsLocked()
	s.token++
	token := s.token
	s.busy = "reconcile"
	s.mu.Unlock()

	rep := ReconcileReport{Total: len(edits)}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	saved := map[string]string{}
	for i, e := range edits {
		ack, err := applyEdit(ctx, be, e, workingMinutes)
		if err != nil {
			failed := e
			rep.Failed = &failed
			rep.Message = dispatch.UserMessage(err)
			s.mu.Lock()
			if !s.closed && token == s.token {
				s.settleLocked(min(i, logged), saved)
			}
			s.mu.Unlock()
			return rep, err
		}
		rep.Applied++
		if i >= logged && ack.JobID != "" {
			saved[locals[i-logged]] = ack.JobID
		}
		if ack.JobID != "" && !seen[ack.JobID] {
			seen[ack.JobID] = true
			ids = append(ids, ack.JobID)
		}
	}
	res, err := r.RefetchDrafts(ctx, ids)
	if err != nil {
		s.mu.Lock()
		if !s.closed && token == s.token {
			s.settleLocked(logged, saved)
		}
		s.mu.Unlock()
		rep.Message = dispatch.UserMessage(err)
		return rep, err
	}
	return rep, s.ApplyRefresh(token, res)
}

// settleLocked drops the first n logged edits and gives local jobs the
// backend saved their backend ids so they are not created twice.
func (s *Session) settleLocked(n int, saved map[string]string) {
	s.edits = append([]Edit(nil), s.edits[n:]...)
	for i := range s.ws.Jobs {
		if id, ok := saved[s.ws.Jobs[i].JobID]; ok {
			if s.ws.SelectedJobID == s.ws.Jobs[i].JobID {
				s.ws.SelectedJobID = id
			}
			s.ws.Jobs[i].JobID = id
			s.ws.Jobs[i].Local = false
		}
	}
	s.busy = ""
}

func applyEdit(ctx context.Context, be EditBackend, e Edit, workingMinutes int) (backend.Ack, error) {
	switch e.Kind {
	case EditChangeDriver:
		return be.ChangeDriver(ctx, backend.ChangeDriverRequest{JobID: e.JobID, DriverID: e.DriverID, VisitIDs: e.VisitIDs})
	case EditUnassign:
		return be.Unassign(ctx, e.JobID, e.ShipmentIDs)
	case EditManualAssign:
		return be.ManualAssign(ctx, backend.ManualAssignRequest{
			ShipmentIDs:               e.ShipmentIDs,
			DriverID:                  e.DriverID,
			JobID:                     e.JobID,
			DepartureTime:             e.DepartureTime,
			WorkingTimeMinutesDefault: workingMinutes,
		})
	}
	return backend.Ack{}, fmt.Errorf("unknown edit kind %q", e.Kind)
}
