package draft

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/dispatch"
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/transform"
)

func f64(v float64) *float64 { return &v }

func shipment(id string, lat, lng float64) model.Shipment {
	return model.Shipment{
		ID:         id,
		Status:     model.ShipmentNew,
		SyncStatus: model.SyncSynced,
		TaskType:   model.TaskTypeDropoff,
		Address:    model.Address{Line: id + " street", Lat: f64(lat), Lng: f64(lng), Status: model.AddressSuccess},
		Item:       model.Item{Qty: 1, Amount: 10},
	}
}

func visit(seq int, lat, lng float64, ids ...string) model.Visit {
	v := model.Visit{
		VisitID:       "v-" + ids[0],
		SequenceOrder: seq,
		Address:       model.VisitAddress{Line: ids[0] + " street", Point: model.NewPoint(lat, lng)},
		ShipmentIDs:   ids,
	}
	for _, id := range ids {
		v.Tasks = append(v.Tasks, model.Task{
			TaskID:       "t-" + id,
			ShipmentID:   id,
			Status:       "New",
			ShipmentType: model.ShipmentTypeWarehouseToCustomer,
			Type:         model.TaskDropoff,
		})
	}
	return v
}

func job(id, driver string, visits ...model.Visit) model.Job {
	return model.Job{
		JobID:       id,
		DriverID:    driver,
		Driver:      model.DriverSnapshot{ID: driver},
		Visits:      visits,
		ShipmentIDs: model.FlattenShipmentIDs(visits),
		Status:      model.JobDraft,
	}
}

func unassigned(ss ...model.Shipment) []model.UnassignedShipment {
	out := []model.UnassignedShipment{}
	for _, s := range ss {
		out = append(out, model.UnassignedShipment{Shipment: s})
	}
	return out
}

var roster = []model.Driver{
	{ID: "d1", Name: "Ana", Status: model.DriverActive},
	{ID: "d2", Name: "Bo", Status: model.DriverActive},
	{ID: "d3", Name: "Cy", Status: model.DriverActive},
}

// fixture: job A (d1) carries s1 and s2, job B (d2) carries s4, s3 is unassigned.
func fixture(t *testing.T) (*Session, *[]Event) {
	t.Helper()
	res := transform.Result{
		Value: []model.Job{
			job("A", "d1", visit(1, 10, 20, "s1"), visit(2, 11, 21, "s2")),
			job("B", "d2", visit(1, 12, 22, "s4")),
		},
		UnassignedShipments: unassigned(shipment("s3", 13, 23)),
	}
	var mu sync.Mutex
	events := []Event{}
	s := NewSession(res, Options{ID: "sess", Owner: "ops", Drivers: roster, Notify: func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}})
	return s, &events
}

func ids(ws WorkingSet) []string {
	out := ws.AllShipmentIDs()
	sort.Strings(out)
	return out
}

func unassignedIDs(ws WorkingSet) []string {
	out := []string{}
	for _, u := range ws.UnassignedShipments {
		out = append(out, u.ID)
	}
	return out
}

func jobIDs(ws WorkingSet) []string {
	out := []string{}
	for _, j := range ws.Jobs {
		out = append(out, j.JobID)
	}
	return out
}

func TestRemoveShipmentsReturnsToPoolInOrder(t *testing.T) {
	s, events := fixture(t)
	require.NoError(t, s.RemoveShipments("A", []string{"s1"}))

	ws := s.Snapshot().WorkingSet
	assert.Equal(t, []string{"s2"}, ws.Jobs[0].ShipmentIDs)
	assert.Equal(t, []string{"s3", "s1"}, unassignedIDs(ws))
	assert.True(t, ws.IsStale)
	assert.Equal(t, "removed from job A", ws.UnassignedShipments[1].Reason)
	assert.Equal(t, []Edit{{Kind: EditUnassign, JobID: "A", ShipmentIDs: []string{"s1"}}}, s.PendingEdits())
	require.NotEmpty(t, *events)
	assert.Equal(t, EventChanged, (*events)[len(*events)-1].Type)
}

func TestRemoveLastShipmentPrunesJob(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.SelectJobForMap("B"))
	require.NoError(t, s.RemoveShipments("B", []string{"s4"}))

	ws := s.Snapshot().WorkingSet
	assert.Equal(t, []string{"A"}, jobIDs(ws))
	assert.Empty(t, ws.SelectedJobID)
	for _, j := range ws.Jobs {
		assert.NotEmpty(t, j.ShipmentIDs)
	}
	// s4 had no pool record; it is rebuilt from the route.
	u := ws.UnassignedShipments[1]
	assert.Equal(t, "s4", u.ID)
	assert.Equal(t, model.TaskTypeDropoff, u.TaskType)
	require.NotNil(t, u.Address.Lat)
	assert.Equal(t, 12.0, *u.Address.Lat)
}

func TestNotFoundIsDistinguishableNoOp(t *testing.T) {
	s, events := fixture(t)
	before := s.Snapshot().WorkingSet
	n := len(*events)

	err := s.RemoveShipments("nope", []string{"s1"})
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.True(t, IsNoOp(err))

	err = s.RemoveShipments("A", []string{"s9"})
	assert.ErrorIs(t, err, ErrShipmentNotFound)
	assert.True(t, IsNoOp(err))

	assert.ErrorIs(t, s.ReassignJob("nope", "d2"), ErrJobNotFound)
	assert.ErrorIs(t, s.AssignToJob([]string{"s9"}, Pool, "A"), ErrShipmentNotFound)
	assert.ErrorIs(t, s.SelectJobForMap("nope"), ErrJobNotFound)
	assert.ErrorIs(t, s.AssignToDriver([]string{"s3"}, Pool, "d3"), ErrNoJobForDriver)

	assert.Equal(t, before, s.Snapshot().WorkingSet)
	assert.False(t, s.Stale())
	assert.Len(t, *events, n)
}

func TestReassignJob(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.ReassignJob("A", "d3"))
	ws := s.Snapshot().WorkingSet
	assert.Equal(t, "d3", ws.Jobs[0].DriverID)
	assert.Equal(t, "Cy", ws.Jobs[0].Driver.Username)
	assert.Equal(t, "Driver", ws.Jobs[0].Driver.Role)
	assert.True(t, ws.IsStale)
	assert.Equal(t, []Edit{{Kind: EditChangeDriver, JobID: "A", DriverID: "d3", VisitIDs: []string{"v-s1", "v-s2"}}}, s.PendingEdits())

	assert.ErrorIs(t, s.ReassignJob("A", "ghost"), ErrDriverNotFound)
}

func TestReassignSameDriverIsNotAnEdit(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.ReassignJob("A", "d1"))
	assert.False(t, s.Stale())
	assert.Empty(t, s.PendingEdits())
}

func TestAssignToJobFromPoolAndBetweenJobs(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.AssignToJob([]string{"s3"}, Pool, "B"))
	ws := s.Snapshot().WorkingSet
	assert.Equal(t, []string{"s4", "s3"}, ws.Jobs[1].ShipmentIDs)
	assert.Empty(t, ws.UnassignedShipments)
	assert.Equal(t, 2, ws.Jobs[1].Visits[1].SequenceOrder)

	require.NoError(t, s.AssignToJob([]string{"s2"}, "A", "B"))
	ws = s.Snapshot().WorkingSet
	assert.Equal(t, []string{"s1"}, ws.Jobs[0].ShipmentIDs)
	assert.Equal(t, []string{"s4", "s3", "s2"}, ws.Jobs[1].ShipmentIDs)
	assert.Equal(t, "v-s2", ws.Jobs[1].Visits[2].VisitID, "moved visit keeps its id")
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids(ws))

	assert.Equal(t, []EditKind{EditManualAssign, EditUnassign, EditManualAssign}, kinds(s.PendingEdits()))
}

func kinds(es []Edit) []EditKind {
	out := []EditKind{}
	for _, e := range es {
		out = append(out, e.Kind)
	}
	return out
}

func TestAssignToDriverAndToNewJobAreDistinct(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.AssignToDriver([]string{"s3"}, Pool, "d2"))
	ws := s.Snapshot().WorkingSet
	require.Len(t, ws.Jobs, 2)
	assert.Contains(t, ws.Jobs[1].ShipmentIDs, "s3")

	require.NoError(t, s.AssignToNewJob([]string{"s1"}, "A", "d2"))
	ws = s.Snapshot().WorkingSet
	require.Len(t, ws.Jobs, 3)
	nj := ws.Jobs[2]
	assert.True(t, nj.Local)
	assert.Equal(t, "d2", nj.DriverID)
	assert.Equal(t, []string{"s1"}, nj.ShipmentIDs)
	assert.Equal(t, "manual", nj.OptimizationDetails.Provider)
	assert.Equal(t, []string{"s2"}, ws.Jobs[0].ShipmentIDs)

	pending := s.PendingEdits()
	last := pending[len(pending)-1]
	assert.Equal(t, Edit{Kind: EditManualAssign, DriverID: "d2", ShipmentIDs: []string{"s1"}, DepartureTime: nj.DepartureTime}, last)
}

func TestMoveIsAtomic(t *testing.T) {
	s, _ := fixture(t)
	before := s.Snapshot().WorkingSet

	// s9 does not exist in A: nothing of s1 may move.
	err := s.AssignToJob([]string{"s1", "s9"}, "A", "B")
	assert.ErrorIs(t, err, ErrShipmentNotFound)
	assert.ErrorIs(t, s.AssignToJob([]string{"s1"}, "A", "A"), ErrSameJob)
	assert.ErrorIs(t, s.AssignToJob(nil, "A", "B"), ErrEmptySelection)
	assert.ErrorIs(t, s.AssignToNewJob([]string{"s1"}, "A", "ghost"), ErrDriverNotFound)

	assert.Equal(t, before, s.Snapshot().WorkingSet)
	assert.Empty(t, s.PendingEdits())
}

func TestDispatchedJobsAreReadOnly(t *testing.T) {
	res := transform.Result{
		Value: []model.Job{
			job("A", "d1", visit(1, 10, 20, "s1")),
			job("B", "d2", visit(1, 12, 22, "s4")),
		},
		UnassignedShipments: unassigned(shipment("s3", 13, 23)),
	}
	res.Value[1].Status = model.JobDispatched
	s := NewSession(res, Options{Drivers: roster})

	assert.ErrorIs(t, s.RemoveShipments("B", []string{"s4"}), ErrJobDispatched)
	assert.ErrorIs(t, s.ReassignJob("B", "d3"), ErrJobDispatched)
	assert.ErrorIs(t, s.AssignToJob([]string{"s3"}, Pool, "B"), ErrJobDispatched)
	assert.ErrorIs(t, s.AssignToJob([]string{"s4"}, "B", "A"), ErrJobDispatched)
	assert.ErrorIs(t, s.AssignToDriver([]string{"s3"}, Pool, "d2"), ErrNoJobForDriver)
	assert.False(t, s.Stale())
	assert.NoError(t, s.SelectJobForMap("B"), "selection stays allowed")
}

func TestMarkersFollowSelection(t *testing.T) {
	s, _ := fixture(t)
	ms := s.Markers()
	require.Len(t, ms, 1)
	assert.Equal(t, "s3", ms[0].ID)

	require.NoError(t, s.SelectJobForMap("A"))
	ms = s.Markers()
	require.Len(t, ms, 2)
	assert.Equal(t, "v-s1", ms[0].ID)
	assert.Equal(t, 1, ms[0].SequenceIndex)
	assert.Equal(t, 2, ms[1].SequenceIndex)
	assert.False(t, s.Stale(), "selection is not an edit")

	require.NoError(t, s.SelectJobForMap(""))
	assert.Equal(t, "s3", s.Markers()[0].ID)
}

type fakeRefetcher struct {
	res   transform.Result
	err   error
	calls [][]string
	hold  chan struct{}
}

func (f *fakeRefetcher) RefetchDrafts(_ context.Context, ids []string) (transform.Result, error) {
	f.calls = append(f.calls, ids)
	if f.hold != nil {
		<-f.hold
	}
	return f.res, f.err
}

func TestRefreshClearsStale(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.RemoveShipments("A", []string{"s1"}))
	require.True(t, s.Stale())

	r := &fakeRefetcher{res: transform.Result{
		Value:               []model.Job{job("A", "d1", visit(1, 11, 21, "s2"))},
		UnassignedShipments: []model.UnassignedShipment{},
	}}
	require.NoError(t, s.Refresh(context.Background(), r))
	assert.Equal(t, [][]string{{"A", "B"}}, r.calls)
	ws := s.Snapshot().WorkingSet
	assert.False(t, ws.IsStale)
	assert.Equal(t, []string{"A"}, jobIDs(ws))
	assert.Empty(t, ws.UnassignedShipments)
	assert.Empty(t, s.PendingEdits())
}

func TestFailedRefreshKeepsState(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.RemoveShipments("A", []string{"s1"}))
	before := s.Snapshot().WorkingSet

	err := s.Refresh(context.Background(), &fakeRefetcher{err: errors.New("boom")})
	assert.Error(t, err)
	assert.Equal(t, before, s.Snapshot().WorkingSet)
	assert.True(t, s.Stale())
	assert.NoError(t, s.RemoveShipments("A", []string{"s2"}), "busy mark released")
}

func TestMutationsRejectedWhileBusy(t *testing.T) {
	s, _ := fixture(t)
	token, _, err := s.BeginRefresh()
	require.NoError(t, err)

	assert.ErrorIs(t, s.RemoveShipments("A", []string{"s1"}), ErrBusy)
	_, _, err = s.BeginRefresh()
	assert.ErrorIs(t, err, ErrBusy)
	assert.NoError(t, s.SelectJobForMap("A"))
	assert.True(t, s.Snapshot().Pending)

	s.AbortRefresh(token)
	assert.False(t, s.Snapshot().Pending)
	assert.NoError(t, s.RemoveShipments("A", []string{"s1"}))
}

func TestSupersededResultIsDropped(t *testing.T) {
	s, _ := fixture(t)
	old, _, err := s.BeginRefresh()
	require.NoError(t, err)
	s.AbortRefresh(old)
	cur, _, err := s.BeginRefresh()
	require.NoError(t, err)

	assert.ErrorIs(t, s.ApplyRefresh(old, transform.Result{Value: []model.Job{}}), ErrStaleResult)
	assert.Len(t, s.Snapshot().WorkingSet.Jobs, 2)
	require.NoError(t, s.ApplyRefresh(cur, transform.Result{Value: []model.Job{}, UnassignedShipments: []model.UnassignedShipment{}}))
	assert.Empty(t, s.Snapshot().WorkingSet.Jobs)
}

func TestCloseDiscardsLateResults(t *testing.T) {
	s, events := fixture(t)
	r := &fakeRefetcher{hold: make(chan struct{}), res: transform.Result{Value: []model.Job{}}}
	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background(), r) }()

	require.Eventually(t, func() bool { return s.Snapshot().Pending }, time.Second, time.Millisecond)
	s.Close()
	close(r.hold)
	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Len(t, s.Snapshot().WorkingSet.Jobs, 2)
	assert.Empty(t, s.Markers())
	assert.Equal(t, EventClosed, (*events)[len(*events)-1].Type)
	assert.ErrorIs(t, s.RemoveShipments("A", []string{"s1"}), ErrClosed)
}

type fakeCommitter struct {
	sent []string
	acks map[string]dispatch.Ack
}

func (f *fakeCommitter) DispatchAll(_ context.Context, ids []string) []dispatch.Ack {
	f.sent = append(f.sent, ids...)
	out := make([]dispatch.Ack, 0, len(ids))
	for _, id := range ids {
		if a, ok := f.acks[id]; ok {
			out = append(out, a)
			continue
		}
		out = append(out, dispatch.Ack{JobID: id, Success: true})
	}
	return out
}

type heldCommitter struct {
	entered chan struct{}
	release chan struct{}
}

func (h *heldCommitter) DispatchAll(_ context.Context, ids []string) []dispatch.Ack {
	close(h.entered)
	<-h.release
	out := make([]dispatch.Ack, 0, len(ids))
	for _, id := range ids {
		out = append(out, dispatch.Ack{JobID: id, Success: true})
	}
	return out
}

func TestReplaceRefusedDuringCommit(t *testing.T) {
	s, _ := fixture(t)
	c := &heldCommitter{entered: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := s.Commit(context.Background(), c, []string{"A"})
		done <- err
	}()
	<-c.entered

	assert.ErrorIs(t, s.replace(transform.Result{Value: []model.Job{}}), ErrBusy)
	// the in-flight guard survives the refused replace
	assert.ErrorIs(t, s.RemoveShipments("B", []string{"s4"}), ErrBusy)
	assert.True(t, s.Snapshot().Pending)

	close(c.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"A", "B"}, jobIDs(s.Snapshot().WorkingSet))
	assert.NoError(t, s.RemoveShipments("B", []string{"s4"}))
}

func TestCommitPartialFailure(t *testing.T) {
	s, events := fixture(t)
	c := &fakeCommitter{acks: map[string]dispatch.Ack{"B": {JobID: "B", Message: "driver offline"}}}

	acks, err := s.Commit(context.Background(), c, []string{"A", "B", "Z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, c.sent)
	require.Len(t, acks, 3)
	assert.True(t, acks[0].Success)
	assert.Equal(t, "driver offline", acks[1].Message)
	assert.False(t, acks[2].Success)

	snap := s.Snapshot()
	assert.Equal(t, []string{"A"}, snap.Dispatched)
	assert.ErrorIs(t, s.RemoveShipments("A", []string{"s1"}), ErrJobDispatched)
	assert.NoError(t, s.RemoveShipments("B", []string{"s4"}))
	assert.Equal(t, EventDispatched, (*events)[len(*events)-2].Type)

	again, err := s.Commit(context.Background(), c, []string{"A"})
	assert.ErrorIs(t, err, ErrStale)
	assert.Nil(t, again)
}

func TestCommitRejectsLocalJobs(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.AssignToNewJob([]string{"s3"}, Pool, "d3"))
	local := s.Snapshot().WorkingSet.Jobs[2].JobID
	// Drop the stale flag by landing the same state.
	require.NoError(t, s.replace(transform.Result{Value: s.Snapshot().WorkingSet.Jobs}))

	c := &fakeCommitter{}
	acks, err := s.Commit(context.Background(), c, []string{local})
	require.NoError(t, err)
	assert.Empty(t, c.sent)
	assert.False(t, acks[0].Success)

	_, err = s.Commit(context.Background(), c, nil)
	assert.ErrorIs(t, err, ErrEmptySelection)
}

type fakeEdits struct {
	calls  []string
	failAt int
	n      int
}

func (f *fakeEdits) step(name string) error {
	f.n++
	f.calls = append(f.calls, name)
	if f.failAt == f.n {
		return &backend.APIError{Status: 422, Message: "route locked"}
	}
	return nil
}

func (f *fakeEdits) ManualAssign(_ context.Context, req backend.ManualAssignRequest) (backend.Ack, error) {
	if err := f.step("manual:" + req.JobID); err != nil {
		return backend.Ack{}, err
	}
	id := req.JobID
	if id == "" {
		id = "J-new"
	}
	return backend.Ack{Success: true, JobID: id}, nil
}

func (f *fakeEdits) ChangeDriver(_ context.Context, req backend.ChangeDriverRequest) (backend.Ack, error) {
	return backend.Ack{Success: true}, f.step("driver:" + req.JobID)
}

func (f *fakeEdits) Unassign(_ context.Context, jobID string, _ []string) (backend.Ack, error) {
	return backend.Ack{Success: true}, f.step("unassign:" + jobID)
}

func TestReconcileReplaysInOrder(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.ReassignJob("A", "d3"))
	require.NoError(t, s.AssignToJob([]string{"s3"}, Pool, "B"))
	require.NoError(t, s.AssignToNewJob([]string{"s1"}, "A", "d2"))

	be := &fakeEdits{}
	r := &fakeRefetcher{res: transform.Result{Value: []model.Job{job("J-new", "d2", visit(1, 10, 20, "s1"))}}}
	rep, err := s.Reconcile(context.Background(), be, r, 480)
	require.NoError(t, err)
	assert.Equal(t, []string{"driver:A", "manual:B", "unassign:A", "manual:"}, be.calls)
	assert.Equal(t, 4, rep.Applied)
	assert.Equal(t, [][]string{{"A", "B", "J-new"}}, r.calls)
	assert.False(t, s.Stale())
	assert.Empty(t, s.PendingEdits())
}

func TestReconcileStopsAtFirstFailure(t *testing.T) {
	s, _ := fixture(t)
	require.NoError(t, s.RemoveShipments("A", []string{"s1"}))
	require.NoError(t, s.AssignToJob([]string{"s3"}, Pool, "B"))
	before := s.Snapshot().WorkingSet

	be := &fakeEdits{failAt: 2}
	rep, err := s.Reconcile(context.Background(), be, &fakeRefetcher{}, 480)
	assert.Error(t, err)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, "route locked", rep.Message)
	require.NotNil(t, rep.Failed)
	assert.Equal(t, EditManualAssign, rep.Failed.Kind)
	assert.Equal(t, before, s.Snapshot().WorkingSet)
	assert.Equal(t, []EditKind{EditManualAssign}, kinds(s.PendingEdits()))
}

// The full create flow: s2 has no geocode so only s1 is selectable; two
// drivers route through optimize; removing s1 leaves an empty, stale set.
func TestOptimizeThenRemoveScenario(t *testing.T) {
	s1 := shipment("s1", 10, 20)
	s2 := shipment("s2", 0, 0)
	s2.Address = model.Address{Line: "s2 street", Status: model.AddressFailed}
	var picked []string
	for _, sh := range []model.Shipment{s1, s2} {
		if sh.Selectable() {
			picked = append(picked, sh.ID)
		}
	}
	require.Equal(t, []string{"s1"}, picked)

	req, err := dispatch.Build(dispatch.Selection{ShipmentIDs: picked, DriverIDs: []string{"d1", "d2"}})
	require.NoError(t, err)
	require.Equal(t, dispatch.KindOptimize, req.Kind)
	assert.Equal(t, []string{"s1"}, req.Optimize.ShipmentIDs)

	optimized := &model.OptimizeResult{
		Value: []model.Job{{
			JobID:    "jobD1",
			DriverID: "d1",
			Visits: []model.Visit{{
				VisitID:       "v1",
				SequenceOrder: 1,
				ShipmentIDs:   []string{"s1"},
				Address:       model.VisitAddress{Point: model.NewPoint(10, 20)},
				Tasks:         []model.Task{{TaskID: "t1", ShipmentID: "s1", ShipmentType: model.ShipmentTypeWarehouseToCustomer}},
			}},
		}},
		UnassignedShipments: []model.Shipment{},
	}
	res, err := transform.Normalize(transform.FromOptimized(optimized))
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, res.Value[0].ShipmentIDs)
	require.Empty(t, res.UnassignedShipments)

	s := NewSession(res, Options{Drivers: roster[:2]})
	require.NoError(t, s.RemoveShipments("jobD1", []string{"s1"}))

	ws := s.Snapshot().WorkingSet
	assert.Empty(t, ws.Jobs)
	assert.NotNil(t, ws.Jobs)
	assert.Equal(t, []string{"s1"}, unassignedIDs(ws))
	assert.True(t, ws.IsStale)
}

// Random edit sequences never lose or duplicate a shipment and never leave
// an empty job behind.
func TestConservationUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		s, _ := fixture(t)
		want := ids(s.Snapshot().WorkingSet)
		for step := 0; step < 40; step++ {
			ws := s.Snapshot().WorkingSet
			all := ws.AllShipmentIDs()
			pick := all[rng.Intn(len(all))]
			src := Pool
			for _, j := range ws.Jobs {
				for _, id := range j.ShipmentIDs {
					if id == pick {
						src = j.JobID
					}
				}
			}
			driver := roster[rng.Intn(len(roster))].ID
			var target string
			if len(ws.Jobs) > 0 {
				target = ws.Jobs[rng.Intn(len(ws.Jobs))].JobID
			}
			switch rng.Intn(5) {
			case 0:
				if src != Pool {
					_ = s.RemoveShipments(src, []string{pick})
				}
			case 1:
				_ = s.AssignToJob([]string{pick}, src, target)
			case 2:
				_ = s.AssignToDriver([]string{pick}, src, driver)
			case 3:
				_ = s.AssignToNewJob([]string{pick}, src, driver)
			case 4:
				if target != "" {
					_ = s.ReassignJob(target, driver)
				}
			}
			got := s.Snapshot().WorkingSet
			require.Equal(t, want, ids(got), "round %d step %d", round, step)
			for _, j := range got.Jobs {
				require.NotEmpty(t, j.ShipmentIDs)
				require.Equal(t, model.FlattenShipmentIDs(j.Visits), j.ShipmentIDs)
			}
		}
	}
}
