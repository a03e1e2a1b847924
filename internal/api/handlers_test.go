package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/config"
	"dispatchdesk/internal/dispatch"
	"dispatchdesk/internal/draft"
	"dispatchdesk/internal/events"
	"dispatchdesk/internal/logging"
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/pool"
	"dispatchdesk/internal/store"
	"dispatchdesk/internal/transform"
	"dispatchdesk/internal/webhooks"
)

func fp(f float64) *float64 { return &f }

// fakeBackend is an in-memory dispatch backend speaking the REST contract.
type fakeBackend struct {
	mu          sync.Mutex
	drivers     []model.Driver
	parcels     []model.Parcel
	jobs        map[string]model.RawJob
	optimize    model.OptimizeResult
	dispatchErr map[string]string
	calls       []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		drivers: []model.Driver{
			{ID: "d1", Name: "Ana", Status: model.DriverActive},
			{ID: "d2", Name: "Bo", Status: model.DriverActive},
			{ID: "d3", Name: "Cy", Status: model.DriverActive},
		},
		parcels: []model.Parcel{
			{ID: "s1", Status: model.ShipmentNew, SyncStatus: model.SyncSynced,
				Address: &model.ParcelAddress{Line: "1 Main St", Lat: fp(10), Lng: fp(20), Status: model.AddressSuccess}},
			{ID: "s2", Status: model.ShipmentNew, SyncStatus: model.SyncSynced,
				Address: &model.ParcelAddress{Line: "nowhere", Status: model.AddressFailed}},
		},
		jobs:        map[string]model.RawJob{},
		dispatchErr: map[string]string{},
	}
}

func visitFor(id string, seq int, lat, lng float64) model.Visit {
	return model.Visit{
		VisitID: "v-" + id, SequenceOrder: seq,
		Address:     model.VisitAddress{Line: id, Point: model.NewPoint(lat, lng)},
		ShipmentIDs: []string{id},
		Tasks:       []model.Task{{TaskID: "t-" + id, ShipmentID: id, ShipmentType: "warehouse_to_customer"}},
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /drivers", func(w http.ResponseWriter, r *http.Request) {
		f.record("list_drivers")
		reply(w, model.Paged[model.Driver]{Value: f.drivers, Count: len(f.drivers)})
	})
	mux.HandleFunc("GET /shipments", func(w http.ResponseWriter, r *http.Request) {
		f.record("list_shipments")
		reply(w, model.Paged[model.Parcel]{Value: f.parcels, Count: len(f.parcels)})
	})
	mux.HandleFunc("POST /jobs/solo-assign", func(w http.ResponseWriter, r *http.Request) {
		f.record("solo_assign")
		reply(w, backend.Ack{JobID: "job-solo", Message: "assigned"})
	})
	mux.HandleFunc("POST /jobs/auto-assign-optimize", func(w http.ResponseWriter, r *http.Request) {
		f.record("optimize")
		f.mu.Lock()
		for _, j := range f.optimize.Value {
			f.jobs[j.JobID] = model.RawJob{JobID: j.JobID, DriverID: j.DriverID, Status: model.JobDraft,
				Driver: &model.RawDriver{ID: j.DriverID}, Visits: j.Visits}
		}
		out := f.optimize
		f.mu.Unlock()
		reply(w, out)
	})
	mux.HandleFunc("POST /jobs/visits/change-driver", func(w http.ResponseWriter, r *http.Request) {
		f.record("change_driver")
		var req backend.ChangeDriverRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		j := f.jobs[req.JobID]
		j.DriverID = req.DriverID
		j.Driver = &model.RawDriver{ID: req.DriverID}
		f.jobs[req.JobID] = j
		f.mu.Unlock()
		reply(w, backend.Ack{JobID: req.JobID})
	})
	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		f.record("list_jobs")
		f.mu.Lock()
		defer f.mu.Unlock()
		out := model.Paged[model.RawJob]{Value: []model.RawJob{}}
		for _, id := range r.URL.Query()["jobIds[]"] {
			if j, ok := f.jobs[id]; ok && j.Status == model.JobDraft {
				out.Value = append(out.Value, j)
			}
		}
		out.Count = len(out.Value)
		reply(w, out)
	})
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record("get_job")
		f.mu.Lock()
		j, ok := f.jobs[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			reply(w, map[string]string{"message": "job does not exist"})
			return
		}
		reply(w, j)
	})
	mux.HandleFunc("POST /jobs/dispatch", func(w http.ResponseWriter, r *http.Request) {
		f.record("dispatch_jobs")
		var req struct {
			JobIDs []string `json:"jobIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		var res []backend.DispatchResult
		for _, id := range req.JobIDs {
			if msg, bad := f.dispatchErr[id]; bad {
				res = append(res, backend.DispatchResult{JobID: id, Message: msg})
				continue
			}
			j := f.jobs[id]
			j.Status = model.JobDispatched
			f.jobs[id] = j
			res = append(res, backend.DispatchResult{JobID: id, Success: true})
		}
		reply(w, map[string]any{"results": res})
	})
	return mux
}

type harness struct {
	srv   *Server
	h     http.Handler
	store *store.Memory
	be    *fakeBackend
}

func newHarness(t *testing.T, mod func(*config.Config)) *harness {
	t.Helper()
	fb := newFakeBackend()
	bs := httptest.NewServer(fb.handler())
	t.Cleanup(bs.Close)

	cfg := config.Defaults()
	cfg.HTTP.RateRPS = 0
	if mod != nil {
		mod(cfg)
	}
	log := logging.Discard()
	client := backend.New(backend.Options{BaseURL: bs.URL, Logger: log})
	runner := transform.NewRunner(2)
	t.Cleanup(runner.Close)
	st := store.NewMemory()
	obs := NewDispatchObserver(st, webhooks.NewPublisher(st, log), events.Nop{}, log)
	s := NewServer(Deps{
		Config:    cfg,
		Pool:      pool.NewAdapter(client),
		Submitter: dispatch.NewSubmitter(client, runner),
		Committer: dispatch.NewCommitter(client, runner, dispatch.CommitterOptions{Observer: obs, Logger: log}),
		Edits:     client,
		Store:     st,
		Observer:  obs,
		Log:       log,
	})
	t.Cleanup(s.Sessions.CloseAll)
	return &harness{srv: s, h: s.Router(), store: st, be: fb}
}

func (h *harness) do(t *testing.T, method, path, who string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if op, role, ok := strings.Cut(who, ":"); ok {
		req.Header.Set("X-Operator", op)
		req.Header.Set("X-Role", role)
	}
	rr := httptest.NewRecorder()
	h.h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

type createdSession struct {
	Mode    dispatch.Kind  `json:"mode"`
	Session draft.Snapshot `json:"session"`
}

const ops = "ops:dispatcher"

func TestHealthReady(t *testing.T) {
	h := newHarness(t, nil)
	if rr := h.do(t, http.MethodGet, "/healthz", "", nil); rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/readyz", "", nil); rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/debug/info", "", nil); rr.Code != 200 {
		t.Fatalf("debug: got %d", rr.Code)
	}
}

func TestPoolShipmentsMarksSelectable(t *testing.T) {
	h := newHarness(t, nil)
	rr := h.do(t, http.MethodGet, "/v1/pool/shipments?page=1&size=10", ops, nil)
	if rr.Code != 200 {
		t.Fatalf("pool: %d %s", rr.Code, rr.Body)
	}
	out := decode[struct {
		Items         []pool.ShipmentCard `json:"items"`
		SelectableIDs []string            `json:"selectableIds"`
		Markers       []json.RawMessage   `json:"markers"`
	}](t, rr)
	if len(out.Items) != 2 || out.Items[1].Selectable {
		t.Fatalf("unexpected items %+v", out.Items)
	}
	if len(out.SelectableIDs) != 1 || out.SelectableIDs[0] != "s1" {
		t.Fatalf("selectable: %v", out.SelectableIDs)
	}
	if len(out.Markers) != 1 {
		t.Fatalf("the ungeocoded shipment must not be plotted, got %d markers", len(out.Markers))
	}
}

func TestDispatchRouting(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodPost, "/v1/dispatches", ops, dispatch.Selection{ShipmentIDs: []string{"s1"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("no drivers: want 400, got %d", rr.Code)
	}
	if n := len(h.be.calls); n != 0 {
		t.Fatalf("no backend call expected without drivers, got %v", h.be.calls)
	}

	rr = h.do(t, http.MethodPost, "/v1/dispatches", ops, dispatch.Selection{ShipmentIDs: []string{"s1"}, DriverIDs: []string{"d1"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("solo: %d %s", rr.Code, rr.Body)
	}
	out := decode[dispatch.Outcome](t, rr)
	if out.Kind != dispatch.KindSolo || out.Ack == nil || out.Ack.JobID != "job-solo" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if h.be.callCount("optimize") != 0 || h.be.callCount("solo_assign") != 1 {
		t.Fatalf("calls: %v", h.be.calls)
	}

	rr = h.do(t, http.MethodPost, "/v1/dispatches", "eve:viewer", dispatch.Selection{ShipmentIDs: []string{"s1"}, DriverIDs: []string{"d1"}})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer: want 403, got %d", rr.Code)
	}
}

// The pool holds s1 (geocoded) and s2 (geocode failed). Only s1 can be
// picked; optimizing it over d1 and d2 yields one job for d1. Removing s1
// leaves no jobs, s1 unassigned and the working set stale.
func TestEndToEndOptimizeThenRemove(t *testing.T) {
	h := newHarness(t, nil)
	h.be.optimize = model.OptimizeResult{
		Value:               []model.Job{{JobID: "job-d1", DriverID: "d1", Visits: []model.Visit{visitFor("s1", 1, 10, 20)}}},
		UnassignedShipments: []model.Shipment{},
	}

	pg := decode[struct {
		SelectableIDs []string `json:"selectableIds"`
	}](t, h.do(t, http.MethodGet, "/v1/pool/shipments", ops, nil))

	rr := h.do(t, http.MethodPost, "/v1/dispatches", ops, dispatch.Selection{ShipmentIDs: pg.SelectableIDs, DriverIDs: []string{"d1", "d2"}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body)
	}
	cs := decode[createdSession](t, rr)
	if cs.Mode != dispatch.KindOptimize || h.be.callCount("solo_assign") != 0 {
		t.Fatalf("want optimize, got %s (%v)", cs.Mode, h.be.calls)
	}
	ws := cs.Session.WorkingSet
	if len(ws.Jobs) != 1 || ws.Jobs[0].DriverID != "d1" || len(ws.UnassignedShipments) != 0 || ws.IsStale {
		t.Fatalf("unexpected working set %+v", ws)
	}

	base := "/v1/sessions/" + cs.Session.ID
	rr = h.do(t, http.MethodPost, base+"/remove", ops, removeRequest{JobID: "job-d1", ShipmentIDs: []string{"s1"}})
	if rr.Code != 200 {
		t.Fatalf("remove: %d %s", rr.Code, rr.Body)
	}
	ws = decode[draft.Snapshot](t, rr).WorkingSet
	if len(ws.Jobs) != 0 || len(ws.UnassignedShipments) != 1 || ws.UnassignedShipments[0].ID != "s1" || !ws.IsStale {
		t.Fatalf("after remove: %+v", ws)
	}
	if !strings.Contains(rr.Body.String(), `"jobs":[]`) {
		t.Fatalf("jobs must encode as an empty list: %s", rr.Body)
	}
}

func TestSessionReassignReconcileCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.be.optimize = model.OptimizeResult{Value: []model.Job{
		{JobID: "job-1", DriverID: "d1", Visits: []model.Visit{visitFor("s1", 1, 10, 20)}},
		{JobID: "job-2", DriverID: "d2", Visits: []model.Visit{visitFor("s3", 1, 11, 21)}},
	}}
	h.be.dispatchErr["job-2"] = "driver is offline"
	sub := h.do(t, http.MethodPost, "/v1/subscriptions", "root:admin", model.SubscriptionRequest{URL: "https://hooks.example/dispatch", Events: []string{HookJobsDispatched}})
	if sub.Code != http.StatusCreated {
		t.Fatalf("subscription: %d %s", sub.Code, sub.Body)
	}

	cs := decode[createdSession](t, h.do(t, http.MethodPost, "/v1/dispatches", ops,
		dispatch.Selection{ShipmentIDs: []string{"s1", "s3"}, DriverIDs: []string{"d1", "d2"}}))
	base := "/v1/sessions/" + cs.Session.ID

	rr := h.do(t, http.MethodPost, base+"/reassign", ops, reassignRequest{JobID: "job-1", DriverID: "d3"})
	if rr.Code != 200 || !decode[draft.Snapshot](t, rr).WorkingSet.IsStale {
		t.Fatalf("reassign: %d %s", rr.Code, rr.Body)
	}
	if rr := h.do(t, http.MethodPost, base+"/commit", ops, commitRequest{JobIDs: []string{"job-1"}}); rr.Code != http.StatusConflict {
		t.Fatalf("commit while stale: want 409, got %d", rr.Code)
	}

	rr = h.do(t, http.MethodPost, base+"/reconcile", ops, nil)
	if rr.Code != 200 {
		t.Fatalf("reconcile: %d %s", rr.Code, rr.Body)
	}
	rec := decode[struct {
		Report  draft.ReconcileReport `json:"report"`
		Session draft.Snapshot        `json:"session"`
	}](t, rr)
	if rec.Report.Applied != 1 || rec.Session.WorkingSet.IsStale || h.be.callCount("change_driver") != 1 {
		t.Fatalf("reconcile result %+v", rec)
	}
	for _, j := range rec.Session.WorkingSet.Jobs {
		if j.JobID == "job-1" && j.DriverID != "d3" {
			t.Fatalf("driver change not refetched: %+v", j)
		}
	}

	rr = h.do(t, http.MethodPost, base+"/commit", ops, commitRequest{JobIDs: []string{"job-1", "job-2"}})
	if rr.Code != 200 {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body)
	}
	acks := decode[struct {
		Acks []dispatch.Ack `json:"acks"`
	}](t, rr).Acks
	if len(acks) != 2 || !acks[0].Success || acks[1].Success || acks[1].Message != "driver is offline" {
		t.Fatalf("acks: %+v", acks)
	}

	if rr := h.do(t, http.MethodPost, base+"/reassign", ops, reassignRequest{JobID: "job-1", DriverID: "d2"}); rr.Code != http.StatusConflict {
		t.Fatalf("dispatched job must be read-only, got %d", rr.Code)
	}

	log := decode[struct {
		Items []model.DispatchRecord `json:"items"`
	}](t, h.do(t, http.MethodGet, "/v1/dispatch-log?sessionId="+cs.Session.ID, ops, nil))
	if len(log.Items) != 2 || log.Items[0].Operator != "ops" {
		t.Fatalf("dispatch log: %+v", log.Items)
	}
	dl := decode[struct {
		Items []store.WebhookDelivery `json:"items"`
	}](t, h.do(t, http.MethodGet, "/v1/admin/webhook-deliveries", "root:admin", nil))
	if len(dl.Items) != 1 || dl.Items[0].EventType != HookJobsDispatched {
		t.Fatalf("deliveries: %+v", dl.Items)
	}
}

func TestNoOpEditIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.be.optimize = model.OptimizeResult{Value: []model.Job{{JobID: "job-1", DriverID: "d1", Visits: []model.Visit{visitFor("s1", 1, 10, 20)}}}}
	cs := decode[createdSession](t, h.do(t, http.MethodPost, "/v1/dispatches", ops,
		dispatch.Selection{ShipmentIDs: []string{"s1"}, DriverIDs: []string{"d1", "d2"}}))
	base := "/v1/sessions/" + cs.Session.ID

	rr := h.do(t, http.MethodPost, base+"/remove", ops, removeRequest{JobID: "nope", ShipmentIDs: []string{"s1"}})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown job: want 404, got %d", rr.Code)
	}
	snap := decode[draft.Snapshot](t, h.do(t, http.MethodGet, base, ops, nil))
	if snap.WorkingSet.IsStale || len(snap.WorkingSet.Jobs) != 1 {
		t.Fatalf("no-op must not touch the working set: %+v", snap.WorkingSet)
	}

	rr = h.do(t, http.MethodPost, base+"/assign-to-job", ops, moveRequest{ShipmentIDs: []string{"s1"}, Source: "job-1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing target: want 400, got %d", rr.Code)
	}
	if p := decode[Problem](t, rr); p.Fields["targetJobId"] == "" {
		t.Fatalf("want field error, got %+v", p)
	}
}

func TestSessionVisibility(t *testing.T) {
	h := newHarness(t, nil)
	h.be.optimize = model.OptimizeResult{Value: []model.Job{{JobID: "job-1", DriverID: "d1", Visits: []model.Visit{visitFor("s1", 1, 10, 20)}}}}
	cs := decode[createdSession](t, h.do(t, http.MethodPost, "/v1/dispatches", ops,
		dispatch.Selection{ShipmentIDs: []string{"s1"}, DriverIDs: []string{"d1", "d2"}}))
	base := "/v1/sessions/" + cs.Session.ID

	if rr := h.do(t, http.MethodGet, base, "other:dispatcher", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign session: want 404, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, base, "root:admin", nil); rr.Code != 200 {
		t.Fatalf("admin: want 200, got %d", rr.Code)
	}
	rr := h.do(t, http.MethodGet, base+"/markers", ops, nil)
	if rr.Code != 200 {
		t.Fatalf("markers: %d", rr.Code)
	}
	if rr := h.do(t, http.MethodDelete, base, ops, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("close: %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, base, ops, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("closed session: want 404, got %d", rr.Code)
	}
}

func TestOpenEditSession(t *testing.T) {
	h := newHarness(t, nil)
	h.be.jobs["job-9"] = model.RawJob{JobID: "job-9", DriverID: "d2", Status: model.JobDraft, Visits: []model.Visit{visitFor("s7", 1, 1, 2)}}

	rr := h.do(t, http.MethodPost, "/v1/sessions", ops, openSessionRequest{JobIDs: []string{"job-9"}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("open: %d %s", rr.Code, rr.Body)
	}
	snap := decode[draft.Snapshot](t, rr)
	if snap.Flow != draft.FlowEdit || len(snap.WorkingSet.Jobs) != 1 || snap.WorkingSet.Jobs[0].ShipmentIDs[0] != "s7" {
		t.Fatalf("edit session %+v", snap)
	}

	rr = h.do(t, http.MethodPost, "/v1/sessions", ops, openSessionRequest{JobIDs: []string{"missing"}})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("missing job: want 502, got %d", rr.Code)
	}
	if p := decode[Problem](t, rr); p.Detail != "job does not exist" {
		t.Fatalf("backend message must be surfaced, got %q", p.Detail)
	}
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, nil)
	if rr := h.do(t, http.MethodGet, "/v1/subscriptions", ops, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("dispatcher listing subscriptions: want 403, got %d", rr.Code)
	}
	rr := h.do(t, http.MethodPost, "/v1/subscriptions", "root:admin", map[string]any{"url": "not a url", "events": []string{}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid subscription: want 400, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/v1/admin/webhook-deliveries/none/retry", "root:admin", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("retry unknown: want 404, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodDelete, "/v1/subscriptions/none", "root:admin", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("delete unknown: want 404, got %d", rr.Code)
	}
}

func TestRateLimitPerOperator(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.HTTP.RateRPS = 0.001; c.HTTP.RateBurst = 1 })
	if rr := h.do(t, http.MethodGet, "/v1/pool/drivers", "a:viewer", nil); rr.Code != 200 {
		t.Fatalf("first: %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/v1/pool/drivers", "a:viewer", nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: want 429, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/v1/pool/drivers", "b:viewer", nil); rr.Code != 200 {
		t.Fatalf("other operator has its own bucket, got %d", rr.Code)
	}
}

func TestBearerRequiredOutsideDevMode(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Auth = config.AuthConfig{Mode: "hmac", HMACSecret: "s3cret"} })
	if rr := h.do(t, http.MethodGet, "/v1/pool/drivers", ops, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("header fallback must be off in hmac mode, got %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/pool/drivers", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	h.h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: want 401, got %d", rr.Code)
	}
}
