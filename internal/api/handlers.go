package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/dispatch"
	"dispatchdesk/internal/draft"
	"dispatchdesk/internal/markers"
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/pool"
	"dispatchdesk/internal/transform"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface{ Ping(ctx context.Context) error }
	if p, ok := s.Broker.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "broker: "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func pageParam(r *http.Request, def int) backend.Page {
	q := r.URL.Query()
	n, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = def
	}
	return backend.Page{Number: n, Size: size}
}

func splitQuery(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PoolShipmentsHandler handles GET /v1/pool/shipments. Filters: status and
// taskType (comma separated), warehouseId, page, size.
func (s *Server) PoolShipmentsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := pool.Filter{WarehouseID: q.Get("warehouseId")}
	for _, st := range splitQuery(q.Get("status")) {
		f.Statuses = append(f.Statuses, model.ShipmentStatus(st))
	}
	for _, tt := range splitQuery(q.Get("taskType")) {
		n, err := strconv.Atoi(tt)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid taskType", tt, r.URL.Path)
			return
		}
		f.TaskTypes = append(f.TaskTypes, model.ShipmentTaskType(n))
	}
	pg, err := s.Pool.Shipments(r.Context(), f, pageParam(r, s.cfg.Backend.PageSize))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shipments := make([]model.Shipment, 0, len(pg.Items))
	for _, c := range pg.Items {
		shipments = append(shipments, c.Shipment())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":         pg.Items,
		"total":         pg.Total,
		"page":          pg.Page,
		"size":          pg.Size,
		"selectableIds": pool.SelectableIDs(pg.Items),
		"markers":       markers.FromShipments(shipments),
	})
}

func (s *Server) PoolDriversHandler(w http.ResponseWriter, r *http.Request) {
	pg, err := s.Pool.Drivers(r.Context(), pageParam(r, s.cfg.Backend.PageSize))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pg)
}

// CreateDispatchHandler handles POST /v1/dispatches. One driver is a solo
// assignment answered with the backend ack; several drivers run the
// optimizer and open a confirmation session over its draft jobs.
func (s *Server) CreateDispatchHandler(w http.ResponseWriter, r *http.Request) {
	var sel dispatch.Selection
	if err := decodeJSON(r, &sel); err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := dispatch.Build(sel)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pr := principal(r)
	log := s.logger(r).With("request", req.String())

	var roster []model.Driver
	if req.Kind == dispatch.KindOptimize {
		// the session needs the roster for driver swaps; load it before
		// anything is sent so a failure here leaves the backend untouched
		if roster, err = s.Pool.AllDrivers(r.Context(), s.cfg.Backend.PageSize); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	out, err := s.Submitter.Submit(r.Context(), req)
	if err != nil {
		log.Warn("dispatch request failed", "error", err)
		s.fail(w, r, err)
		return
	}
	if out.Kind == dispatch.KindSolo {
		if out.Ack != nil && out.Ack.Success && s.Observer != nil {
			s.Observer.AssignmentAccepted(r.Context(), pr.Operator, req, out.Ack.JobID)
		}
		log.Info("solo assignment sent", "success", out.Ack != nil && out.Ack.Success)
		writeJSON(w, http.StatusOK, out)
		return
	}
	sess := s.Sessions.Create(*out.Result, draft.Options{Owner: pr.Operator, Flow: draft.FlowCreate, Drivers: roster})
	log.Info("confirmation session opened", "session", sess.ID(), "jobs", len(out.Result.Value))
	writeJSON(w, http.StatusCreated, map[string]any{"mode": out.Kind, "session": sess.Snapshot()})
}

// OpenSessionHandler handles POST /v1/sessions: the edit flow over jobs
// that already exist on the backend.
func (s *Server) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	roster, err := s.Pool.AllDrivers(r.Context(), s.cfg.Backend.PageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var res transform.Result
	if len(req.JobIDs) == 1 {
		res, err = s.Committer.LoadJob(r.Context(), req.JobIDs[0])
	} else {
		res, err = s.Committer.RefetchDrafts(r.Context(), req.JobIDs)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess := s.Sessions.Create(res, draft.Options{Owner: principal(r).Operator, Flow: draft.FlowEdit, Drivers: roster})
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}
