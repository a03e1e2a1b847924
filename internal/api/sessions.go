package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dispatchdesk/internal/draft"
	"dispatchdesk/internal/metrics"
)

// session loads the session named in the path. Only its owner and admins
// may see it; anyone else gets a 404 so foreign ids look unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*draft.Session, bool) {
	sess, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err == nil {
		if pr := principal(r); !pr.IsAdmin() && sess.Owner() != pr.Operator {
			err = draft.ErrSessionNotFound
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.Sessions.Remove(sess.ID()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) MarkersHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"selectedJobId": snap.WorkingSet.SelectedJobID,
		"isStale":       snap.WorkingSet.IsStale,
		"markers":       sess.Markers(),
	})
}

// edit decodes body into req, runs fn against the session and answers with
// the new snapshot.
func edit[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(*draft.Session, T) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req T
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := fn(sess, req); err != nil {
		if draft.IsNoOp(err) {
			s.logger(r).Info("edit was a no-op", "session", sess.ID(), "error", err)
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) SelectHandler(w http.ResponseWriter, r *http.Request) {
	edit(s, w, r, func(sess *draft.Session, req selectRequest) error {
		return sess.SelectJobForMap(req.JobID)
	})
}

func (s *Server) ReassignHandler(w http.ResponseWriter, r *http.Request) {
	edit(s, w, r, func(sess *draft.Session, req reassignRequest) error {
		return sess.ReassignJob(req.JobID, req.DriverID)
	})
}

func (s *Server) AssignToJobHandler(w http.ResponseWriter, r *http.Request) {
	edit(s, w, r, func(sess *draft.Session, req moveRequest) error {
		if req.TargetJobID == "" {
			return &badRequest{msg: "validation failed", fields: map[string]string{"targetJobId": "is required"}}
		}
		return sess.AssignToJob(req.ShipmentIDs, req.source(), req.TargetJobID)
	})
}

func (s *Server) AssignToDriverHandler(w http.ResponseWriter, r *http.Request) {
	edit(s, w, r, func(sess *draft.Session, req moveRequest) error {
		if req.DriverID == "" {
			return &badRequest{msg: "validation failed", fields: map[string]string{"driverId": "is required"}}
		}
		return sess.AssignToDriver(req.ShipmentIDs, req.source(), req.DriverID)
	})
}

func (s *Server) AssignToNewJobHandler(w http.ResponseWriter, r *http.Request) {
	edit(s, w, r, func(sess *draft.Session, req moveRequest) error {
		if req.DriverID == "" {
			return &badRequest{msg: "validation failed", fields: map[string]string{"driverId": "is required"}}
		}
		return sess.AssignToNewJob(req.ShipmentIDs, req.source(), req.DriverID)
	})
}

func (s *Server) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	edit(s, w, r, func(sess *draft.Session, req removeRequest) error {
		return sess.RemoveShipments(req.JobID, req.ShipmentIDs)
	})
}

// RefreshHandler re-reads the session's jobs from the backend. It is the
// only way to clear the stale flag besides a successful reconcile.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context(), s.Committer); err != nil {
		metrics.Mutations.WithLabelValues("refresh", "error").Inc()
		s.fail(w, r, err)
		return
	}
	metrics.Mutations.WithLabelValues("refresh", "ok").Inc()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ReconcileHandler pushes the pending edits to the backend, then refreshes.
// A partial failure answers 502 with the report of how far it got.
func (s *Server) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rep, err := sess.Reconcile(r.Context(), s.Edits, s.Committer, s.cfg.Backend.WorkingTimeMinutes)
	if err != nil {
		status, title, detail := problemFor(err)
		if rep.Total == 0 && rep.Failed == nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, status, map[string]any{
			"type": "about:blank", "title": title, "status": status, "detail": detail,
			"instance": r.URL.Path, "report": rep, "session": sess.Snapshot(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep, "session": sess.Snapshot()})
}

// CommitHandler dispatches the given jobs and answers with one ack per job.
// Partial failure is still a 200: the acks carry the per-job outcome.
func (s *Server) CommitHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := withCommitScope(r.Context(), sess.ID(), principal(r).Operator)
	acks, err := sess.Commit(ctx, s.Committer, req.JobIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acks": acks, "session": sess.Snapshot()})
}
