package api

import (
	"context"
	"log/slog"
	"time"

	"dispatchdesk/internal/dispatch"
	"dispatchdesk/internal/draft"
	"dispatchdesk/internal/events"
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/store"
	"dispatchdesk/internal/webhooks"
)

// Webhook event types.
const (
	HookJobsDispatched     = "jobs.dispatched"
	HookAssignmentAccepted = "assignment.accepted"
)

type ctxKeyCommit struct{}

type commitScope struct {
	SessionID string
	Operator  string
}

func withCommitScope(ctx context.Context, sessionID, operator string) context.Context {
	return context.WithValue(ctx, ctxKeyCommit{}, commitScope{SessionID: sessionID, Operator: operator})
}

// DispatchObserver records every commit in the audit log and publishes it
// to webhook subscribers and the event bus. It is the dispatch.Observer of
// the committer.
type DispatchObserver struct {
	Store  store.Store
	Hooks  *webhooks.Publisher
	Events events.Emitter
	Log    *slog.Logger
	now    func() time.Time
}

func NewDispatchObserver(s store.Store, hooks *webhooks.Publisher, em events.Emitter, log *slog.Logger) *DispatchObserver {
	if em == nil {
		em = events.Nop{}
	}
	return &DispatchObserver{Store: s, Hooks: hooks, Events: em, Log: log, now: time.Now}
}

func (o *DispatchObserver) JobsDispatched(ctx context.Context, acks []dispatch.Ack) {
	if len(acks) == 0 {
		return
	}
	// outlive the request that triggered the commit
	ctx = context.WithoutCancel(ctx)
	scope, _ := ctx.Value(ctxKeyCommit{}).(commitScope)
	at := o.now().UTC()

	recs := make([]model.DispatchRecord, 0, len(acks))
	evts := make([]events.Event, 0, len(acks))
	var ok []string
	for _, a := range acks {
		recs = append(recs, model.DispatchRecord{
			SessionID: scope.SessionID, JobID: a.JobID, Operator: scope.Operator,
			Success: a.Success, Message: a.Message, At: at,
		})
		typ := events.TypeJobDispatchFailed
		if a.Success {
			typ = events.TypeJobDispatched
			ok = append(ok, a.JobID)
		}
		evts = append(evts, events.New(typ, a.JobID, map[string]any{
			"sessionId": scope.SessionID, "operator": scope.Operator, "message": a.Message,
		}))
	}
	if err := o.Store.RecordDispatches(ctx, recs); err != nil {
		o.Log.Error("dispatch log write failed", "jobs", len(recs), "error", err)
	}
	if err := o.Events.Emit(ctx, evts...); err != nil {
		o.Log.Warn("dispatch events not published", "error", err)
	}
	if len(ok) > 0 && o.Hooks != nil {
		o.Hooks.Emit(ctx, HookJobsDispatched, map[string]any{
			"sessionId": scope.SessionID, "operator": scope.Operator, "jobIds": ok, "acks": acks,
		})
	}
}

// AssignmentAccepted publishes a solo assignment the backend accepted.
func (o *DispatchObserver) AssignmentAccepted(ctx context.Context, operator string, req dispatch.Request, jobID string) {
	ctx = context.WithoutCancel(ctx)
	data := map[string]any{"operator": operator, "mode": req.Kind, "jobId": jobID}
	if req.Solo != nil {
		data["driverId"] = req.Solo.DriverID
		data["shipmentIds"] = req.Solo.ShipmentIDs
	}
	if err := o.Events.Emit(ctx, events.New(events.TypeAssignmentAccepted, jobID, data)); err != nil {
		o.Log.Warn("assignment event not published", "error", err)
	}
	if o.Hooks != nil {
		o.Hooks.Emit(ctx, HookAssignmentAccepted, data)
	}
}

// sessionEvent forwards a working set event to the session's stream.
func (s *Server) sessionEvent(e draft.Event) {
	s.Broker.Publish(e.SessionID, SSEEvent{Type: e.Type, Data: e})
}
