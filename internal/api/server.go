package api

import (
    "log/slog"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "dispatchdesk/internal/auth"
    "dispatchdesk/internal/config"
    "dispatchdesk/internal/dispatch"
    "dispatchdesk/internal/draft"
    "dispatchdesk/internal/metrics"
    "dispatchdesk/internal/pool"
    "dispatchdesk/internal/store"
)

// Deps are the collaborators the server is built from.
type Deps struct {
    Config    *config.Config
    Pool      *pool.Adapter
    Submitter *dispatch.Submitter
    Committer *dispatch.Committer
    Edits     draft.EditBackend
    Store     store.Store
    Observer  *DispatchObserver
    Auth      *auth.Verifier
    Broker    EventBroker
    Log       *slog.Logger
}

type Server struct {
    Pool      *pool.Adapter
    Submitter *dispatch.Submitter
    Committer *dispatch.Committer
    Edits     draft.EditBackend
    Sessions  *draft.Registry
    Store     store.Store
    Observer  *DispatchObserver
    Auth      *auth.Verifier
    Broker    EventBroker
    Log       *slog.Logger

    cfg          *config.Config
    limiter      *operatorLimiter
    allowOrigins []string
    started      time.Time
}

// NewServer wires a Server. The session registry is created here so that
// working set events reach the broker.
func NewServer(d Deps) *Server {
    cfg := d.Config
    if cfg == nil { cfg = config.Defaults() }
    s := &Server{
        Pool: d.Pool, Submitter: d.Submitter, Committer: d.Committer, Edits: d.Edits,
        Store: d.Store, Observer: d.Observer, Auth: d.Auth, Broker: d.Broker, Log: d.Log,
        cfg: cfg, allowOrigins: cfg.HTTP.AllowOrigins, started: time.Now(),
    }
    if s.Broker == nil { s.Broker = NewBroker() }
    if s.Log == nil { s.Log = slog.Default() }
    if s.Auth == nil { s.Auth = auth.NewVerifier(cfg.Auth) }
    if cfg.HTTP.RateRPS > 0 { s.limiter = newOperatorLimiter(cfg.HTTP.RateRPS, cfg.HTTP.RateBurst) }
    s.Sessions = draft.NewRegistry(s.sessionEvent)
    return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
    metrics.RegisterDefault()
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(middleware.Recoverer)
    r.Use(s.requestLog)
    r.Use(s.cors)

    r.Get("/healthz", s.HealthHandler)
    r.Get("/readyz", s.ReadyHandler)
    r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    r.Get("/debug/info", s.DebugJSON)

    r.Route("/v1", func(r chi.Router) {
        r.Use(s.authenticate)
        r.Use(s.rateLimit)

        r.Get("/pool/shipments", s.PoolShipmentsHandler)
        r.Get("/pool/drivers", s.PoolDriversHandler)

        r.Group(func(r chi.Router) {
            r.Use(requireMutate)
            r.Post("/dispatches", s.CreateDispatchHandler)
            r.Post("/sessions", s.OpenSessionHandler)
            r.Get("/dispatch-log", s.DispatchLogHandler)
        })

        r.Route("/sessions/{id}", func(r chi.Router) {
            r.Get("/", s.GetSessionHandler)
            r.Get("/markers", s.MarkersHandler)
            r.Get("/events/stream", s.SessionStreamHandler)
            r.Get("/ws", s.SessionWSHandler)
            r.Group(func(r chi.Router) {
                r.Use(requireMutate)
                r.Delete("/", s.CloseSessionHandler)
                r.Post("/select", s.SelectHandler)
                r.Post("/reassign", s.ReassignHandler)
                r.Post("/assign-to-job", s.AssignToJobHandler)
                r.Post("/assign-to-driver", s.AssignToDriverHandler)
                r.Post("/assign-to-new-job", s.AssignToNewJobHandler)
                r.Post("/remove", s.RemoveHandler)
                r.Post("/refresh", s.RefreshHandler)
                r.Post("/reconcile", s.ReconcileHandler)
                r.Post("/commit", s.CommitHandler)
            })
        })

        r.Group(func(r chi.Router) {
            r.Use(requireAdmin)
            r.Post("/subscriptions", s.CreateSubscriptionHandler)
            r.Get("/subscriptions", s.ListSubscriptionsHandler)
            r.Delete("/subscriptions/{id}", s.DeleteSubscriptionHandler)
            r.Get("/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
            r.Post("/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)
        })
    })
    return r
}
