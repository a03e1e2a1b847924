package api

import (
    "net/http"
    "time"

    "dispatchdesk/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the running config.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.cfg
    info := map[string]any{
        "build":    buildinfo.Info(),
        "time":     time.Now().UTC().Format(time.RFC3339),
        "uptime":   time.Since(s.started).Round(time.Second).String(),
        "sessions": s.Sessions.Len(),
        "config": map[string]any{
            "addr":              c.HTTP.Addr,
            "authMode":          c.Auth.Mode,
            "allowOrigins":      c.HTTP.AllowOrigins,
            "rateRps":           c.HTTP.RateRPS,
            "rateBurst":         c.HTTP.RateBurst,
            "backendUrl":        c.Backend.BaseURL,
            "dispatchMode":      c.Backend.DispatchMode,
            "databaseDriver":    c.Database.Driver,
            "webhookMaxAttempt": c.Webhooks.MaxAttempts,
            "hasRedis":          c.Redis.URL != "",
            "hasKafka":          len(c.Kafka.Brokers) > 0,
            "sessionIdleTtl":    c.Session.IdleTTL.String(),
        },
    }
    writeJSON(w, http.StatusOK, info)
}
