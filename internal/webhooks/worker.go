package webhooks

import (
    "bytes"
    "context"
    "fmt"
    "log/slog"
    "net/http"
    "strconv"
    "time"

    "dispatchdesk/internal/metrics"
    "dispatchdesk/internal/store"
)

type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    Log         *slog.Logger
    MaxAttempts int
    Interval    time.Duration
    Batch       int
}

func NewWorker(s store.Store, maxAttempts int, interval time.Duration, log *slog.Logger) *Worker {
    if maxAttempts <= 0 { maxAttempts = 10 }
    if interval <= 0 { interval = time.Second }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Log: log, MaxAttempts: maxAttempts, Interval: interval, Batch: 50}
}

// Run delivers due webhooks on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
    ticker := time.NewTicker(w.Interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            w.processOnce(ctx)
        }
    }
}

func (w *Worker) processOnce(parent context.Context) {
    ctx, cancel := context.WithTimeout(parent, 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.Batch)
    if err != nil {
        w.Log.Warn("fetch due webhooks failed", "error", err)
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    success := false
    next := time.Now().Add(nextBackoff(it.Attempts))
    code := 0
    lastErr := ""
    start := time.Now()
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err == nil {
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Event-Type", it.EventType)
        req.Header.Set("X-Delivery-Attempt", strconv.Itoa(it.Attempts+1))
        if it.Secret != "" {
            req.Header.Set("X-Signature", Sign(it.Secret, it.Payload))
        }
        var resp *http.Response
        resp, err = w.HTTP.Do(req)
        if err == nil {
            code = resp.StatusCode
            _ = resp.Body.Close()
            success = code >= 200 && code < 300
            if !success { lastErr = fmt.Sprintf("endpoint returned %d", code) }
        }
    }
    if err != nil { lastErr = err.Error() }
    latency := int(time.Since(start).Milliseconds())

    status := "delivered"
    switch {
    case success:
        err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
    case it.Attempts+1 >= w.MaxAttempts:
        status = "failed"
        err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
        w.Log.Warn("webhook dead-lettered", "id", it.ID, "event", it.EventType, "attempts", it.Attempts+1, "error", lastErr)
    default:
        status = "retry"
        err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
    }
    if err != nil {
        w.Log.Warn("webhook state update failed", "id", it.ID, "error", err)
    }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
