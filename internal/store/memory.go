package store

import (
    "context"
    "strconv"
    "sync"
    "time"

    "github.com/google/uuid"

    "dispatchdesk/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
    mu         sync.Mutex
    now        func() time.Time
    dispatches []model.DispatchRecord // append order; ids ascending
    nextID     int64
    subs       []model.Subscription
    deliveries map[string]*WebhookDelivery // id -> delivery state
    order      []string                    // delivery ids in enqueue order
}

func NewMemory() *Memory {
    return &Memory{
        now:        time.Now,
        deliveries: map[string]*WebhookDelivery{},
    }
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func (m *Memory) RecordDispatches(ctx context.Context, recs []model.DispatchRecord) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, r := range recs {
        m.nextID++
        r.ID = m.nextID
        if r.At.IsZero() { r.At = m.now().UTC() }
        m.dispatches = append(m.dispatches, r)
    }
    return nil
}

func (m *Memory) ListDispatches(ctx context.Context, q DispatchQuery) ([]model.DispatchRecord, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit := clampLimit(q.Limit)
    var before int64
    if q.Cursor != "" {
        n, err := strconv.ParseInt(q.Cursor, 10, 64)
        if err != nil { return nil, "", err }
        before = n
    }
    out := []model.DispatchRecord{}
    for i := len(m.dispatches) - 1; i >= 0 && len(out) < limit; i-- {
        r := m.dispatches[i]
        if before > 0 && r.ID >= before { continue }
        if q.JobID != "" && r.JobID != q.JobID { continue }
        if q.SessionID != "" && r.SessionID != q.SessionID { continue }
        if q.Operator != "" && r.Operator != q.Operator { continue }
        out = append(out, r)
    }
    next := ""
    if len(out) == limit { next = strconv.FormatInt(out[len(out)-1].ID, 10) }
    return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: append([]string(nil), req.Events...), Secret: req.Secret, Owner: req.Owner}
    m.subs = append(m.subs, s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs {
        for _, e := range s.Events { if e == eventType || e == "*" { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    start := 0
    if cursor != "" {
        for i := range m.subs { if m.subs[i].ID == cursor { start = i + 1; break } }
    }
    limit = clampLimit(limit)
    end := start + limit
    if end > len(m.subs) { end = len(m.subs) }
    items := append([]model.Subscription{}, m.subs[start:end]...)
    next := ""
    if end < len(m.subs) { next = m.subs[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for i, s := range m.subs {
        if s.ID == id {
            m.subs = append(m.subs[:i], m.subs[i+1:]...)
            return nil
        }
    }
    return ErrNotFound
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    key := computeDedupKey(payload)
    for _, id := range m.order {
        d := m.deliveries[id]
        if d.EventType == eventType && d.URL == url && computeDedupKey(d.Payload) == key { return d.ID, nil }
    }
    id := uuid.New().String()
    m.deliveries[id] = &WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, NextAttemptAt: m.now()}
    m.order = append(m.order, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := m.now()
    out := []WebhookDelivery{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, *d)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := m.now()
        d.DeliveredAt = &now
        return nil
    }
    d.Status = DeliveryRetry
    d.LastError = lastError
    if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = m.now().Add(time.Minute) }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    started := cursor == ""
    out := []WebhookDelivery{}
    next := ""
    for _, id := range m.order {
        if !started {
            started = id == cursor
            continue
        }
        d := m.deliveries[id]
        if status != "" && d.Status != status { continue }
        if len(out) == limit {
            next = out[len(out)-1].ID
            break
        }
        out = append(out, *d)
    }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Status = DeliveryPending
    d.NextAttemptAt = m.now()
    return nil
}
