package store

import (
    "context"
    "errors"
    "time"

    "dispatchdesk/internal/model"
)

// Store is the persistence interface used by the API server. Working sets
// live in memory; the store keeps what must outlive a session: the dispatch
// audit log, webhook subscriptions and their delivery queue.
type Store interface {
    Ping(ctx context.Context) error
    Close() error

    // Dispatch audit log
    RecordDispatches(ctx context.Context, recs []model.DispatchRecord) error
    ListDispatches(ctx context.Context, q DispatchQuery) (items []model.DispatchRecord, nextCursor string, err error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error)
    RetryWebhookDelivery(ctx context.Context, id string) error
}

// DispatchQuery filters the audit log. Cursor is the id of the last record of
// the previous page; records come newest first.
type DispatchQuery struct {
    JobID     string
    SessionID string
    Operator  string
    Cursor    string
    Limit     int
}

var ErrNotFound = errors.New("not found")

const defaultLimit = 100

func clampLimit(n int) int {
    if n <= 0 || n > 500 {
        return defaultLimit
    }
    return n
}
