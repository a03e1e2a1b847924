package webhooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dispatchdesk/internal/store"
)

type Publisher struct {
	Store store.Store
	Log   *slog.Logger
}

func NewPublisher(s store.Store, log *slog.Logger) *Publisher {
	return &Publisher{Store: s, Log: log}
}

// Emit queues an event for every subscription to eventType. It returns the
// number of deliveries queued.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		p.Log.Warn("webhook subscriptions lookup failed", "event", eventType, "error", err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	payload := map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.Log.Error("webhook payload encode failed", "event", eventType, "error", err)
		return 0
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warn("webhook enqueue failed", "event", eventType, "subscription", s.ID, "error", err)
			continue
		}
		n++
	}
	return n
}
