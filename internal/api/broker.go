package api

import (
    "sync"
)

// SSEEvent is one entry of a session's change stream.
type SSEEvent struct {
    Type string `json:"type"`
    Data any    `json:"data"`
}

// EventBroker fans session events out to stream subscribers, keyed by session id.
type EventBroker interface {
    Subscribe(sessionID string) chan SSEEvent
    Unsubscribe(sessionID string, ch chan SSEEvent)
    Publish(sessionID string, evt SSEEvent)
    Close() error
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan SSEEvent]struct{}
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(sessionID string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    b.mu.Lock()
    if b.subs[sessionID] == nil { b.subs[sessionID] = map[chan SSEEvent]struct{}{} }
    b.subs[sessionID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[sessionID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, sessionID) }
    close(ch)
}

func (b *Broker) Publish(sessionID string, evt SSEEvent) {
    b.mu.Lock()
    for ch := range b.subs[sessionID] {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// Close ends every subscription.
func (b *Broker) Close() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    for id, m := range b.subs {
        for ch := range m { close(ch) }
        delete(b.subs, id)
    }
    return nil
}
