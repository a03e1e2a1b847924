package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const heartbeatEvery = 15 * time.Second

// SessionStreamHandler handles GET /v1/sessions/{id}/events/stream (SSE).
// The first event is the current snapshot; working set events follow.
func (s *Server) SessionStreamHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(sess.ID())
	defer s.Broker.Unsubscribe(sess.ID(), ch)

	writeSSE(w, "snapshot", sess.Snapshot())
	flusher.Flush()

	hb := time.NewTicker(heartbeatEvery)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, evt.Type, evt.Data)
			flusher.Flush()
		case t := <-hb.C:
			writeSSE(w, "heartbeat", map[string]string{"sessionId": sess.ID(), "ts": t.UTC().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, typ string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\n", typ)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage follows the graphql-transport-ws message shape so existing
// subscription clients can be pointed at the session stream.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionWSHandler handles GET /v1/sessions/{id}/ws. After connection_init
// the client sends subscribe; it receives the snapshot followed by one next
// message per working set event until it sends complete.
func (s *Server) SessionWSHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	payload := func(typ string, data any) json.RawMessage {
		b, _ := json.Marshal(map[string]any{"type": typ, "data": data})
		return b
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

	subs := map[string]chan SSEEvent{}
	done := make(chan struct{})
	defer close(done)
	initialized := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			if initialized {
				continue
			}
			initialized = true
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				t := time.NewTicker(20 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-done:
						return
					case <-t.C:
						if write(wsMessage{Type: "ping"}) != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if !initialized || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`[{"message":"connection_init and an id are required"}]`)})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				continue
			}
			ch := s.Broker.Subscribe(sess.ID())
			subs[msg.ID] = ch
			_ = write(wsMessage{Type: "next", ID: msg.ID, Payload: payload("snapshot", sess.Snapshot())})
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					if write(wsMessage{Type: "next", ID: id, Payload: payload(evt.Type, evt.Data)}) != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(sess.ID(), ch)
				delete(subs, msg.ID)
			}
		}
	}
	for id, ch := range subs {
		s.Broker.Unsubscribe(sess.ID(), ch)
		delete(subs, id)
	}
}
