// Package main runs a demo WebSocket client that watches a draft session.
//
// It opens an edit session for the given jobs, subscribes to the session
// socket and selects the first job so at least one event arrives.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	jobs := flag.String("jobs", "", "comma separated draft job ids to open")
	operator := flag.String("operator", "demo", "operator name sent in dev auth mode")
	flag.Parse()
	if *jobs == "" {
		log.Fatal("-jobs is required")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	ids := strings.Split(*jobs, ",")

	post := func(path string, body any) *http.Response {
		b, _ := json.Marshal(body)
		req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Operator", *operator)
		req.Header.Set("X-Role", "dispatcher")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		return resp
	}

	resp := post("/v1/sessions", map[string]any{"jobIds": ids})
	var snap struct {
		ID string `json:"id"`
	}
	err := json.NewDecoder(resp.Body).Decode(&snap)
	_ = resp.Body.Close()
	if err != nil || snap.ID == "" {
		log.Fatalf("open session: status %d err %v", resp.StatusCode, err)
	}
	log.Printf("Session ID: %s", snap.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/sessions/" + snap.ID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Operator", *operator)
	hdr.Set("X-Role", "dispatcher")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1"}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			if m.Type == "ping" {
				_ = c.WriteJSON(wsMessage{Type: "pong"})
				continue
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	time.Sleep(500 * time.Millisecond)
	sel := post("/v1/sessions/"+snap.ID+"/select", map[string]any{"jobId": ids[0]})
	_ = sel.Body.Close()

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
