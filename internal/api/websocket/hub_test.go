package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil, nil)

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.IsStopped() {
		t.Error("New hub reports stopped")
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	ok := hub.BroadcastEvent(Event{Type: EventImportProgress, Data: ImportProgress{Current: 1, Total: 2}})
	if !ok {
		t.Error("Expected broadcast to be accepted by a running hub")
	}
}

func TestHub_ImportProgressReachesClients(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conns = append(conns, dial(t, server))
	}
	defer func() {
		for _, conn := range conns {
			conn.Close()
		}
	}()
	waitForClients(t, hub, 3)

	hub.BroadcastEvent(Event{
		Type: EventImportProgress,
		Data: ImportProgress{ImportID: "imp-1", BinderID: "b-1", Current: 4, Total: 10},
	})

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Client %d failed to read message: %v", i, err)
		}

		var received struct {
			Type string         `json:"type"`
			Data ImportProgress `json:"data"`
		}
		if err := json.Unmarshal(message, &received); err != nil {
			t.Fatalf("Failed to unmarshal received message: %v", err)
		}
		if received.Type != EventImportProgress {
			t.Errorf("Expected type %s, got %s", EventImportProgress, received.Type)
		}
		if received.Data.Current != 4 || received.Data.Total != 10 || received.Data.BinderID != "b-1" {
			t.Errorf("Unexpected payload %+v", received.Data)
		}
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()

	hub.Stop()
	hub.Stop()

	deadline := time.Now().Add(time.Second)
	for !hub.IsStopped() {
		if time.Now().After(deadline) {
			t.Fatal("Hub did not stop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if hub.BroadcastEvent(Event{Type: EventImportFinished}) {
		t.Error("Expected broadcast on stopped hub to fail")
	}

	w := httptest.NewRecorder()
	hub.ServeWs(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 from stopped hub, got %d", w.Code)
	}
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	hub := NewHub([]string{"http://localhost:*"}, nil)
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("Expected dial from disallowed origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 response, got %v", resp)
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:*", "https://binders.example.com"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://localhost", true},
		{"https://binders.example.com", true},
		{"http://localhost.evil.com", false},
		{"https://other.example.com", false},
	}
	for _, tt := range tests {
		if got := originAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !originAllowed("https://anything.example", nil) {
		t.Error("Expected empty allow list to accept every origin")
	}
}
