package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, h *Hub, room string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeRoom(w, r, room)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return e
}

func waitSubscribers(t *testing.T, h *Hub, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers(room) != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers(%s) = %d, want %d", room, h.Subscribers(room), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_AnnounceRoomChanged(t *testing.T) {
	h := NewHub()
	a := dial(t, h, "ROOM1")
	b := dial(t, h, "ROOM2")

	if e := readEvent(t, a); e.Type != "connected" || e.Room != "ROOM1" {
		t.Errorf("hello = %+v", e)
	}
	readEvent(t, b)
	waitSubscribers(t, h, "ROOM1", 1)

	h.AnnounceRoomChanged("ROOM1")
	if e := readEvent(t, a); e.Type != "room_changed" || e.Room != "ROOM1" {
		t.Errorf("event = %+v", e)
	}

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Error("subscriber of another room received the event")
	}
}

func TestHub_AnnounceWithoutSubscribers(t *testing.T) {
	h := NewHub()
	h.AnnounceRoomChanged("EMPTY")
	if h.Subscribers("EMPTY") != 0 {
		t.Error("announce created subscriber state")
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := NewHub()
	conn := dial(t, h, "ROOM1")
	readEvent(t, conn)
	waitSubscribers(t, h, "ROOM1", 1)

	conn.Close()
	waitSubscribers(t, h, "ROOM1", 0)
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	conn := dial(t, h, "ROOM1")
	readEvent(t, conn)
	waitSubscribers(t, h, "ROOM1", 1)

	h.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after hub shutdown")
	}
	h.AnnounceRoomChanged("ROOM1")
}
