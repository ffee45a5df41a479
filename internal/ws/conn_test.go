package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// newConnServer upgrades connections, registers them with cm and holds them
// open, passing each registered client to ready.
func newConnServer(t *testing.T, cm *ConnManager, ready chan<- *Client) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept error: %v", err)
			return
		}

		client := &Client{conn: conn, id: "test"}
		ctx := cm.Add(client)
		if ctx.Err() != nil {
			return
		}
		defer cm.Remove(client)
		ready <- client

		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return conn
}

func TestConnManagerAddRemove(t *testing.T) {
	cm := NewConnManager()
	ready := make(chan *Client, 1)
	ts := newConnServer(t, cm, ready)
	defer ts.Close()

	conn := dialWS(t, ts.URL)
	<-ready
	if cm.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", cm.Count())
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for cm.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if cm.Count() != 0 {
		t.Fatalf("expected 0 connections after close, got %d", cm.Count())
	}
}

func TestConnManagerSendDelivers(t *testing.T) {
	cm := NewConnManager()
	ready := make(chan *Client, 1)
	ts := newConnServer(t, cm, ready)
	defer ts.Close()

	conn := dialWS(t, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")
	client := <-ready

	if !cm.Send(client, []byte(`{"type":"ping"}`)) {
		t.Fatal("expected send to be queued")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(data) != `{"type":"ping"}` {
		t.Errorf("unexpected payload %s", data)
	}
}

func TestConnManagerSendDropsWhenFull(t *testing.T) {
	cm := NewConnManager()
	// A client that was never added has no write pump, so the buffer fills.
	c := &Client{id: "orphan", send: make(chan []byte, sendBufferSize)}

	for i := 0; i < sendBufferSize; i++ {
		if !cm.Send(c, []byte("x")) {
			t.Fatalf("expected send %d to be queued", i)
		}
	}
	if cm.Send(c, []byte("overflow")) {
		t.Fatal("expected overflow send to be dropped")
	}
	if cm.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", cm.Dropped())
	}
}

func TestConnManagerMaxConns(t *testing.T) {
	cm := NewConnManager(WithMaxConns(1))
	ready := make(chan *Client, 2)
	ts := newConnServer(t, cm, ready)
	defer ts.Close()

	conn1 := dialWS(t, ts.URL)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	<-ready

	// Second connection is refused: the server closes it immediately.
	conn2 := dialWS(t, ts.URL)
	defer conn2.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn2.Read(ctx); err == nil {
		t.Fatal("expected refused connection to be closed")
	}

	if cm.Count() != 1 {
		t.Errorf("expected 1 connection, got %d", cm.Count())
	}
	if cm.Rejected() != 1 {
		t.Errorf("expected 1 rejection, got %d", cm.Rejected())
	}
}

func TestConnManagerShutdown(t *testing.T) {
	cm := NewConnManager()
	ready := make(chan *Client, 1)
	ts := newConnServer(t, cm, ready)
	defer ts.Close()

	conn := dialWS(t, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")
	<-ready

	cm.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected connection to be closed by shutdown")
	}
	if cm.Count() != 0 {
		t.Errorf("expected 0 connections after shutdown, got %d", cm.Count())
	}

	// New connections are refused once the manager is closed.
	conn2 := dialWS(t, ts.URL)
	defer conn2.Close(websocket.StatusNormalClosure, "")
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if _, _, err := conn2.Read(ctx2); err == nil {
		t.Fatal("expected post-shutdown connection to be closed")
	}
}
