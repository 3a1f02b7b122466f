package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	types   []int
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64)               {}
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, mt)
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages(mt int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for i, t := range c.types {
		if t == mt {
			out = append(out, string(c.written[i]))
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBroadcastReachesOnlyTopic(t *testing.T) {
	h := startHub(t)

	a, b := newFakeConn(), newFakeConn()
	ca := NewClient(h, a, "session-a")
	cb := NewClient(h, b, "session-b")
	go ca.Run()
	go cb.Run()

	waitFor(t, "registration", func() bool {
		return h.ClientCount("session-a") == 1 && h.ClientCount("session-b") == 1
	})

	if err := h.BroadcastJSON("session-a", map[string]int{"frame": 1}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	waitFor(t, "delivery", func() bool { return len(a.messages(websocket.TextMessage)) == 1 })
	if got := a.messages(websocket.TextMessage)[0]; got != `{"frame":1}` {
		t.Errorf("payload = %s", got)
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(b.messages(websocket.TextMessage)); n != 0 {
		t.Errorf("other topic received %d messages", n)
	}
}

func TestBinaryMessage(t *testing.T) {
	h := startHub(t)
	conn := newFakeConn()
	c := NewClient(h, conn, "s")
	go c.Run()
	waitFor(t, "registration", func() bool { return h.ClientCount("s") == 1 })

	h.Broadcast(NewBinaryMessage("s", []byte{1, 2, 3}))
	waitFor(t, "delivery", func() bool { return len(conn.messages(websocket.BinaryMessage)) == 1 })
}

func TestDisconnectUnregisters(t *testing.T) {
	h := startHub(t)
	conn := newFakeConn()
	c := NewClient(h, conn, "s")
	go c.Run()
	waitFor(t, "registration", func() bool { return h.ClientCount("s") == 1 })

	conn.Close()
	waitFor(t, "unregistration", func() bool { return h.ClientCount("s") == 0 })
}

func TestCloseTopic(t *testing.T) {
	h := startHub(t)
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		go NewClient(h, conn, "s").Run()
	}
	waitFor(t, "registration", func() bool { return h.ClientCount("s") == 2 })

	h.CloseTopic("s")
	waitFor(t, "topic closed", func() bool { return h.ClientCount("s") == 0 })

	for i, conn := range conns {
		waitFor(t, "close frame", func() bool { return len(conn.messages(websocket.CloseMessage)) == 1 })
		select {
		case <-conn.closed:
		case <-time.After(2 * time.Second):
			t.Errorf("conn %d not closed", i)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := New("test", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	waitFor(t, "running", h.IsRunning)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if h.IsRunning() {
		t.Error("IsRunning after stop")
	}
}

func TestBroadcastJSONEncodeError(t *testing.T) {
	h := New("test", testLogger())
	if err := h.BroadcastJSON("s", make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}
