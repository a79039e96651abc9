package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/protocol"
)

// fakeHost is a minimal QLC+ endpoint. Every received line is forwarded to
// received; every string on reply is written back to the client.
type fakeHost struct {
	srv      *httptest.Server
	received chan string
	reply    chan string
	kick     chan struct{}
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		received: make(chan string, 16),
		reply:    make(chan string, 16),
		kick:     make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc(protocol.EndpointPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				select {
				case line := <-h.reply:
					conn.WriteMessage(websocket.TextMessage, []byte(line))
				case <-h.kick:
					conn.Close()
					return
				}
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h.received <- string(data)
		}
	})
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHost) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(h.srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split %q: %v", h.srv.URL, err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func waitState(t *testing.T, sub *eventbus.Subscription[State], want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-sub.C():
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %v never published", want)
		}
	}
}

func TestURL(t *testing.T) {
	c := New(Config{})
	if got, want := c.URL("192.168.1.1", 9999), "ws://192.168.1.1:9999/qlcplusWS"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(DefaultConfig())
	if err := c.Send("CH|1|255"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
	c.Disconnect()
	c.Disconnect()
	if c.State() != Disconnected {
		t.Errorf("State = %v, want disconnected", c.State())
	}
}

func TestConnectSendReceive(t *testing.T) {
	h := newFakeHost(t)
	host, port := h.hostPort(t)

	c := New(DefaultConfig())
	defer c.Close()
	lines := c.Lines().Subscribe("test", 8, eventbus.Block)

	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != Connected {
		t.Fatalf("State = %v, want connected", c.State())
	}
	// Second connect is a no-op
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	if err := c.Send("QLC+API|getWidgetsList"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-h.received:
		if got != "QLC+API|getWidgetsList" {
			t.Errorf("host received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("host received nothing")
	}

	h.reply <- "FUNCTION|1|Running"
	select {
	case got := <-lines.C():
		if got != "FUNCTION|1|Running" {
			t.Errorf("client received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client received nothing")
	}

	c.Disconnect()
	if c.State() != Disconnected {
		t.Errorf("State after Disconnect = %v", c.State())
	}
	if err := c.Send("CH|1|0"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Disconnect = %v, want ErrNotConnected", err)
	}
}

func TestRemoteCloseMarksFailed(t *testing.T) {
	h := newFakeHost(t)
	host, port := h.hostPort(t)

	c := New(DefaultConfig())
	defer c.Close()
	states := c.States().Subscribe("test", 8, eventbus.DropNewest)

	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, states, Connected)

	close(h.kick)
	waitState(t, states, Failed)

	if err := c.Send("CH|1|0"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after failure = %v, want ErrNotConnected", err)
	}
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	c := New(Config{HandshakeTimeout: time.Second})
	defer c.Close()

	if err := c.Connect(context.Background(), "127.0.0.1", port); err == nil {
		t.Fatal("Connect to a closed port succeeded")
	}
	if c.State() != Failed {
		t.Errorf("State = %v, want failed", c.State())
	}
}
