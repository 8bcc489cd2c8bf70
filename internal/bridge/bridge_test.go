package bridge

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

// testEndpoint is a websocket server that counts dials and exposes the
// accepted connections and received frames.
type testEndpoint struct {
	srv     *httptest.Server
	mu      sync.Mutex
	dials   int
	connCh  chan *websocket.Conn
	frameCh chan []byte
}

func newTestEndpoint(t *testing.T) *testEndpoint {
	t.Helper()
	ep := &testEndpoint{
		connCh:  make(chan *websocket.Conn, 8),
		frameCh: make(chan []byte, 8),
	}
	ep.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ep.mu.Lock()
		ep.dials++
		ep.mu.Unlock()
		ep.connCh <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ep.frameCh <- data
		}
	}))
	t.Cleanup(ep.srv.Close)
	return ep
}

func (ep *testEndpoint) hostPort(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(ep.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (ep *testEndpoint) dialCount() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.dials
}

func (ep *testEndpoint) acceptConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ep.connCh:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func newTestBridge(t *testing.T, ep *testEndpoint, opts Options) (*Bridge, chan bool) {
	t.Helper()
	host, port := ep.hostPort(t)
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 50 * time.Millisecond
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 10 * time.Millisecond
	}
	b := New(host, port, opts)
	events := make(chan bool, 8)
	b.OnConnectionChange(func(connected bool) { events <- connected })
	t.Cleanup(b.Disconnect)
	return b, events
}

func waitEvent(t *testing.T, events chan bool, want bool) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("connection event = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection event %v", want)
	}
}

func TestConnectAndSend(t *testing.T) {
	ep := newTestEndpoint(t)
	b, events := newTestBridge(t, ep, Options{})

	b.Connect()
	ep.acceptConn(t)
	waitEvent(t, events, true)

	if !b.IsConnected() {
		t.Fatal("IsConnected() = false after connect event")
	}

	err := b.SendMessage(protocol.Auth{Username: "admin", Password: "admin123", ClientType: "test"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case frame := <-ep.frameCh:
		var got map[string]any
		if err := json.Unmarshal(frame, &got); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		if got["type"] != "auth" || got["username"] != "admin" {
			t.Errorf("frame = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestSendCommandNormalizes(t *testing.T) {
	ep := newTestEndpoint(t)
	b, events := newTestBridge(t, ep, Options{})

	b.Connect()
	ep.acceptConn(t)
	waitEvent(t, events, true)

	if err := b.SendCommand("FAN1:1"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	select {
	case frame := <-ep.frameCh:
		var got map[string]any
		if err := json.Unmarshal(frame, &got); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		if got["action"] != "fan_on" || got["kumes"] != float64(1) {
			t.Errorf("normalized frame = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestInboundDispatchAndMalformed(t *testing.T) {
	ep := newTestEndpoint(t)
	b, events := newTestBridge(t, ep, Options{})

	var mu sync.Mutex
	var msgs [][]byte
	var errs []error
	b.OnMessage(func(data []byte) {
		mu.Lock()
		msgs = append(msgs, data)
		mu.Unlock()
	})
	b.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	b.Connect()
	conn := ep.acceptConn(t)
	waitEvent(t, events, true)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{oops`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"auth_failed","message":"no"}`)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		gotMsg, gotErr := len(msgs), len(errs)
		mu.Unlock()
		if gotMsg >= 1 && gotErr >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("msgs=%d errs=%d, want at least 1 each", gotMsg, gotErr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The malformed frame must not have killed the connection.
	if !b.IsConnected() {
		t.Error("connection dropped after malformed payload")
	}
	mu.Lock()
	defer mu.Unlock()
	if string(msgs[0]) != `{"type":"auth_failed","message":"no"}` {
		t.Errorf("dispatched frame = %s", msgs[0])
	}
}

// A drop while running schedules exactly one reconnect after the delay.
func TestReconnectAfterDrop(t *testing.T) {
	ep := newTestEndpoint(t)
	b, events := newTestBridge(t, ep, Options{})

	b.Connect()
	conn := ep.acceptConn(t)
	waitEvent(t, events, true)

	conn.Close()
	waitEvent(t, events, false)

	ep.acceptConn(t)
	waitEvent(t, events, true)

	if got := ep.dialCount(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
	if !b.IsConnected() {
		t.Error("bridge not connected after reconnect")
	}
}

// An explicit disconnect during the reconnect delay cancels the pending
// attempt.
func TestDisconnectCancelsReconnect(t *testing.T) {
	ep := newTestEndpoint(t)
	b, events := newTestBridge(t, ep, Options{ReconnectDelay: 300 * time.Millisecond})

	b.Connect()
	conn := ep.acceptConn(t)
	waitEvent(t, events, true)

	conn.Close()
	waitEvent(t, events, false)

	b.Disconnect()
	time.Sleep(600 * time.Millisecond)

	if got := ep.dialCount(); got != 1 {
		t.Errorf("dials = %d after explicit disconnect, want 1", got)
	}
	if _, _, _, running := b.Info(); running {
		t.Error("running flag still set after Disconnect")
	}
}

// Connection events must arrive in the order the state flags changed,
// strictly alternating across repeated drops.
func TestConnectionEventOrdering(t *testing.T) {
	ep := newTestEndpoint(t)
	b, events := newTestBridge(t, ep, Options{})

	b.Connect()
	for i := 0; i < 3; i++ {
		conn := ep.acceptConn(t)
		waitEvent(t, events, true)
		conn.Close()
		waitEvent(t, events, false)
	}

	ep.acceptConn(t)
	waitEvent(t, events, true)

	select {
	case ev := <-events:
		t.Errorf("unexpected trailing event %v", ev)
	default:
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	ep := newTestEndpoint(t)
	b, _ := newTestBridge(t, ep, Options{})

	err := b.SendMessage(protocol.Auth{Username: "x"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestUpdateEndpoint(t *testing.T) {
	epA := newTestEndpoint(t)
	epB := newTestEndpoint(t)
	b, events := newTestBridge(t, epA, Options{})

	b.Connect()
	epA.acceptConn(t)
	waitEvent(t, events, true)

	hostB, portB := epB.hostPort(t)
	b.UpdateEndpoint(hostB, portB)

	epB.acceptConn(t)
	waitEvent(t, events, false) // old endpoint torn down
	waitEvent(t, events, true)  // new endpoint up

	host, port, state, running := b.Info()
	if host != hostB || port != portB {
		t.Errorf("endpoint = %s:%d, want %s:%d", host, port, hostB, portB)
	}
	if state != Connected || !running {
		t.Errorf("state = %v running = %v, want connected/true", state, running)
	}
}
