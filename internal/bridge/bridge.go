// Package bridge maintains one logical websocket connection to the
// controller endpoint across transient failures. It knows nothing about
// sessions or permissions: it dials, reconnects, queues outbound frames
// and hands inbound frames to registered listeners.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/command"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected = errors.New("bridge: not connected")
	ErrQueueFull    = errors.New("bridge: send queue full")
)

const teardownWait = 2 * time.Second

// Options tune the bridge timing. Zero values fall back to the defaults
// the desktop client has always used.
type Options struct {
	DialTimeout    time.Duration
	ReconnectDelay time.Duration
	SettleDelay    time.Duration
}

func (o *Options) fill() {
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = 4 * time.Second
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
}

// Bridge is the connection state machine. All flag mutations happen
// under mu, and every transition queues its connection event in the
// same critical section, so listeners observe events in the exact
// order the flags changed. Delivery itself runs outside mu, which lets
// listeners call back into the bridge.
type Bridge struct {
	opts Options

	mu             sync.Mutex
	host           string
	port           int
	state          State
	running        bool
	conn           *websocket.Conn
	send           chan []byte
	readerDone     chan struct{}
	reconnectTimer *time.Timer
	connEvents     []bool
	flushing       bool

	emitMu       sync.Mutex
	onMessage    []func(data []byte)
	onConnection []func(connected bool)
	onError      []func(err error)
}

func New(host string, port int, opts Options) *Bridge {
	opts.fill()
	return &Bridge{opts: opts, host: host, port: port}
}

// OnMessage registers a listener for inbound frames. Listeners run on
// the receive goroutine and must not block for long; marshal heavy work
// elsewhere.
func (b *Bridge) OnMessage(fn func(data []byte)) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.onMessage = append(b.onMessage, fn)
}

func (b *Bridge) OnConnectionChange(fn func(connected bool)) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.onConnection = append(b.onConnection, fn)
}

func (b *Bridge) OnError(fn func(err error)) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.onError = append(b.onError, fn)
}

// Connect starts the connection attempt. It returns immediately; the
// outcome arrives as a connection-change event or a scheduled retry.
func (b *Bridge) Connect() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.running = true
	if b.state != Disconnected {
		return
	}
	b.state = Connecting
	go b.dial(b.url())
}

func (b *Bridge) url() string {
	return fmt.Sprintf("ws://%s:%d", b.host, b.port)
}

func (b *Bridge) dial(url string) {
	dialer := websocket.Dialer{HandshakeTimeout: b.opts.DialTimeout}
	conn, _, err := dialer.Dial(url, nil)

	b.mu.Lock()
	if !b.running {
		// Disconnect was requested while the handshake was in flight.
		b.state = Disconnected
		b.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		b.state = Disconnected
		b.scheduleReconnectLocked()
		b.mu.Unlock()
		b.emitError(fmt.Errorf("bridge: dial %s: %w", url, err))
		return
	}

	b.conn = conn
	b.state = Connected
	b.send = make(chan []byte, 64)
	b.readerDone = make(chan struct{})
	sendCh := b.send
	readerDone := b.readerDone
	b.queueConnEventLocked(true)
	b.mu.Unlock()

	log.Printf("connected to %s", url)
	b.flushConnEvents()

	go b.writePump(conn, sendCh)
	go b.readLoop(conn, readerDone)
}

func (b *Bridge) writePump(conn *websocket.Conn, send chan []byte) {
	for msg := range send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.emitError(fmt.Errorf("bridge: write: %w", err))
			return
		}
	}
}

// readLoop is the only reader for its connection. Frames must be valid
// JSON; anything else is reported and dropped.
func (b *Bridge) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.handleClose(conn, err)
			return
		}
		if !json.Valid(data) {
			b.emitError(errors.New("bridge: invalid payload format"))
			continue
		}
		b.emitMessage(data)
	}
}

// handleClose runs the Connected -> Disconnected transition for conn.
// A stale connection (already replaced) is ignored.
func (b *Bridge) handleClose(conn *websocket.Conn, cause error) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.state = Disconnected
	close(b.send)
	b.send = nil
	if b.running {
		b.scheduleReconnectLocked()
	}
	b.queueConnEventLocked(false)
	b.mu.Unlock()

	conn.Close()
	log.Printf("connection closed: %v", cause)
	b.flushConnEvents()
}

// queueConnEventLocked records a connection event while b.mu is held,
// which pins the event order to the flag order. The caller flushes
// after releasing the lock.
func (b *Bridge) queueConnEventLocked(connected bool) {
	b.connEvents = append(b.connEvents, connected)
}

// flushConnEvents delivers queued connection events in order. Only one
// flusher runs at a time; a nested or concurrent call returns and
// leaves its event to the active one.
func (b *Bridge) flushConnEvents() {
	for {
		b.mu.Lock()
		if b.flushing || len(b.connEvents) == 0 {
			b.mu.Unlock()
			return
		}
		b.flushing = true
		ev := b.connEvents[0]
		b.connEvents = b.connEvents[1:]
		b.mu.Unlock()

		b.emitConnection(ev)

		b.mu.Lock()
		b.flushing = false
		b.mu.Unlock()
	}
}

// scheduleReconnectLocked arms the single reconnect timer. Callers hold
// b.mu. The timer body re-checks the state so a disconnect issued during
// the delay wins.
func (b *Bridge) scheduleReconnectLocked() {
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
	}
	log.Printf("reconnecting in %v", b.opts.ReconnectDelay)
	b.reconnectTimer = time.AfterFunc(b.opts.ReconnectDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.running || b.state != Disconnected {
			return
		}
		b.state = Connecting
		go b.dial(b.url())
	})
}

// SendMessage queues a wire message for transmission.
func (b *Bridge) SendMessage(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return b.enqueue(data)
}

// SendCommand normalizes a device command (legacy or structured) and
// queues its wire form.
func (b *Bridge) SendCommand(raw string) error {
	data, err := command.Normalize(raw)
	if err != nil {
		return err
	}
	return b.enqueue(data)
}

func (b *Bridge) enqueue(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Connected || b.send == nil {
		return ErrNotConnected
	}
	select {
	case b.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Disconnect stops the bridge: no reconnect will be scheduled, any
// pending one is cancelled, the transport is closed and its teardown is
// awaited for a bounded time.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.running = false
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
		b.reconnectTimer = nil
	}
	conn := b.conn
	readerDone := b.readerDone
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
		if readerDone != nil {
			select {
			case <-readerDone:
			case <-time.After(teardownWait):
				log.Printf("timed out waiting for transport teardown")
			}
		}
	}
}

// UpdateEndpoint reconnects to a new host/port: full disconnect, a short
// settle delay for the old socket, then a fresh connect.
func (b *Bridge) UpdateEndpoint(host string, port int) {
	log.Printf("updating endpoint to %s:%d", host, port)
	b.Disconnect()
	time.Sleep(b.opts.SettleDelay)

	b.mu.Lock()
	b.host = host
	b.port = port
	b.mu.Unlock()

	b.Connect()
}

func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Connected
}

// Info reports the current endpoint and flags.
func (b *Bridge) Info() (host string, port int, state State, running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host, b.port, b.state, b.running
}

func (b *Bridge) emitMessage(data []byte) {
	b.emitMu.Lock()
	listeners := b.onMessage
	b.emitMu.Unlock()
	for _, fn := range listeners {
		fn(data)
	}
}

func (b *Bridge) emitConnection(connected bool) {
	b.emitMu.Lock()
	listeners := b.onConnection
	b.emitMu.Unlock()
	for _, fn := range listeners {
		fn(connected)
	}
}

func (b *Bridge) emitError(err error) {
	b.emitMu.Lock()
	listeners := b.onError
	b.emitMu.Unlock()
	if len(listeners) == 0 {
		log.Printf("%v", err)
		return
	}
	for _, fn := range listeners {
		fn(err)
	}
}
