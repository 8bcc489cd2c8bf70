package hub

import (
	"errors"
	"sync"
	"testing"
)

func TestEnqueueAfterClose(t *testing.T) {
	c := &client{send: make(chan []byte, 64)}
	c.close()

	if err := c.enqueue([]byte("x")); !errors.Is(err, errClientClosed) {
		t.Errorf("enqueue after close = %v, want errClientClosed", err)
	}
	// A second close must be a no-op.
	c.close()
}

func TestEnqueueCloseRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := &client{send: make(chan []byte, 4)}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.enqueue([]byte("x"))
			}
		}()
		go func() {
			defer wg.Done()
			c.close()
		}()
		wg.Wait()
	}
}

func TestBroadcastSkipsClosedClient(t *testing.T) {
	h := New(nil, nil, 0)

	open := &client{send: make(chan []byte, 4)}
	gone := &client{send: make(chan []byte, 4)}
	h.clients[open] = true
	h.clients[gone] = true

	gone.close()
	h.broadcastRaw([]byte("tick"))

	select {
	case got := <-open.send:
		if string(got) != "tick" {
			t.Errorf("open client got %q", got)
		}
	default:
		t.Error("open client received nothing")
	}
	if _, ok := h.clients[open]; !ok {
		t.Error("open client was dropped")
	}
}
