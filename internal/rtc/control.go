package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

var errControlChannelClosed = errors.New("control channel is closed")

// dataChannel is the subset of *webrtc.DataChannel the control channel uses.
type dataChannel interface {
	Label() string
	OnOpen(func())
	OnClose(func())
	OnMessage(func(webrtc.DataChannelMessage))
	Send([]byte) error
	Close() error
}

// controlChannel adapts a data channel to ports.ControlChannel. Inbound
// messages are queued without bound so the data channel callback never
// blocks, and are delivered in arrival order by a single pump goroutine.
type controlChannel struct {
	dc       dataChannel
	opened   chan struct{}
	messages chan []byte
	done     chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool

	openOnce  sync.Once
	closeOnce sync.Once
}

func newControlChannel(dc dataChannel) *controlChannel {
	c := &controlChannel{
		dc:       dc,
		opened:   make(chan struct{}),
		messages: make(chan []byte),
		done:     make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.opened) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.enqueue(msg.Data)
	})
	dc.OnClose(c.shutdown)

	go c.pump()
	return c
}

func (c *controlChannel) Label() string           { return c.dc.Label() }
func (c *controlChannel) Opened() <-chan struct{} { return c.opened }
func (c *controlChannel) Messages() <-chan []byte { return c.messages }

func (c *controlChannel) Send(payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errControlChannelClosed
	}
	return c.dc.Send(payload)
}

func (c *controlChannel) Close() error {
	c.shutdown()
	return c.dc.Close()
}

func (c *controlChannel) enqueue(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, append([]byte(nil), payload...))
	c.cond.Signal()
}

func (c *controlChannel) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.cond.Broadcast()
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *controlChannel) pump() {
	defer close(c.messages)
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		payload := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		select {
		case c.messages <- payload:
		case <-c.done:
			return
		}
	}
}
