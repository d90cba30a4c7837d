package channel

import (
	"fmt"

	"github.com/sakif/portfolio/internal/protocol"
)

// Bus is an in-process channel for tests and demos. Frames are queued on
// Send and handed out by Flush, so a test drives delivery explicitly and
// never re-enters an engine from inside its own Send.
type Bus struct {
	endpoints []*Endpoint
	queue     []pending
}

type pending struct {
	from *Endpoint
	msg  protocol.Message
}

// Endpoint is one participant on a Bus. It implements engine.Transport.
type Endpoint struct {
	bus     *Bus
	id      string
	deliver func(protocol.Message)
	gone    bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Connect adds a participant whose inbound frames go to deliver.
func (b *Bus) Connect(deliver func(protocol.Message)) *Endpoint {
	ep := &Endpoint{bus: b, id: fmt.Sprintf("peer-%d", len(b.endpoints)+1), deliver: deliver}
	b.endpoints = append(b.endpoints, ep)
	return ep
}

// ConnectHost adds the sharing participant. Its frames carry HostSender,
// the way the hub stamps them.
func (b *Bus) ConnectHost(deliver func(protocol.Message)) *Endpoint {
	ep := b.Connect(deliver)
	ep.id = HostSender
	return ep
}

// ID is the Sender stamped on this endpoint's frames.
func (e *Endpoint) ID() string { return e.id }

// Send queues msg for every other connected endpoint.
func (e *Endpoint) Send(msg protocol.Message) error {
	if e.gone {
		return ErrClosed
	}
	msg.Sender = e.id
	e.bus.queue = append(e.bus.queue, pending{from: e, msg: msg})
	return nil
}

// Disconnect removes the endpoint. Queued frames to it are dropped.
func (e *Endpoint) Disconnect() {
	e.gone = true
}

// Flush delivers queued frames in send order until the queue is empty,
// including frames sent while flushing. It returns how many frames were
// taken off the queue.
func (b *Bus) Flush() int {
	n := 0
	for len(b.queue) > 0 {
		p := b.queue[0]
		b.queue = b.queue[1:]
		n++
		for _, ep := range b.endpoints {
			if ep == p.from || ep.gone {
				continue
			}
			ep.deliver(p.msg)
		}
	}
	return n
}

// Pending is the number of frames waiting for Flush.
func (b *Bus) Pending() int {
	return len(b.queue)
}
