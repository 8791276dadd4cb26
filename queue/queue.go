// Package queue implements the queue family that shapes link
// behaviour between a TCP source/sink and the pipes carrying its
// traffic: FIFO, Random/RED, Priority and Lossless, all sharing one
// receive/serve contract (spec.md §4.5). The shared service-time and
// rate bookkeeping is ported from flow-sim.go's strmQueue, which
// mrnes uses to model a service line draining at a configured bit
// rate.
package queue

import (
	"fmt"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/trace"
)

// Stats mirrors the per-queue counters spec.md §3.6 requires: enqueued,
// dequeued, dropped, bytes.
type Stats struct {
	Enqueued int
	Dequeued int
	Dropped  int
	Bytes    int64
}

// dequeueFunc pops the next packet a variant's policy chooses to serve
// next, or reports none is available.
type dequeueFunc func() (*pkt.Packet, bool)

// base carries the bookkeeping every queue variant shares: name,
// service rate, capacity, the downstream sink, and whether the
// service line is currently busy draining a packet (flow-sim.go's
// strmQueue models the same rate/idle-line split).
type base struct {
	name     string
	rateBps  float64
	maxBytes int
	next     pkt.Sink
	busy     bool
	stats    Stats
	logger   trace.Logger
}

func newBase(name string, rateBps float64, maxBytes int) base {
	if rateBps <= 0 {
		panic(fmt.Sprintf("queue %q: service rate must be positive", name))
	}
	return base{name: name, rateBps: rateBps, maxBytes: maxBytes}
}

// Name returns the queue's configured identifier.
func (b *base) Name() string { return b.name }

// SetNext wires the sink that packets are forwarded to once served.
func (b *base) SetNext(next pkt.Sink) { b.next = next }

// LogTo attaches a logger that receives enqueue/dequeue/drop events
// from this queue (spec.md §5, observer hooks).
func (b *base) LogTo(l trace.Logger) { b.logger = l }

func (b *base) log(el *engine.EventList, p *pkt.Packet, op string) {
	if b.logger == nil {
		return
	}
	flowID := 0
	if p.Flow != nil {
		flowID = p.Flow.ID
	}
	b.logger.LogEvent(el.Now(), flowID, b.name, op)
}

// Stats returns a snapshot of the queue's counters.
func (b *base) Stats() Stats { return b.stats }

// serviceTime returns the transmission time for a packet of the given
// byte size at this queue's configured rate (spec.md §4.5: "packet.size_bits
// / service_rate").
func (b *base) serviceTime(sizeBytes int) engine.Time {
	return engine.FromBitrate(sizeBytes, b.rateBps)
}

// drain kicks off service when the line is idle and dequeue yields a
// packet, scheduling a transmission_complete event after its service
// time; on completion the packet is handed to the next hop and
// service continues with whatever dequeue yields next, if anything
// (spec.md §4.5).
func (b *base) drain(el *engine.EventList, dequeue dequeueFunc) {
	if b.busy {
		return
	}
	p, ok := dequeue()
	if !ok {
		return
	}
	b.busy = true
	el.Schedule(nil, p, func(el *engine.EventList, _ any, data any) any {
		packet := data.(*pkt.Packet)
		b.busy = false
		b.stats.Dequeued++
		b.log(el, packet, "dequeue")
		packet.Advance()
		if b.next != nil {
			b.next.Receive(el, packet)
		} else if hop, ok := packet.NextHop(); ok {
			hop.Receive(el, packet)
		}
		b.drain(el, dequeue)
		return nil
	}, b.serviceTime(p.Size))
}
