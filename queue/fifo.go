package queue

import (
	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
)

// FIFOConfig configures a drop-tail FIFO queue.
type FIFOConfig struct {
	Name     string
	RateBps  float64
	MaxBytes int
}

// FIFO is the plain drop-tail queue: packets are served in arrival
// order, and an arrival that would push occupancy (buffered bytes plus
// the packet being transmitted) over MaxBytes is dropped outright
// (spec.md §4.5, §7 "Queue at exactly max_bytes").
type FIFO struct {
	base
	buf            []*pkt.Packet
	bufferBytes    int
	inServiceBytes int // size of the packet on the service line, counted in bufferBytes
}

// NewFIFO constructs a FIFO queue.
func NewFIFO(cfg FIFOConfig, el *engine.EventList) *FIFO {
	return &FIFO{base: newBase(cfg.Name, cfg.RateBps, cfg.MaxBytes)}
}

// Receive enqueues p, dropping it if doing so would exceed MaxBytes.
func (q *FIFO) Receive(el *engine.EventList, p *pkt.Packet) {
	q.stats.Enqueued++
	if q.bufferBytes+p.Size > q.maxBytes {
		q.stats.Dropped++
		q.log(el, p, "drop")
		p.Free()
		return
	}
	q.bufferBytes += p.Size
	q.stats.Bytes += int64(p.Size)
	q.buf = append(q.buf, p)
	q.log(el, p, "enqueue")
	q.drain(el, q.popFront)
}

func (q *FIFO) popFront() (*pkt.Packet, bool) {
	// The line only asks for a packet when it is idle, so the packet it
	// took last has finished transmitting and leaves the occupancy count.
	q.bufferBytes -= q.inServiceBytes
	q.inServiceBytes = 0
	if len(q.buf) == 0 {
		return nil, false
	}
	p := q.buf[0]
	q.buf = q.buf[1:]
	q.inServiceBytes = p.Size
	return p, true
}

// BufferedBytes reports current occupancy, including the packet being
// transmitted.
func (q *FIFO) BufferedBytes() int { return q.bufferBytes }
