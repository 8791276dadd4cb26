package queue

import (
	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
)

// PriorityClass configures one priority level: its own FIFO buffer
// and an optional byte quota bounding how much of it is served per
// visit before lower classes get a turn (spec.md §4.5, "optional
// per-class byte quotas to bound starvation").
type PriorityClass struct {
	Quota int // 0 means unbounded
}

// PriorityConfig configures a strict-priority queue. Classes are
// ordered highest priority first.
type PriorityConfig struct {
	Name     string
	RateBps  float64
	MaxBytes int
	Classes  []PriorityClass
}

// Priority is the strict-priority queue: the highest non-empty class
// is served to completion before any lower class is considered,
// subject to each class's optional byte quota per service opportunity
// (spec.md §4.5).
type Priority struct {
	base
	classes     []PriorityClass
	bufs        [][]*pkt.Packet
	bufferBytes int
	served      []int // bytes served from the current class's quota window
}

// NewPriority constructs a Priority queue with len(cfg.Classes) FIFOs,
// ordered from highest priority (index 0) to lowest.
func NewPriority(cfg PriorityConfig, el *engine.EventList) *Priority {
	return &Priority{
		base:    newBase(cfg.Name, cfg.RateBps, cfg.MaxBytes),
		classes: cfg.Classes,
		bufs:    make([][]*pkt.Packet, len(cfg.Classes)),
		served:  make([]int, len(cfg.Classes)),
	}
}

// Receive enqueues p into the FIFO for its Class, clamped into range,
// dropping it if the shared buffer would exceed MaxBytes.
func (q *Priority) Receive(el *engine.EventList, p *pkt.Packet) {
	q.stats.Enqueued++
	class := p.Class
	if class < 0 || class >= len(q.bufs) {
		class = 0
	}
	if q.bufferBytes+p.Size > q.maxBytes {
		q.stats.Dropped++
		q.log(el, p, "drop")
		p.Free()
		return
	}
	q.bufferBytes += p.Size
	q.stats.Bytes += int64(p.Size)
	q.bufs[class] = append(q.bufs[class], p)
	q.log(el, p, "enqueue")
	q.drain(el, q.popHighest)
}

func (q *Priority) popHighest() (*pkt.Packet, bool) {
	for i, buf := range q.bufs {
		if len(buf) == 0 {
			continue
		}
		quota := 0
		if i < len(q.classes) {
			quota = q.classes[i].Quota
		}
		if quota > 0 && q.served[i] >= quota {
			q.served[i] = 0
			continue
		}
		p := buf[0]
		q.bufs[i] = buf[1:]
		q.bufferBytes -= p.Size
		q.served[i] += p.Size
		return p, true
	}
	for i := range q.served {
		q.served[i] = 0
	}
	return nil, false
}
