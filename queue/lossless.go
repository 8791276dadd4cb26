package queue

import (
	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
)

// LosslessConfig configures a PFC-style lossless queue. HighWater and
// LowWater are byte thresholds on occupancy (spec.md §4.5: "signal
// backpressure... when occupancy exceeds a high-water mark; resume
// when below low-water mark").
type LosslessConfig struct {
	Name      string
	RateBps   float64
	MaxBytes  int
	HighWater int
	LowWater  int
}

// Upstream is the small capability a Lossless queue's upstream neighbour
// must implement to receive PAUSE/RESUME backpressure signals.
type Upstream interface {
	Pause()
	Resume()
}

// Lossless never drops packets for capacity reasons; instead it
// signals PAUSE to its upstream neighbour once occupancy crosses
// HighWater, and RESUME once it falls back below LowWater. Packets may
// still be dropped by policy (TTL expiry), never by overflow (spec.md
// §4.5, and §9 "TCP remains oblivious to PFC").
type Lossless struct {
	base
	cfg            LosslessConfig
	buf            []*pkt.Packet
	bufferBytes    int
	inServiceBytes int // size of the packet on the service line, counted in bufferBytes
	paused         bool
	upstream       Upstream
}

// NewLossless constructs a Lossless queue.
func NewLossless(cfg LosslessConfig, el *engine.EventList) *Lossless {
	return &Lossless{base: newBase(cfg.Name, cfg.RateBps, cfg.MaxBytes), cfg: cfg}
}

// SetUpstream wires the neighbour that receives PAUSE/RESUME signals.
func (q *Lossless) SetUpstream(u Upstream) { q.upstream = u }

// Receive enqueues p. A packet with an expired TTL is dropped by
// policy rather than buffered; otherwise it is always accepted (the
// topology must be provisioned so MaxBytes is never actually
// exhausted once backpressure is honored upstream). Packets with no
// TTL policy (pkt.Pool's default) never match the expiry check below
// and are never decremented, so they are exempt from TTL drops.
func (q *Lossless) Receive(el *engine.EventList, p *pkt.Packet) {
	q.stats.Enqueued++
	if p.TTL == 0 {
		q.stats.Dropped++
		q.log(el, p, "drop")
		p.Free()
		return
	}
	if p.TTL > 0 {
		p.TTL--
	}
	q.bufferBytes += p.Size
	q.stats.Bytes += int64(p.Size)
	q.buf = append(q.buf, p)
	q.log(el, p, "enqueue")
	q.checkWatermarks()
	q.drain(el, q.popFront)
}

func (q *Lossless) popFront() (*pkt.Packet, bool) {
	// The line only asks for a packet when it is idle, so the packet it
	// took last has finished transmitting and leaves the occupancy count.
	q.bufferBytes -= q.inServiceBytes
	q.inServiceBytes = 0
	q.checkWatermarks()
	if len(q.buf) == 0 {
		return nil, false
	}
	p := q.buf[0]
	q.buf = q.buf[1:]
	q.inServiceBytes = p.Size
	return p, true
}

func (q *Lossless) checkWatermarks() {
	if q.upstream == nil {
		return
	}
	if !q.paused && q.bufferBytes >= q.cfg.HighWater {
		q.paused = true
		q.upstream.Pause()
	} else if q.paused && q.bufferBytes <= q.cfg.LowWater {
		q.paused = false
		q.upstream.Resume()
	}
}

// Paused reports whether this queue currently has backpressure asserted.
func (q *Lossless) Paused() bool { return q.paused }

// BufferedBytes reports current occupancy, including the packet being
// transmitted.
func (q *Lossless) BufferedBytes() int { return q.bufferBytes }
