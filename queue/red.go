package queue

import (
	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/rng"
)

// REDConfig configures a Random Early Detection queue per spec.md
// §4.5: "(min_thresh, max_thresh, max_prob, ewma_weight)".
type REDConfig struct {
	Name       string
	RateBps    float64
	MaxBytes   int
	MinThresh  int
	MaxThresh  int
	MaxProb    float64
	EWMAWeight float64
	Seed       string
}

// RED is the Random/RED queue: below MinThresh it never drops, between
// MinThresh and MaxThresh it drops with probability increasing
// linearly from 0 to MaxProb against the EWMA-smoothed occupancy, and
// above MaxThresh it always drops. The drop decision draws from a
// per-queue RNG so results are reproducible given a seed (spec.md
// §4.5 and §9 "Random number generation").
type RED struct {
	base
	cfg            REDConfig
	buf            []*pkt.Packet
	bufferBytes    int
	inServiceBytes int // size of the packet on the service line, counted in bufferBytes
	avg            float64
	rs             *rng.Stream
}

// NewRED constructs a RED queue whose drop stream is created by rng.New
// under the name cfg.Seed (or cfg.Name, if Seed is unset); see rng.New
// for how that name relates to the draws.
func NewRED(cfg REDConfig, el *engine.EventList) *RED {
	seed := cfg.Seed
	if seed == "" {
		seed = cfg.Name
	}
	return &RED{
		base: newBase(cfg.Name, cfg.RateBps, cfg.MaxBytes),
		cfg:  cfg,
		rs:   rng.New(seed),
	}
}

// Receive applies the RED admission policy, updates the EWMA estimate
// of queue occupancy, and enqueues or drops accordingly.
func (q *RED) Receive(el *engine.EventList, p *pkt.Packet) {
	q.stats.Enqueued++
	q.avg = (1-q.cfg.EWMAWeight)*q.avg + q.cfg.EWMAWeight*float64(q.bufferBytes)

	if q.dropDecision() {
		q.stats.Dropped++
		q.log(el, p, "drop")
		p.Free()
		return
	}
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

// dropDecision implements the three occupancy regimes of spec.md §4.5.
func (q *RED) dropDecision() bool {
	switch {
	case q.avg < float64(q.cfg.MinThresh):
		return false
	case q.avg >= float64(q.cfg.MaxThresh):
		return true
	default:
		span := float64(q.cfg.MaxThresh - q.cfg.MinThresh)
		if span <= 0 {
			return false
		}
		prob := q.cfg.MaxProb * (q.avg - float64(q.cfg.MinThresh)) / span
		return q.rs.Bool(prob)
	}
}

func (q *RED) popFront() (*pkt.Packet, bool) {
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

// AverageOccupancy returns the current EWMA-smoothed occupancy
// estimate, exposed mainly for test observability.
func (q *RED) AverageOccupancy() float64 { return q.avg }
