// Package pkt holds the packet/flow data model and the Route/Sink
// abstraction packets travel through. It is deliberately dependency-free
// of any particular queue or protocol implementation, the way the
// teacher's networkMsg in net.go carries only route/stepIdx/flow
// bookkeeping and lets devices interpret it.
package pkt

import (
	"fmt"

	"github.com/iti/tcpnet/engine"
)

// Type tags the protocol role of a packet, per spec.md §3.3.
type Type int

const (
	TCPData Type = iota
	TCPAck
	MPTCPData
	MPTCPAck
)

func (t Type) String() string {
	switch t {
	case TCPData:
		return "TCPData"
	case TCPAck:
		return "TCPAck"
	case MPTCPData:
		return "MPTCPData"
	case MPTCPAck:
		return "MPTCPAck"
	default:
		return "Unknown"
	}
}

// SackBlock describes one contiguous range of data the sink has
// received but not yet cumulatively acknowledged.
type SackBlock struct {
	Start, End uint32
}

// Sink is the small capability interface every hop on a Route
// satisfies: it can accept a packet handed to it by the previous hop.
// Queues, pipes, TCP sinks and MPTCP sinks are all Sinks (spec.md
// "DESIGN NOTES", tagged-variant/capability-interface guidance).
type Sink interface {
	Receive(el *engine.EventList, p *Packet)
}

// EventLogger is the minimal surface pkt needs from a logger, so this
// package never has to import the trace package's concrete type.
// trace.Manager satisfies it.
type EventLogger interface {
	LogEvent(t engine.Time, flowID int, objName, op string)
}

// Packet is the unit that travels hop-by-hop along a Route. Ownership
// is linear: a Packet is allocated from a Pool, passed by pointer from
// sink to sink, and returned to its Pool exactly once, at the terminal
// sink or on drop (spec.md §3.3).
type Packet struct {
	Type Type

	// Size is the wire size in bytes, including simulated headers.
	// PayloadSize excludes them (spec.md §6.5).
	Size        int
	PayloadSize int

	Flow *Flow

	// Fwd is the route this packet is travelling; Rev, if set, is the
	// route an acknowledgement for it should travel back along.
	Fwd *Route
	Rev *Route
	Hop int

	Seq        uint32
	AckNum     uint32
	Window     uint32
	Sacks      []SackBlock
	ECN        bool

	// TTL is a hop-count budget a scenario may opt into: a non-negative
	// TTL decrements on every queue.Lossless hop and the packet is
	// dropped by policy once it reaches zero (spec.md §4.5, "may still
	// be dropped by policy (e.g., TTL expiry)"). Its zero value as a Go
	// int would itself mean "expire immediately," which is wrong for a
	// freshly sent packet, so Pool.Get initializes it to noTTLPolicy
	// instead; a packet stays exempt from TTL drops until something
	// explicitly assigns it a non-negative value.
	TTL        int
	Bounced    bool
	Retransmit bool

	// Class is a priority-queue classification assigned by the wiring
	// layer (e.g. control traffic vs. bulk data); unclassified packets
	// default to 0, the highest class.
	Class int

	// SendTime is stamped by the source at every transmission,
	// retransmissions included. The source's own RTT sampling is keyed
	// by sequence number and takes no sample for a retransmitted
	// sequence number (Karn's algorithm).
	SendTime engine.Time

	pool *Pool
	live bool
}

// noTTLPolicy is the sentinel TTL value meaning "no TTL expiry applies
// to this packet," distinct from the zero value so a freshly allocated
// packet is never mistaken for one whose TTL has already expired.
const noTTLPolicy = -1

// NextHop returns the Sink the packet should be delivered to next, and
// whether one exists (false at the end of the route).
func (p *Packet) NextHop() (Sink, bool) {
	if p.Fwd == nil || p.Hop >= p.Fwd.Len() {
		return nil, false
	}
	return p.Fwd.At(p.Hop), true
}

// Advance moves the packet to the next hop index on its forward route.
func (p *Packet) Advance() { p.Hop++ }

// AtTerminal reports whether the packet has reached the last sink on
// its forward route.
func (p *Packet) AtTerminal() bool {
	return p.Fwd == nil || p.Hop >= p.Fwd.Len()-1
}

// Free returns the packet to the pool it was allocated from. A freed
// packet must never be referenced again. Freeing a packet that is not
// live (already freed, or never handed out by a Pool) panics.
func (p *Packet) Free() {
	if !p.live {
		panic("pkt: double free of packet")
	}
	p.live = false
	if p.pool != nil {
		p.pool.put(p)
	}
}

// Pool is a per-type free-list used to avoid allocator pressure under
// sustained packet churn, mirroring spec.md §4.2 and the resource
// policy of §5 ("packets are pooled per type... ceiling after which
// allocation fails loudly").
type Pool struct {
	typ       Type
	free      []*Packet
	ceiling   int
	allocated int
}

// NewPool constructs a pool for one packet Type with an explicit
// allocation ceiling (spec.md §9 open question: "packet-pool ceilings
// are implicit... should be explicit and configurable"). A ceiling of
// zero means unbounded.
func NewPool(t Type, ceiling int) *Pool {
	return &Pool{typ: t, ceiling: ceiling}
}

// Get returns a Packet of the pool's type with every field zeroed
// except TTL, which is set to noTTLPolicy, reusing a freed one if
// available.
func (pl *Pool) Get() *Packet {
	if n := len(pl.free); n > 0 {
		p := pl.free[n-1]
		pl.free = pl.free[:n-1]
		*p = Packet{Type: pl.typ, TTL: noTTLPolicy, pool: pl, live: true}
		return p
	}
	if pl.ceiling > 0 && pl.allocated >= pl.ceiling {
		panic(fmt.Sprintf("pkt: packet pool for %s exhausted (ceiling %d)", pl.typ, pl.ceiling))
	}
	pl.allocated++
	return &Packet{Type: pl.typ, TTL: noTTLPolicy, pool: pl, live: true}
}

func (pl *Pool) put(p *Packet) {
	pl.free = append(pl.free, p)
}

// Allocated reports the high-water mark of packets handed out (alive
// or returned) by this pool.
func (pl *Pool) Allocated() int { return pl.allocated }
