// Package pipe implements the fixed-delay propagation element: one
// direction of a link, as distinct from the interface/queue in front
// of it. A Pipe has no buffer and no capacity limit, the way mrnes's
// transitDelay/enterIngressIntrfc separate propagation delay from the
// interface's rate and buffering (net.go, exitEgressIntrfc through
// enterIngressIntrfc).
package pipe

import (
	"fmt"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/trace"
)

// Config configures a Pipe's fixed propagation delay.
type Config struct {
	Name  string
	Delay engine.Time
}

// Pipe delivers every packet handed to it to the next hop on its
// route after a fixed delay, regardless of size or arrival order of
// other packets (spec.md §4.4: "the pipe has no buffer and no
// capacity limit; it represents the wire, not the interface").
type Pipe struct {
	name   string
	delay  engine.Time
	logger trace.Logger
}

// New constructs a Pipe from cfg. The EventList argument is accepted
// to match every other component's constructor shape (spec.md §6.2)
// even though Pipe itself schedules lazily, only when Receive is
// called.
func New(cfg Config, el *engine.EventList) *Pipe {
	if cfg.Delay < 0 {
		panic(fmt.Sprintf("pipe %q: negative delay %d", cfg.Name, cfg.Delay))
	}
	return &Pipe{name: cfg.Name, delay: cfg.Delay}
}

// Name returns the pipe's configured identifier.
func (p *Pipe) Name() string { return p.name }

// Delay returns the pipe's fixed propagation delay.
func (p *Pipe) Delay() engine.Time { return p.delay }

// LogTo attaches a logger that receives enter/exit events for every
// packet that transits this pipe (spec.md §5).
func (p *Pipe) LogTo(l trace.Logger) { p.logger = l }

// Receive schedules packet_arrival at now()+delay, advancing the
// packet's route index and delivering it to whatever sink is next on
// the packet's route. A zero delay still schedules through the event
// list rather than calling the next sink synchronously, so the packet
// is delivered only after every event already pending at this virtual
// instant has run (spec.md §7, "Zero-delay pipe").
func (p *Pipe) Receive(el *engine.EventList, pk *pkt.Packet) {
	p.logAt(el, pk, "enter")
	pk.Advance()
	el.Schedule(p, pk, func(el *engine.EventList, context any, data any) any {
		pipe := context.(*Pipe)
		packet := data.(*pkt.Packet)
		pipe.logAt(el, packet, "exit")
		if hop, ok := packet.NextHop(); ok {
			hop.Receive(el, packet)
		}
		return nil
	}, p.delay)
}

func (p *Pipe) logAt(el *engine.EventList, pk *pkt.Packet, op string) {
	if p.logger == nil {
		return
	}
	flowID := 0
	if pk.Flow != nil {
		flowID = pk.Flow.ID
	}
	p.logger.LogEvent(el.Now(), flowID, p.name, op)
}
