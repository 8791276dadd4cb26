package topo

import (
	"fmt"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pipe"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/queue"
	"github.com/iti/tcpnet/trace"
)

// statsReporter is satisfied by every queue variant.
type statsReporter interface {
	Stats() queue.Stats
}

// loggable is satisfied by every queue variant and pipe.Pipe; it lets
// Builder wire a shared trace.Logger into whatever it instantiates
// without each concrete type needing to implement pkt.Sink's
// interface plus a logging one in a single combined type.
type loggable interface {
	LogTo(l trace.Logger)
}

// Builder instantiates the live queue/pipe/tcp/mptcp objects a
// TopoDesc only describes, caching one queue and one pipe instance per
// link so that multiple flows sharing a link share its congestion
// point, the way a real bottleneck link is a single shared resource
// (spec.md §8 "two TCP flows sharing one bottleneck"). This mirrors
// net.go's role relative to desc-topo.go: the Frame/Desc layer is pure
// configuration, net.go (here, Builder) is where live devices appear.
type Builder struct {
	desc   *TopoDesc
	el     *engine.EventList
	router *Router
	logger trace.Logger

	queues map[string]pkt.Sink
	pipes  map[string]*pipe.Pipe
}

// NewBuilder constructs a Builder over desc, ready to build routes and
// connect endpoints against el.
func NewBuilder(desc *TopoDesc, el *engine.EventList) *Builder {
	return &Builder{
		desc:   desc,
		el:     el,
		router: NewRouter(desc),
		queues: make(map[string]pkt.Sink),
		pipes:  make(map[string]*pipe.Pipe),
	}
}

// LogTo attaches a logger that every queue/pipe this Builder creates
// from now on (and every one it already created) reports events to.
func (b *Builder) LogTo(l trace.Logger) {
	b.logger = l
	for _, q := range b.queues {
		if lg, ok := q.(loggable); ok {
			lg.LogTo(l)
		}
	}
	for _, p := range b.pipes {
		p.LogTo(l)
	}
}

// queueFor returns the shared queue instance for link l, constructing
// it on first use per spec.md §4.5's queue family.
func (b *Builder) queueFor(l LinkFrame) (pkt.Sink, error) {
	if q, ok := b.queues[l.Name]; ok {
		return q, nil
	}
	var q pkt.Sink
	switch l.Queue {
	case FIFOQueueKind:
		q = queue.NewFIFO(queue.FIFOConfig{Name: l.Name, RateBps: l.RateBps, MaxBytes: l.MaxBytes}, b.el)
	case REDQueueKind:
		q = queue.NewRED(queue.REDConfig{
			Name: l.Name, RateBps: l.RateBps, MaxBytes: l.MaxBytes,
			MinThresh: l.MinThresh, MaxThresh: l.MaxThresh,
			MaxProb: l.MaxProb, EWMAWeight: l.EWMAWeight, Seed: l.Name,
		}, b.el)
	case PriorityQueueKind:
		classes := make([]queue.PriorityClass, len(l.PriorityQuotas))
		for i, quota := range l.PriorityQuotas {
			classes[i] = queue.PriorityClass{Quota: quota}
		}
		if len(classes) == 0 {
			classes = []queue.PriorityClass{{Quota: 0}}
		}
		q = queue.NewPriority(queue.PriorityConfig{Name: l.Name, RateBps: l.RateBps, MaxBytes: l.MaxBytes, Classes: classes}, b.el)
	case LosslessQueueKind:
		q = queue.NewLossless(queue.LosslessConfig{
			Name: l.Name, RateBps: l.RateBps, MaxBytes: l.MaxBytes,
			HighWater: l.HighWater, LowWater: l.LowWater,
		}, b.el)
	default:
		return nil, fmt.Errorf("topo: link %q has unrecognized queue kind %v", l.Name, l.Queue)
	}
	if b.logger != nil {
		if lg, ok := q.(loggable); ok {
			lg.LogTo(b.logger)
		}
	}
	b.queues[l.Name] = q
	return q, nil
}

// pipeFor returns the shared pipe instance for link l.
func (b *Builder) pipeFor(l LinkFrame) *pipe.Pipe {
	if p, ok := b.pipes[l.Name]; ok {
		return p
	}
	p := pipe.New(pipe.Config{Name: l.Name + "-pipe", Delay: engine.FromSeconds(l.DelaySeconds)}, b.el)
	if b.logger != nil {
		p.LogTo(b.logger)
	}
	b.pipes[l.Name] = p
	return p
}

// hopsAlong builds the queue-then-pipe hop sequence for consecutive
// node names on a path, per spec.md §4.4/§4.5's queue-in-front-of-pipe
// ordering.
func (b *Builder) hopsAlong(nodePath []string) ([]pkt.Sink, error) {
	var hops []pkt.Sink
	for i := 0; i+1 < len(nodePath); i++ {
		l, ok := b.desc.linkBetween(nodePath[i], nodePath[i+1])
		if !ok {
			return nil, fmt.Errorf("topo: no link from %q to %q", nodePath[i], nodePath[i+1])
		}
		q, err := b.queueFor(l)
		if err != nil {
			return nil, err
		}
		hops = append(hops, q, b.pipeFor(l))
	}
	return hops, nil
}

// Route builds a pkt.Route along the shortest path from src to dst,
// appending terminal (the receiving endpoint's Sink) as the final hop.
func (b *Builder) Route(src, dst string, terminal pkt.Sink) (*pkt.Route, error) {
	nodePath, err := b.router.ShortestPath(src, dst)
	if err != nil {
		return nil, err
	}
	hops, err := b.hopsAlong(nodePath)
	if err != nil {
		return nil, err
	}
	hops = append(hops, terminal)
	return pkt.NewRoute(hops...), nil
}

// QueueStats returns the current counters for the shared queue
// instance on the named link, and whether that link's queue has been
// instantiated yet (i.e. some route has traversed it).
func (b *Builder) QueueStats(linkName string) (queue.Stats, bool) {
	q, ok := b.queues[linkName]
	if !ok {
		return queue.Stats{}, false
	}
	reporter, ok := q.(statsReporter)
	if !ok {
		return queue.Stats{}, false
	}
	return reporter.Stats(), true
}

// RouteVia builds a pkt.Route along an explicit, ordered sequence of
// link names rather than a shortest-path computation, appending
// terminal as the final hop. Multipath scenarios (spec.md §4.7) need
// this: MPTCP subflows are assigned to specific, often physically
// disjoint paths rather than each independently recomputing the
// topology's shortest path.
func (b *Builder) RouteVia(linkNames []string, terminal pkt.Sink) (*pkt.Route, error) {
	var hops []pkt.Sink
	for i, name := range linkNames {
		l, ok := b.desc.LinkByName(name)
		if !ok {
			return nil, fmt.Errorf("topo: unknown link %q", name)
		}
		if i > 0 {
			prev, _ := b.desc.LinkByName(linkNames[i-1])
			if prev.To != l.From {
				return nil, fmt.Errorf("topo: link %q does not continue from link %q", name, linkNames[i-1])
			}
		}
		q, err := b.queueFor(l)
		if err != nil {
			return nil, err
		}
		hops = append(hops, q, b.pipeFor(l))
	}
	hops = append(hops, terminal)
	return pkt.NewRoute(hops...), nil
}
