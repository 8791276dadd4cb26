package tcp

import (
	"fmt"
	"sort"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/trace"
)

// SinkConfig configures a TCP sink.
type SinkConfig struct {
	Name        string
	RecvWindow  uint32
	AckBytes    int // defaults to 40 (spec.md §4.6.2)
	DelayedAck  bool
	DelayedWait engine.Time
	Rev         *pkt.Route // route ACKs travel back along
	Flow        *pkt.Flow
}

// Sink implements the TCP receiver of spec.md §4.6.2: cumulative ACK
// plus an out-of-order set used to produce SACK blocks.
type Sink struct {
	name       string
	el         *engine.EventList
	cumAck     uint32
	outOfOrder []pkt.SackBlock
	recvWindow uint32
	ackBytes   int
	rev        *pkt.Route
	flow       *pkt.Flow
	pool       *pkt.Pool

	delayedAck   bool
	delayedWait  engine.Time
	delayPending bool
	delayHandle  engine.Handle

	logger trace.Logger
}

// LogTo attaches a logger that receives receive/ack events from this
// sink (spec.md §5).
func (k *Sink) LogTo(l trace.Logger) { k.logger = l }

// NewSink constructs a TCP sink.
func NewSink(cfg SinkConfig, el *engine.EventList) *Sink {
	ab := cfg.AckBytes
	if ab <= 0 {
		ab = defaultAckBytes
	}
	return &Sink{
		name:        cfg.Name,
		el:          el,
		recvWindow:  cfg.RecvWindow,
		ackBytes:    ab,
		rev:         cfg.Rev,
		flow:        cfg.Flow,
		pool:        pkt.NewPool(pkt.TCPAck, 0),
		delayedAck:  cfg.DelayedAck,
		delayedWait: cfg.DelayedWait,
	}
}

// CumulativeAck reports the highest in-order byte received so far.
func (k *Sink) CumulativeAck() uint32 { return k.cumAck }

// Receive handles an inbound data segment (spec.md §4.6.2).
func (k *Sink) Receive(el *engine.EventList, p *pkt.Packet) {
	start := p.Seq
	end := p.Seq + uint32(p.PayloadSize)
	flowID := 0
	if p.Flow != nil {
		flowID = p.Flow.ID
	}
	if k.logger != nil {
		k.logger.LogEvent(el.Now(), flowID, k.name, "receive")
	}
	p.Free()

	if start == k.cumAck {
		k.cumAck = end
		k.absorbOutOfOrder()
	} else if seqLess(k.cumAck, start) {
		k.recordGap(start, end)
	}
	// segments entirely below cumAck are stale duplicates; ignored.

	k.scheduleAck(el)
}

// recordGap inserts [start,end) into the out-of-order set, merging
// overlapping or adjacent ranges.
func (k *Sink) recordGap(start, end uint32) {
	k.outOfOrder = append(k.outOfOrder, pkt.SackBlock{Start: start, End: end})
	sort.Slice(k.outOfOrder, func(i, j int) bool { return seqLess(k.outOfOrder[i].Start, k.outOfOrder[j].Start) })

	merged := k.outOfOrder[:0]
	for _, b := range k.outOfOrder {
		if len(merged) > 0 && !seqLess(merged[len(merged)-1].End, b.Start) {
			last := &merged[len(merged)-1]
			if seqLess(last.End, b.End) {
				last.End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	k.outOfOrder = merged
}

// absorbOutOfOrder advances cumAck across any out-of-order ranges that
// have become contiguous with it.
func (k *Sink) absorbOutOfOrder() {
	for {
		advanced := false
		for i, b := range k.outOfOrder {
			if b.Start == k.cumAck {
				k.cumAck = b.End
				k.outOfOrder = append(k.outOfOrder[:i], k.outOfOrder[i+1:]...)
				advanced = true
				break
			}
		}
		if !advanced {
			return
		}
	}
}

// scheduleAck emits an ACK immediately, or arms a single coalescing
// delayed-ack timer if DelayedAck is enabled (spec.md §4.x additions).
func (k *Sink) scheduleAck(el *engine.EventList) {
	if !k.delayedAck {
		k.sendAck(el)
		return
	}
	if k.delayPending {
		return
	}
	k.delayPending = true
	k.delayHandle = el.Schedule(k, nil, func(el *engine.EventList, context any, _ any) any {
		sink := context.(*Sink)
		sink.delayPending = false
		sink.sendAck(el)
		return nil
	}, k.delayedWait)
}

func (k *Sink) sendAck(el *engine.EventList) {
	a := k.pool.Get()
	a.Flow = k.flow
	a.Fwd = k.rev
	a.AckNum = k.cumAck
	a.Window = k.recvWindow
	a.Size = k.ackBytes
	a.Sacks = append(a.Sacks[:0], k.outOfOrder...)

	if k.logger != nil {
		flowID := 0
		if k.flow != nil {
			flowID = k.flow.ID
		}
		k.logger.LogEvent(el.Now(), flowID, k.name, "ack-sent")
	}
	if hop, ok := a.NextHop(); ok {
		hop.Receive(el, a)
	} else {
		a.Free()
	}
}

// GlobalName satisfies engine.EventSource.
func (k *Sink) GlobalName() string { return fmt.Sprintf("tcp.Sink(%s)", k.name) }
