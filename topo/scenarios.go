// Concrete scenario builders for spec.md §8's end-to-end properties:
// a dumbbell carrying one or two TCP flows, a two-path MPTCP topology,
// and an incast fan-in. Each returns the live engine/flow objects a
// driver runs with EventList.RunUntil and then inspects.
package topo

import (
	"fmt"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/mptcp"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/tcp"
)

const standardMSS = 1460

// dumbbellFrame builds the topology shared by scenarios 1, 2 and 5:
// each sender host has its own access link to bottleneck-in, and one
// bottleneck link runs from bottleneck-in to the sink host (every link
// is bidirectional). The bottleneck carries the named rate; access
// links run accessSpeedup times faster. oneWayDelay is split evenly
// between a sender's access link and the bottleneck link, and every
// link gets a buffer of bufferBytes.
func dumbbellFrame(numSenders int, rateBps float64, oneWayDelay float64, bufferBytes int) *TopoFrame {
	// Access links outpace the bottleneck so that queues build at the
	// bottleneck link rather than at a sender's own access link.
	const accessSpeedup = 10
	tf := CreateTopoFrame("dumbbell")
	tf.AddNode("sink")
	access := oneWayDelay / 2
	for i := 0; i < numSenders; i++ {
		src := fmt.Sprintf("src%d", i)
		tf.AddNode(src)
		tf.AddBidirectionalLink(LinkFrame{
			Name: fmt.Sprintf("access%d", i), From: src, To: "bottleneck-in",
			RateBps: accessSpeedup * rateBps, DelaySeconds: access, MaxBytes: bufferBytes, Queue: FIFOQueueKind,
		})
	}
	tf.AddNode("bottleneck-in")
	tf.AddBidirectionalLink(LinkFrame{
		Name: "bottleneck", From: "bottleneck-in", To: "sink",
		RateBps: rateBps, DelaySeconds: access, MaxBytes: bufferBytes, Queue: FIFOQueueKind,
	})
	return tf
}

// DumbbellScenario is scenario 1: one TCP flow across a 10 Gbps, 100 µs
// RTT, 100-packet dumbbell, run for 10 simulated seconds (spec.md §8.1).
type DumbbellScenario struct {
	EventList *engine.EventList
	Builder   *Builder
	Flow      *TCPFlow
}

// BuildDumbbellScenario constructs scenario 1. bufferPackets is
// converted to bytes assuming standardMSS-sized segments, matching
// spec.md's "100-packet buffer" framing, and rttSeconds is the target
// round-trip propagation delay: each direction gets half of it, split
// evenly between the sender's access link and the bottleneck link.
func BuildDumbbellScenario(rateBps, rttSeconds float64, bufferPackets int) (*DumbbellScenario, error) {
	el := engine.NewEventList()
	bufferBytes := bufferPackets * (standardMSS + 40)
	tf := dumbbellFrame(1, rateBps, rttSeconds/2, bufferBytes)
	desc, err := tf.Transform()
	if err != nil {
		return nil, err
	}
	b := NewBuilder(desc, el)

	alloc := pkt.NewFlowIDAllocator(1)
	flow := pkt.NewFlow(alloc.Next(), "dumbbell-flow")
	conn, err := b.ConnectTCP(flow, "src0", "sink",
		tcp.Config{Name: "dumbbell-src", MSS: standardMSS, RecvWindow: 1 << 24},
		tcp.SinkConfig{RecvWindow: 1 << 24},
		0)
	if err != nil {
		return nil, err
	}
	conn.Source.Write(1 << 62) // effectively unbounded data to saturate the bottleneck
	return &DumbbellScenario{EventList: el, Builder: b, Flow: conn}, nil
}

// TwoFlowFairnessScenario is scenario 2: two TCP flows sharing the same
// bottleneck as scenario 1, the second starting one second after the
// first (spec.md §8.2).
type TwoFlowFairnessScenario struct {
	EventList *engine.EventList
	Builder   *Builder
	Flows     []*TCPFlow
}

// BuildTwoFlowFairnessScenario constructs scenario 2.
func BuildTwoFlowFairnessScenario(rateBps, rttSeconds float64, bufferPackets int) (*TwoFlowFairnessScenario, error) {
	el := engine.NewEventList()
	bufferBytes := bufferPackets * (standardMSS + 40)
	tf := dumbbellFrame(2, rateBps, rttSeconds/2, bufferBytes)
	desc, err := tf.Transform()
	if err != nil {
		return nil, err
	}
	b := NewBuilder(desc, el)
	alloc := pkt.NewFlowIDAllocator(1)

	var flows []*TCPFlow
	starts := []engine.Time{0, engine.FromSeconds(1)}
	for i, start := range starts {
		flow := pkt.NewFlow(alloc.Next(), fmt.Sprintf("fairness-flow-%d", i))
		srcNode := fmt.Sprintf("src%d", i)
		conn, err := b.ConnectTCP(flow, srcNode, "sink",
			tcp.Config{Name: srcNode, MSS: standardMSS, RecvWindow: 1 << 24},
			tcp.SinkConfig{RecvWindow: 1 << 24},
			start)
		if err != nil {
			return nil, err
		}
		conn.Source.Write(1 << 62)
		flows = append(flows, conn)
	}
	return &TwoFlowFairnessScenario{EventList: el, Builder: b, Flows: flows}, nil
}

// JainFairnessIndex computes Jain's fairness index over a set of
// per-flow throughputs, per spec.md §8.2's acceptance criterion
// (index ≥ 0.99 for a fair bottleneck split).
func JainFairnessIndex(throughputs []float64) float64 {
	if len(throughputs) == 0 {
		return 0
	}
	var sum, sumSq float64
	for _, t := range throughputs {
		sum += t
		sumSq += t * t
	}
	if sumSq == 0 {
		return 0
	}
	n := float64(len(throughputs))
	return (sum * sum) / (n * sumSq)
}

// TwoPathMPTCPScenario is scenarios 3/4: one MPTCP connection over two
// disjoint paths (path A: 1 Mbps/150 ms, path B: 5 Mbps/10 ms),
// differing only in coupling algorithm (spec.md §8.3, §8.4).
type TwoPathMPTCPScenario struct {
	EventList *engine.EventList
	Builder   *Builder
	Flow      *MPTCPFlow
}

// BuildTwoPathMPTCPScenario constructs scenarios 3 and 4, selecting
// between them via algo.
func BuildTwoPathMPTCPScenario(algo mptcp.Algo) (*TwoPathMPTCPScenario, error) {
	el := engine.NewEventList()
	tf := CreateTopoFrame("two-path-mptcp")
	tf.AddNode("src")
	tf.AddNode("sink")
	tf.AddBidirectionalLink(LinkFrame{
		Name: "pathA", From: "src", To: "sink",
		RateBps: engine.MbpsToBps(1), DelaySeconds: 0.150, MaxBytes: 200 * (standardMSS + 40), Queue: FIFOQueueKind,
	})
	tf.AddBidirectionalLink(LinkFrame{
		Name: "pathB", From: "src", To: "sink",
		RateBps: engine.MbpsToBps(5), DelaySeconds: 0.010, MaxBytes: 200 * (standardMSS + 40), Queue: FIFOQueueKind,
	})
	desc, err := tf.Transform()
	if err != nil {
		return nil, err
	}
	b := NewBuilder(desc, el)

	alloc := pkt.NewFlowIDAllocator(1)
	flow := pkt.NewFlow(alloc.Next(), "mptcp-flow")

	subflows := []SubflowSpec{
		{
			Links: []string{"pathA-fwd"}, RevLinks: []string{"pathA-rev"},
			Cfg:     tcp.Config{Name: "subflow-a", MSS: standardMSS, RecvWindow: 1 << 24},
			SinkCfg: tcp.SinkConfig{RecvWindow: 1 << 24},
		},
		{
			Links: []string{"pathB-fwd"}, RevLinks: []string{"pathB-rev"},
			Cfg:     tcp.Config{Name: "subflow-b", MSS: standardMSS, RecvWindow: 1 << 24},
			SinkCfg: tcp.SinkConfig{RecvWindow: 1 << 24},
		},
	}
	mf, err := b.ConnectMPTCP(flow, mptcp.Config{Name: "mptcp-conn", Algo: algo, RecvWindow: 1 << 24}, subflows, 0)
	if err != nil {
		return nil, err
	}
	for _, sf := range mf.Subflows {
		sf.Source.Write(1 << 62)
	}
	return &TwoPathMPTCPScenario{EventList: el, Builder: b, Flow: mf}, nil
}

// IncastScenario is scenario 5: numSenders TCP flows each sending
// objectBytes to one receiver over a shared fan-in bottleneck
// (spec.md §8.5).
type IncastScenario struct {
	EventList *engine.EventList
	Builder   *Builder
	Flows     []*TCPFlow
}

// BuildIncastScenario constructs scenario 5 (the spec's default is 15
// senders, 100 KB objects, 10 Gbps fan-in, a 100-packet shared buffer).
func BuildIncastScenario(numSenders int, objectBytes int, rateBps float64, bufferPackets int) (*IncastScenario, error) {
	el := engine.NewEventList()
	bufferBytes := bufferPackets * (standardMSS + 40)
	tf := dumbbellFrame(numSenders, rateBps, 20e-6, bufferBytes)
	desc, err := tf.Transform()
	if err != nil {
		return nil, err
	}
	b := NewBuilder(desc, el)
	alloc := pkt.NewFlowIDAllocator(1)

	var flows []*TCPFlow
	for i := 0; i < numSenders; i++ {
		flow := pkt.NewFlow(alloc.Next(), fmt.Sprintf("incast-flow-%d", i))
		srcNode := fmt.Sprintf("src%d", i)
		conn, err := b.ConnectTCP(flow, srcNode, "sink",
			tcp.Config{Name: srcNode, MSS: standardMSS, RecvWindow: 1 << 24},
			tcp.SinkConfig{RecvWindow: 1 << 24},
			0)
		if err != nil {
			return nil, err
		}
		conn.Source.Write(objectBytes)
		flows = append(flows, conn)
	}
	return &IncastScenario{EventList: el, Builder: b, Flows: flows}, nil
}
