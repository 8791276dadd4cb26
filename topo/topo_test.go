package topo

import (
	"testing"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/mptcp"
	"github.com/iti/tcpnet/pkt"
)

type captureSink struct {
	packets []*pkt.Packet
}

func (s *captureSink) Receive(el *engine.EventList, p *pkt.Packet) {
	s.packets = append(s.packets, p)
}

func TestTopoFrameTransformRejectsUnknownNode(t *testing.T) {
	tf := CreateTopoFrame("bad")
	tf.AddNode("a")
	tf.Links = append(tf.Links, LinkFrame{Name: "l", From: "a", To: "b", RateBps: 1e9})
	if _, err := tf.Transform(); err == nil {
		t.Fatal("expected error for link referencing unknown node")
	}
}

func TestTopoFrameTransformRejectsNonPositiveRate(t *testing.T) {
	tf := CreateTopoFrame("bad")
	tf.AddLink(LinkFrame{Name: "l", From: "a", To: "b", RateBps: 0})
	if _, err := tf.Transform(); err == nil {
		t.Fatal("expected error for non-positive rate")
	}
}

func chainFrame() *TopoDesc {
	tf := CreateTopoFrame("chain")
	tf.AddBidirectionalLink(LinkFrame{Name: "ab", From: "a", To: "b", RateBps: 1e9, DelaySeconds: 1e-6, MaxBytes: 1 << 20, Queue: FIFOQueueKind})
	tf.AddBidirectionalLink(LinkFrame{Name: "bc", From: "b", To: "c", RateBps: 1e9, DelaySeconds: 1e-6, MaxBytes: 1 << 20, Queue: FIFOQueueKind})
	desc, err := tf.Transform()
	if err != nil {
		panic(err)
	}
	return desc
}

func TestRouterShortestPathThroughChain(t *testing.T) {
	r := NewRouter(chainFrame())
	path, err := r.ShortestPath("a", "c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(path) != len(want) {
		t.Fatalf("expected path %v, got %v", want, path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("expected path %v, got %v", want, path)
		}
	}
}

func TestRouterUnknownDestinationErrors(t *testing.T) {
	r := NewRouter(chainFrame())
	if _, err := r.ShortestPath("a", "nowhere"); err == nil {
		t.Fatal("expected error for unknown destination")
	}
}

func TestBuilderRouteHasQueueAndPipeHopsPerLink(t *testing.T) {
	el := engine.NewEventList()
	b := NewBuilder(chainFrame(), el)
	term := &captureSink{}
	route, err := b.Route("a", "c", term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// two links (a-b, b-c), each contributing a queue and a pipe hop,
	// plus the terminal sink.
	if route.Len() != 5 {
		t.Fatalf("expected 5 hops (2 queues + 2 pipes + terminal), got %d", route.Len())
	}
}

func TestBuilderRouteViaRejectsDiscontinuousLinks(t *testing.T) {
	el := engine.NewEventList()
	tf := CreateTopoFrame("y")
	tf.AddBidirectionalLink(LinkFrame{Name: "ab", From: "a", To: "b", RateBps: 1e9, DelaySeconds: 0, MaxBytes: 1 << 20, Queue: FIFOQueueKind})
	tf.AddBidirectionalLink(LinkFrame{Name: "cd", From: "c", To: "d", RateBps: 1e9, DelaySeconds: 0, MaxBytes: 1 << 20, Queue: FIFOQueueKind})
	desc, _ := tf.Transform()
	b := NewBuilder(desc, el)
	if _, err := b.RouteVia([]string{"ab-fwd", "cd-fwd"}, &captureSink{}); err == nil {
		t.Fatal("expected error: ab-fwd ends at b, cd-fwd starts at c")
	}
}

func TestDumbbellScenarioConvergesAndDrops(t *testing.T) {
	// A small bottleneck (1 Mbps) and tiny buffer (4 packets) forces
	// congestion quickly within a short simulated run, matching the
	// drop/sawtooth behaviour spec.md §8.1 expects at larger scale.
	sc, err := BuildDumbbellScenario(1e6, 20e-3, 4)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sc.EventList.RunUntil(engine.FromSeconds(5))

	if sc.Flow.Sink.CumulativeAck() == 0 {
		t.Fatal("expected some data to be delivered within 5 simulated seconds")
	}
	stats, ok := sc.Builder.QueueStats("bottleneck-fwd")
	if !ok {
		t.Fatal("expected bottleneck queue to have been instantiated")
	}
	if stats.Dropped == 0 {
		t.Fatal("expected at least one drop at the bottleneck under a tiny buffer")
	}
}

func TestTwoFlowFairnessScenarioRuns(t *testing.T) {
	sc, err := BuildTwoFlowFairnessScenario(1e6, 20e-3, 20)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sc.EventList.RunUntil(engine.FromSeconds(10))

	var throughputs []float64
	for _, f := range sc.Flows {
		throughputs = append(throughputs, float64(f.Sink.CumulativeAck()))
	}
	for _, th := range throughputs {
		if th == 0 {
			t.Fatal("expected both flows to deliver some data")
		}
	}
	idx := JainFairnessIndex(throughputs)
	if idx <= 0 || idx > 1 {
		t.Fatalf("fairness index out of range: %v", idx)
	}
}

func TestJainFairnessIndexPerfectWhenEqual(t *testing.T) {
	idx := JainFairnessIndex([]float64{100, 100, 100})
	if idx < 0.999 {
		t.Fatalf("expected fairness index ~1 for equal throughputs, got %v", idx)
	}
}

func TestJainFairnessIndexLowWhenSkewed(t *testing.T) {
	idx := JainFairnessIndex([]float64{1000, 1})
	if idx > 0.6 {
		t.Fatalf("expected low fairness index for highly skewed throughputs, got %v", idx)
	}
}

func TestTwoPathMPTCPUncoupledUsesBothPaths(t *testing.T) {
	sc, err := BuildTwoPathMPTCPScenario(mptcp.Uncoupled)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sc.EventList.RunUntil(engine.FromSeconds(5))

	for i, sf := range sc.Flow.Subflows {
		if sf.Sink.CumulativeAck() == 0 {
			t.Fatalf("expected subflow %d to deliver some data under UNCOUPLED", i)
		}
	}
}

func TestTwoPathMPTCPFullyCoupledRuns(t *testing.T) {
	sc, err := BuildTwoPathMPTCPScenario(mptcp.FullyCoupled)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sc.EventList.RunUntil(engine.FromSeconds(5))

	total := uint32(0)
	for _, sf := range sc.Flow.Subflows {
		total += sf.Sink.CumulativeAck()
	}
	if total == 0 {
		t.Fatal("expected some aggregate delivery under FULLY_COUPLED")
	}
}

func TestIncastScenarioProducesDropsAndEventualCompletion(t *testing.T) {
	sc, err := BuildIncastScenario(15, 100_000, 10e9, 100)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sc.EventList.RunUntil(engine.FromSeconds(2))

	completed := 0
	for _, f := range sc.Flows {
		if f.Sink.CumulativeAck() >= 100_000 {
			completed++
		}
	}
	if completed == 0 {
		t.Fatal("expected at least one sender to complete its 100KB transfer")
	}
	stats, ok := sc.Builder.QueueStats("bottleneck-fwd")
	if !ok {
		t.Fatal("expected bottleneck queue to have been instantiated")
	}
	if stats.Dropped == 0 {
		t.Fatal("expected some drops at the shared incast bottleneck")
	}
}
