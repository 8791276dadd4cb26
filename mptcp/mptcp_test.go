package mptcp

import (
	"math"
	"testing"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/tcp"
)

func newSubflow(el *engine.EventList, name string, mss, cwnd, ssth int) (*tcp.Source, *tcp.Sink) {
	term := sinkFunc(func(el *engine.EventList, p *pkt.Packet) {})
	fwd := pkt.NewRoute(term)
	src := tcp.NewSource(tcp.Config{
		Name: name, MSS: mss, InitCwnd: cwnd, InitSsth: ssth,
		InitRTO: engine.FromSeconds(1), RecvWindow: 1 << 20, Fwd: fwd,
	}, el)
	sink := tcp.NewSink(tcp.SinkConfig{Name: name + "-sink", RecvWindow: 1 << 20, Rev: fwd}, el)
	return src, sink
}

type sinkFunc func(el *engine.EventList, p *pkt.Packet)

func (f sinkFunc) Receive(el *engine.EventList, p *pkt.Packet) { f(el, p) }

func TestUncoupledMatchesIndependentReno(t *testing.T) {
	el := engine.NewEventList()
	src1, sink1 := newSubflow(el, "a", 1000, 4000, 1<<30)
	_, _ = sink1, src1
	m := NewSource(Config{Name: "mp", Algo: Uncoupled}, el)
	m.AddSubflow(src1, sink1, 1000)

	got := m.OnSubflowAck(0, 1000)
	want := 1000.0 * 1000.0 / 4000.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("uncoupled increase = %v, want %v", got, want)
	}
}

func TestFullyCoupledUsesAggregateWindow(t *testing.T) {
	el := engine.NewEventList()
	src1, sink1 := newSubflow(el, "a", 1000, 4000, 1<<30)
	src2, sink2 := newSubflow(el, "b", 1000, 6000, 1<<30)
	m := NewSource(Config{Name: "mp", Algo: FullyCoupled}, el)
	m.AddSubflow(src1, sink1, 1000)
	m.AddSubflow(src2, sink2, 1000)

	got := m.OnSubflowAck(0, 1000)
	want := 1000.0 * 1000.0 / 10000.0 // aggregate cwnd = 4000+6000
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("fully coupled increase = %v, want %v", got, want)
	}
}

func TestCoupledTCPNeverExceedsUncoupledIncrease(t *testing.T) {
	el := engine.NewEventList()
	src1, sink1 := newSubflow(el, "a", 1000, 4000, 1<<30)
	src2, sink2 := newSubflow(el, "b", 1000, 2000, 1<<30)
	m := NewSource(Config{Name: "mp", Algo: CoupledTCP}, el)
	m.AddSubflow(src1, sink1, 1000)
	m.AddSubflow(src2, sink2, 1000)

	coupled := m.OnSubflowAck(0, 1000)
	uncoupled := 1000.0 * 1000.0 / 4000.0
	if coupled > uncoupled+1e-9 {
		t.Fatalf("LIA increase %v must never exceed the standalone Reno increase %v", coupled, uncoupled)
	}
}

func TestCoupledEpsilonAtOneMatchesFullyCoupled(t *testing.T) {
	el := engine.NewEventList()
	src1, sink1 := newSubflow(el, "a", 1000, 4000, 1<<30)
	src2, sink2 := newSubflow(el, "b", 1000, 5000, 1<<30)

	full := NewSource(Config{Name: "full", Algo: FullyCoupled}, el)
	full.AddSubflow(src1, sink1, 1000)
	full.AddSubflow(src2, sink2, 1000)
	fullInc := full.OnSubflowAck(0, 1000)

	eps1 := NewSource(Config{Name: "eps", Algo: CoupledEpsilon, Epsilon: 1}, el)
	eps1.AddSubflow(src1, sink1, 1000)
	eps1.AddSubflow(src2, sink2, 1000)
	epsInc := eps1.OnSubflowAck(0, 1000)

	if math.Abs(fullInc-epsInc) > 1e-9 {
		t.Fatalf("epsilon=1 should match fully-coupled increase exactly: got %v want %v", epsInc, fullInc)
	}
}

func TestAddAndRemoveSubflow(t *testing.T) {
	el := engine.NewEventList()
	src1, sink1 := newSubflow(el, "a", 1000, 4000, 1<<30)
	m := NewSource(Config{Name: "mp", Algo: Uncoupled}, el)
	m.AddSubflow(src1, sink1, 1000)
	if m.NumSubflows() != 1 {
		t.Fatalf("expected 1 subflow, got %d", m.NumSubflows())
	}
	m.RemoveSubflow(0)
	if m.NumSubflows() != 0 {
		t.Fatalf("expected 0 subflows after removal, got %d", m.NumSubflows())
	}
}

func TestSharedReceiveWindowBudget(t *testing.T) {
	el := engine.NewEventList()
	m := NewSource(Config{Name: "mp", Algo: Uncoupled, RecvWindow: 1000}, el)
	if !m.CanTransmit() {
		t.Fatal("expected transmit allowed with no in-flight data yet")
	}
	m.NoteSent(1000)
	if m.CanTransmit() {
		t.Fatal("expected transmit blocked once in-flight reaches the shared receive window")
	}
	m.NoteAcked(1000)
	if !m.CanTransmit() {
		t.Fatal("expected transmit allowed again once in-flight drops back below the window")
	}
}

func TestEpsilonOutOfRangePanics(t *testing.T) {
	el := engine.NewEventList()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing CoupledEpsilon source with out-of-range epsilon")
		}
	}()
	NewSource(Config{Name: "bad", Algo: CoupledEpsilon, Epsilon: 1.5}, el)
}
