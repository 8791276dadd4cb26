package tcp

import (
	"testing"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
)

type captureSink struct {
	packets []*pkt.Packet
}

func (s *captureSink) Receive(el *engine.EventList, p *pkt.Packet) {
	s.packets = append(s.packets, p)
}

func newTestSource(el *engine.EventList, cap *captureSink) *Source {
	fwd := pkt.NewRoute(cap)
	return NewSource(Config{
		Name: "src", MSS: 1000, InitCwnd: 1000, InitSsth: 4000,
		InitRTO: engine.FromSeconds(1), RecvWindow: 1 << 20, Fwd: fwd,
	}, el)
}

// ackPool supplies the ACKs fed to Source.Receive, which frees every
// packet it is handed.
var ackPool = pkt.NewPool(pkt.TCPAck, 0)

func ackFor(ackNum uint32, window uint32) *pkt.Packet {
	p := ackPool.Get()
	p.AckNum = ackNum
	p.Window = window
	return p
}

func TestSlowStartGrowsCwndByMSSPerAck(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	s := newTestSource(el, cap)
	s.Write(10000)

	before := s.Cwnd()
	s.Receive(el, ackFor(1000, 1<<20))
	if s.Cwnd() != before+1000 {
		t.Fatalf("expected cwnd to grow by mss in slow start: before=%v after=%v", before, s.Cwnd())
	}
	if s.Mode() != SlowStart {
		t.Fatalf("expected still in slow start, got %v", s.Mode())
	}
}

func TestSlowStartTransitionsToCongestionAvoidance(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	s := newTestSource(el, cap)
	s.Write(100000)

	// cwnd starts at 1000, ssthresh at 4000; three full-mss ACKs push
	// cwnd to 4000 >= ssthresh.
	s.Receive(el, ackFor(1000, 1<<20))
	s.Receive(el, ackFor(2000, 1<<20))
	s.Receive(el, ackFor(3000, 1<<20))
	if s.Mode() != CongestionAvoidance {
		t.Fatalf("expected congestion avoidance once cwnd >= ssthresh, got %v mode=%v", s.Cwnd(), s.Mode())
	}
}

func TestThirdDupAckEntersFastRecovery(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	s := newTestSource(el, cap)
	s.Write(100000)

	s.Receive(el, ackFor(1000, 1<<20)) // advances, cwnd grows
	cwndBeforeLoss := s.Cwnd()

	s.Receive(el, ackFor(1000, 1<<20))
	s.Receive(el, ackFor(1000, 1<<20))
	s.Receive(el, ackFor(1000, 1<<20)) // third dup-ack
	if s.Mode() != FastRecovery {
		t.Fatalf("expected fast recovery after third dup-ack, got %v", s.Mode())
	}
	if s.Ssthresh() != cwndBeforeLoss/2 && s.Ssthresh() != 2*1000 {
		t.Fatalf("expected ssthresh = max(cwnd/2, 2*mss), got %v", s.Ssthresh())
	}
}

func TestFastRecoveryInflatesAndDeflatesOnRecoverySeq(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	s := newTestSource(el, cap)
	s.Write(100000)

	s.Receive(el, ackFor(1000, 1<<20))
	s.Receive(el, ackFor(1000, 1<<20))
	s.Receive(el, ackFor(1000, 1<<20))
	s.Receive(el, ackFor(1000, 1<<20)) // triggers fast recovery

	inflated := s.Cwnd()
	s.Receive(el, ackFor(1000, 1<<20)) // further dup-ack inflates
	if s.Cwnd() != inflated+1000 {
		t.Fatalf("expected cwnd inflation by one mss per further dup-ack")
	}

	ssth := s.Ssthresh()
	s.Receive(el, ackFor(s.recoverSeq, 1<<20)) // ack reaching recover_sequence
	if s.Mode() != CongestionAvoidance {
		t.Fatalf("expected exit to congestion avoidance, got %v", s.Mode())
	}
	if s.Cwnd() != ssth {
		t.Fatalf("expected cwnd deflated to ssthresh, got %v want %v", s.Cwnd(), ssth)
	}
}

func TestRTOExpiryHalvesSsthreshAndResetsCwnd(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	s := newTestSource(el, cap)
	s.Write(100000)
	cwndBefore := s.Cwnd()

	s.onRTOExpiry()
	if s.Cwnd() != 1000 {
		t.Fatalf("expected cwnd reset to mss on RTO, got %v", s.Cwnd())
	}
	wantSsth := cwndBefore / 2
	if wantSsth < 2*1000 {
		wantSsth = 2 * 1000
	}
	if s.Ssthresh() != wantSsth {
		t.Fatalf("expected ssthresh = max(cwnd/2, 2*mss) = %v, got %v", wantSsth, s.Ssthresh())
	}
	if s.Mode() != SlowStart {
		t.Fatalf("expected slow start after RTO, got %v", s.Mode())
	}
	if s.RTO() != 2*engine.FromSeconds(1) {
		t.Fatalf("expected RTO doubled, got %v", s.RTO())
	}
}

func TestRTOCapsAtMaxRTO(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	s := newTestSource(el, cap)
	s.maxRTO = 3 * engine.Second
	s.rto = 2 * engine.Second
	s.Write(100000)

	s.onRTOExpiry()
	if s.RTO() != 3*engine.Second {
		t.Fatalf("expected RTO capped at configured max, got %v", s.RTO())
	}
}

func TestSeqLessHandlesWraparound(t *testing.T) {
	if !seqLess(0xFFFFFFFF, 0) {
		t.Fatal("expected wraparound: 0xFFFFFFFF < 0 under modular comparison")
	}
	if seqLess(0, 0xFFFFFFFF) {
		t.Fatal("expected 0 not less than 0xFFFFFFFF under modular comparison")
	}
}

func TestSinkCumulativeAckAdvancesInOrder(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	snk := NewSink(SinkConfig{Name: "snk", RecvWindow: 1 << 20, Rev: pkt.NewRoute(cap)}, el)

	pool := pkt.NewPool(pkt.TCPData, 0)
	p := pool.Get()
	p.Seq = 0
	p.PayloadSize = 1000
	snk.Receive(el, p)

	if snk.CumulativeAck() != 1000 {
		t.Fatalf("expected cumulative ack 1000, got %d", snk.CumulativeAck())
	}
	if len(cap.packets) != 1 {
		t.Fatalf("expected one ack emitted, got %d", len(cap.packets))
	}
}

func TestSinkRecordsOutOfOrderAndAbsorbsOnGapFill(t *testing.T) {
	el := engine.NewEventList()
	cap := &captureSink{}
	snk := NewSink(SinkConfig{Name: "snk", RecvWindow: 1 << 20, Rev: pkt.NewRoute(cap)}, el)

	pool := pkt.NewPool(pkt.TCPData, 0)
	p2 := pool.Get()
	p2.Seq = 1000
	p2.PayloadSize = 1000
	snk.Receive(el, p2)
	if snk.CumulativeAck() != 0 {
		t.Fatalf("out-of-order segment must not advance cumulative ack, got %d", snk.CumulativeAck())
	}

	p1 := pool.Get()
	p1.Seq = 0
	p1.PayloadSize = 1000
	snk.Receive(el, p1)
	if snk.CumulativeAck() != 2000 {
		t.Fatalf("expected gap fill to absorb out-of-order segment, cumAck=%d", snk.CumulativeAck())
	}
}
