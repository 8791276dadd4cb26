// Package tcp implements the TCP source and sink state machines: Reno
// congestion control, RTO with Jacobson/Karels estimation and Karn's
// algorithm, and SACK-style out-of-order accounting at the sink
// (spec.md §3.7, §4.6). Timer arming/cancellation follows the
// cancellable-handle idiom scheduler.go uses for per-task timeslices,
// built here on engine.EventList instead of a core scheduler.
package tcp

import (
	"fmt"
	"math"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/trace"
)

// Mode names the source's congestion-control state (spec.md §3.7,
// "congestion-control mode").
type Mode int

const (
	SlowStart Mode = iota
	CongestionAvoidance
	FastRecovery
)

func (m Mode) String() string {
	switch m {
	case SlowStart:
		return "slow-start"
	case CongestionAvoidance:
		return "congestion-avoidance"
	case FastRecovery:
		return "fast-recovery"
	default:
		return "unknown"
	}
}

// seqLess implements the standard TCP modular sequence comparison:
// a < b iff (int32)(a-b) < 0 (spec.md §4.6.3).
func seqLess(a, b uint32) bool { return int32(a-b) < 0 }
func seqLeq(a, b uint32) bool  { return a == b || seqLess(a, b) }

const (
	defaultMaxRTO   = 60 * engine.Second
	defaultMinRTO   = 200 * engine.Millisecond
	defaultAckBytes = 40
)

// Config configures a TCP source.
type Config struct {
	Name       string
	MSS        int
	InitCwnd   int // bytes; defaults to MSS if zero
	InitSsth   int // bytes; defaults to a large value (effectively slow-start-forever) if zero
	InitRTO    engine.Time
	MaxRTO     engine.Time
	RecvWindow uint32 // 0 means unbounded
	Fwd        *pkt.Route
	Flow       *pkt.Flow
}

// Source implements the TCP sender state machine of spec.md §4.6.1.
type Source struct {
	name string
	el   *engine.EventList
	mss  int
	fwd  *pkt.Route
	flow *pkt.Flow
	pool *pkt.Pool

	highestSent    uint32
	lastAcked      uint32
	recoverSeq     uint32
	dupAckCount    int
	cwnd           float64
	ssthresh       float64
	srtt           float64
	rttVar         float64
	rto            engine.Time
	maxRTO         engine.Time
	minRTT         engine.Time
	haveRTTSample  bool
	recvWindow     uint32
	mode           Mode
	rtoHandle      engine.Handle
	pendingBytes   int // bytes of application data still to send
	inFlightBytes  int
	sendTimes      map[uint32]engine.Time
	logger         trace.Logger

	// caIncrease, when set, replaces the plain Reno congestion-avoidance
	// increase (mss²/cwnd) with a coupling algorithm's Δw — MPTCP's
	// per-ACK aggregate-driven increase (spec.md §3.8, §4.7). Slow
	// start, fast recovery and RTO response are unaffected; only the
	// single-subflow AIMD increase is substitutable.
	caIncrease func() float64

	// transmitGate, onSent and onAcked let an owning mptcp.Source
	// enforce the shared receive-window budget across subflows
	// (spec.md §4.7: "a subflow may not transmit if Σ in_flight ≥
	// receive_window"), since each subflow's own recvWindow only knows
	// about its own in-flight bytes.
	transmitGate func(n int) bool
	onSent       func(n int)
	onAcked      func(n int)
}

// SetCAIncrease installs fn as the source of this connection's
// congestion-avoidance cwnd increase, in place of standalone Reno's
// mss²/cwnd. An mptcp.Source calls this for each of its subflows so
// that the coupling algorithm, not independent per-subflow AIMD,
// governs the increase (spec.md §3.8 invariant). Passing nil restores
// the plain Reno increase.
func (s *Source) SetCAIncrease(fn func() float64) { s.caIncrease = fn }

// SetTransmitGate installs fn as an additional precondition on sending
// new data, consulted alongside the congestion/receive window in
// transmit. An mptcp.Source uses this to enforce its shared
// receive-window budget across subflows. Passing nil removes the gate.
func (s *Source) SetTransmitGate(fn func(n int) bool) { s.transmitGate = fn }

// SetOnSent and SetOnAcked install hooks an owning mptcp.Source uses
// to track bytes in flight across all of its subflows. Passing nil
// removes the hook.
func (s *Source) SetOnSent(fn func(n int))  { s.onSent = fn }
func (s *Source) SetOnAcked(fn func(n int)) { s.onAcked = fn }

// NewSource constructs a TCP source. Per spec.md §4.6.1, the simulator
// typically starts in ESTABLISHED (handshake skipped); there is no
// CLOSED/SYN_SENT modeling here since nothing in this package drives a
// handshake explicitly.
func NewSource(cfg Config, el *engine.EventList) *Source {
	mss := cfg.MSS
	if mss <= 0 {
		mss = 1460
	}
	cwnd := float64(cfg.InitCwnd)
	if cwnd <= 0 {
		cwnd = float64(mss)
	}
	ssth := float64(cfg.InitSsth)
	if ssth <= 0 {
		ssth = 1 << 30
	}
	rto := cfg.InitRTO
	if rto <= 0 {
		rto = engine.FromSeconds(1.0)
	}
	maxRTO := cfg.MaxRTO
	if maxRTO <= 0 {
		maxRTO = defaultMaxRTO
	}
	return &Source{
		name:           cfg.Name,
		el:             el,
		mss:            mss,
		fwd:            cfg.Fwd,
		flow:           cfg.Flow,
		pool:           pkt.NewPool(pkt.TCPData, 0),
		cwnd:           cwnd,
		ssthresh:       ssth,
		rto:            rto,
		maxRTO:         maxRTO,
		recvWindow:     cfg.RecvWindow,
		mode:           SlowStart,
		sendTimes:      make(map[uint32]engine.Time),
	}
}

// Connect wires the source's forward and reverse routes and the sink
// it is paired with, and begins transmission at start (spec.md §6,
// external interface).
func (s *Source) Connect(fwd, rev *pkt.Route, sink *Sink, start engine.Time) {
	s.fwd = fwd
	if sink != nil {
		sink.rev = rev
	}
	s.el.Schedule(s, nil, func(el *engine.EventList, context any, _ any) any {
		context.(*Source).transmit()
		return nil
	}, start-s.el.Now())
}

// LogTo attaches a logger that receives state-change and RTO events
// from this source (spec.md §5).
func (s *Source) LogTo(l trace.Logger) { s.logger = l }

func (s *Source) logModeChange(el *engine.EventList, op string) {
	if s.logger == nil {
		return
	}
	flowID := 0
	if s.flow != nil {
		flowID = s.flow.ID
	}
	s.logger.LogEvent(el.Now(), flowID, s.name, op)
}

// Mode reports the source's current congestion-control mode.
func (s *Source) Mode() Mode { return s.mode }

// Cwnd reports the current congestion window in bytes.
func (s *Source) Cwnd() float64 { return s.cwnd }

// Ssthresh reports the current slow-start threshold in bytes.
func (s *Source) Ssthresh() float64 { return s.ssthresh }

// RTO reports the current retransmission timeout.
func (s *Source) RTO() engine.Time { return s.rto }

// SmoothedRTT reports the current smoothed RTT estimate, or zero if no
// sample has been taken yet.
func (s *Source) SmoothedRTT() engine.Time {
	if !s.haveRTTSample {
		return 0
	}
	return engine.FromSeconds(s.srtt)
}

// Write enqueues n bytes of application data to be sent, subject to
// the congestion/receive window, and kicks off transmission.
func (s *Source) Write(n int) {
	s.pendingBytes += n
	s.transmit()
}

// effectiveWindow is the smaller of cwnd and the sink's advertised
// receive window (spec.md §4.6.1, "the receive-window... clamps the
// effective cwnd").
func (s *Source) effectiveWindow() float64 {
	if s.recvWindow == 0 {
		return s.cwnd
	}
	return math.Min(s.cwnd, float64(s.recvWindow))
}

// transmit sends new data while bytes_in_flight < effective window and
// there is data pending (spec.md §4.6.1 "Transmit").
func (s *Source) transmit() {
	for s.pendingBytes > 0 && float64(s.inFlightBytes) < s.effectiveWindow() {
		size := s.mss
		if size > s.pendingBytes {
			size = s.pendingBytes
		}
		if s.transmitGate != nil && !s.transmitGate(size) {
			break
		}
		s.sendSegment(s.highestSent, size, false)
		s.highestSent += uint32(size)
		s.pendingBytes -= size
		s.inFlightBytes += size
		if s.onSent != nil {
			s.onSent(size)
		}
	}
	s.armRTO()
}

func (s *Source) sendSegment(seq uint32, size int, retransmit bool) {
	p := s.pool.Get()
	p.Flow = s.flow
	p.Fwd = s.fwd
	p.Seq = seq
	p.Size = size + 40
	p.PayloadSize = size
	p.Retransmit = retransmit
	p.SendTime = s.el.Now()
	if !retransmit {
		s.sendTimes[seq] = s.el.Now()
	} else {
		delete(s.sendTimes, seq) // Karn's algorithm: no RTT sample from retransmits
	}
	if hop, ok := p.NextHop(); ok {
		hop.Receive(s.el, p)
	} else {
		p.Free()
	}
}

// armRTO (re)starts the retransmission timer if it is not already
// running and there is unacknowledged data outstanding.
func (s *Source) armRTO() {
	if s.rtoHandle != (engine.Handle{}) || s.inFlightBytes == 0 {
		return
	}
	s.rtoHandle = s.el.Schedule(s, nil, func(el *engine.EventList, context any, _ any) any {
		src := context.(*Source)
		src.rtoHandle = engine.Handle{}
		src.onRTOExpiry()
		return nil
	}, s.rto)
}

func (s *Source) cancelRTO() {
	if s.rtoHandle != (engine.Handle{}) {
		s.el.Cancel(s.rtoHandle)
		s.rtoHandle = engine.Handle{}
	}
}

// onRTOExpiry implements spec.md §4.6.1 "RTO expiry".
func (s *Source) onRTOExpiry() {
	s.ssthresh = math.Max(s.cwnd/2, 2*float64(s.mss))
	s.cwnd = float64(s.mss)
	s.mode = SlowStart
	s.logModeChange(s.el, "rto-expiry")
	size := s.mss
	if outstanding := int(int32(s.highestSent - s.lastAcked)); outstanding < size {
		size = outstanding
	}
	if size > 0 {
		s.sendSegment(s.lastAcked, size, true)
	}
	s.rto *= 2
	if s.rto > s.maxRTO {
		s.rto = s.maxRTO
	}
	s.rtoHandle = s.el.Schedule(s, nil, func(el *engine.EventList, context any, _ any) any {
		src := context.(*Source)
		src.rtoHandle = engine.Handle{}
		src.onRTOExpiry()
		return nil
	}, s.rto)
}

// Receive handles an inbound ACK packet (spec.md §4.6.1 "Receive ACK").
func (s *Source) Receive(el *engine.EventList, p *pkt.Packet) {
	defer p.Free()
	s.recvWindow = p.Window

	advanced := seqLess(s.lastAcked, p.AckNum)
	if advanced {
		ackedBytes := int(int32(p.AckNum - s.lastAcked))
		s.inFlightBytes -= ackedBytes
		if s.inFlightBytes < 0 {
			s.inFlightBytes = 0
		}
		if s.onAcked != nil {
			s.onAcked(ackedBytes)
		}

		if sendTime, ok := s.sendTimes[s.lastAcked]; ok {
			s.sampleRTT(el.Now() - sendTime)
			delete(s.sendTimes, s.lastAcked)
		}
		s.lastAcked = p.AckNum
		s.dupAckCount = 0

		if s.mode == FastRecovery {
			if seqLeq(s.recoverSeq, s.lastAcked) {
				s.cwnd = s.ssthresh
				s.mode = CongestionAvoidance
				s.logModeChange(el, "exit-fast-recovery")
			}
		} else if s.mode == SlowStart {
			s.cwnd += float64(s.mss)
			if s.cwnd >= s.ssthresh {
				s.mode = CongestionAvoidance
				s.logModeChange(el, "exit-slow-start")
			}
		} else if s.caIncrease != nil {
			s.cwnd += s.caIncrease()
		} else {
			s.cwnd += float64(s.mss) * float64(s.mss) / s.cwnd
		}

		if s.inFlightBytes == 0 {
			s.cancelRTO()
		} else {
			s.cancelRTO()
			s.armRTO()
		}
		s.transmit()
		return
	}

	if p.AckNum == s.lastAcked {
		s.dupAckCount++
		if s.mode == FastRecovery {
			s.cwnd += float64(s.mss)
			s.transmit()
			return
		}
		if s.dupAckCount == 3 {
			s.ssthresh = math.Max(s.cwnd/2, 2*float64(s.mss))
			s.cwnd = s.ssthresh + 3*float64(s.mss)
			s.mode = FastRecovery
			s.recoverSeq = s.highestSent
			s.logModeChange(el, "enter-fast-recovery")
			size := s.mss
			if outstanding := int(int32(s.highestSent - s.lastAcked)); outstanding < size {
				size = outstanding
			}
			if size > 0 {
				s.sendSegment(s.lastAcked, size, true)
			}
			s.transmit()
		}
	}
}

// sampleRTT updates smoothed RTT, mean deviation and RTO per
// Jacobson/Karels, following the gains from RFC 6298 (α=1/8, β=1/4).
func (s *Source) sampleRTT(sample engine.Time) {
	secs := sample.Seconds()
	if !s.haveRTTSample {
		s.srtt = secs
		s.rttVar = secs / 2
		s.haveRTTSample = true
	} else {
		s.rttVar = 0.75*s.rttVar + 0.25*math.Abs(s.srtt-secs)
		s.srtt = 0.875*s.srtt + 0.125*secs
	}
	if s.minRTT == 0 || sample < s.minRTT {
		s.minRTT = sample
	}
	rto := engine.FromSeconds(s.srtt + 4*s.rttVar)
	if rto < defaultMinRTO {
		rto = defaultMinRTO
	}
	if rto > s.maxRTO {
		rto = s.maxRTO
	}
	s.rto = rto
}

// GlobalName satisfies engine.EventSource for logging/panic messages.
func (s *Source) GlobalName() string { return fmt.Sprintf("tcp.Source(%s)", s.name) }
