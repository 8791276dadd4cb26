package topo

import (
	"fmt"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/mptcp"
	"github.com/iti/tcpnet/pkt"
	"github.com/iti/tcpnet/tcp"
)

// TCPFlow bundles one end-to-end TCP connection's source/sink pair
// with the pkt.Flow identity it shares, the unit a scenario builder
// hands back so a driver can call Write/Stats/CumulativeAck on it.
type TCPFlow struct {
	Flow   *pkt.Flow
	Source *tcp.Source
	Sink   *tcp.Sink
}

// ConnectTCP wires a tcp.Source/tcp.Sink pair along the shortest path
// from srcNode to dstNode (and back, for ACKs), starting transmission
// at start (spec.md §6 external interface).
func (b *Builder) ConnectTCP(flow *pkt.Flow, srcNode, dstNode string, srcCfg tcp.Config, sinkCfg tcp.SinkConfig, start engine.Time) (*TCPFlow, error) {
	srcCfg.Flow = flow
	sinkCfg.Flow = flow
	sink := tcp.NewSink(sinkCfg, b.el)
	src := tcp.NewSource(srcCfg, b.el)

	fwd, err := b.Route(srcNode, dstNode, sink)
	if err != nil {
		return nil, fmt.Errorf("topo: connect %q->%q: %w", srcNode, dstNode, err)
	}
	rev, err := b.Route(dstNode, srcNode, src)
	if err != nil {
		return nil, fmt.Errorf("topo: connect %q->%q (ack path): %w", dstNode, srcNode, err)
	}

	if b.logger != nil {
		src.LogTo(b.logger)
		sink.LogTo(b.logger)
	}
	src.Connect(fwd, rev, sink, start)
	return &TCPFlow{Flow: flow, Source: src, Sink: sink}, nil
}

// SubflowSpec describes one MPTCP subflow: its path as an explicit,
// ordered sequence of link names in each direction (spec.md §4.7
// subflows are assigned specific paths, not independently computed
// shortest paths) plus its per-subflow TCP configuration.
type SubflowSpec struct {
	Links    []string // source -> destination link names, in order
	RevLinks []string // destination -> source link names, in order
	Cfg      tcp.Config
	SinkCfg  tcp.SinkConfig
}

// MPTCPFlow bundles an mptcp.Source coordinating N TCP subflow
// source/sink pairs under one coupling algorithm and one pkt.Flow
// identity.
type MPTCPFlow struct {
	Flow     *pkt.Flow
	Coupler  *mptcp.Source
	Subflows []*TCPFlow
}

// ConnectMPTCP wires one subflow per entry in subflows, all coordinated
// by a single mptcp.Source constructed from mcfg (spec.md §3.8, §4.7).
func (b *Builder) ConnectMPTCP(flow *pkt.Flow, mcfg mptcp.Config, subflows []SubflowSpec, start engine.Time) (*MPTCPFlow, error) {
	coupler := mptcp.NewSource(mcfg, b.el)
	mf := &MPTCPFlow{Flow: flow, Coupler: coupler}

	for i, spec := range subflows {
		spec.Cfg.Flow = flow
		spec.SinkCfg.Flow = flow
		sink := tcp.NewSink(spec.SinkCfg, b.el)
		src := tcp.NewSource(spec.Cfg, b.el)

		fwd, err := b.RouteVia(spec.Links, sink)
		if err != nil {
			return nil, fmt.Errorf("topo: mptcp subflow %d: %w", i, err)
		}
		rev, err := b.RouteVia(spec.RevLinks, src)
		if err != nil {
			return nil, fmt.Errorf("topo: mptcp subflow %d (ack path): %w", i, err)
		}

		if b.logger != nil {
			src.LogTo(b.logger)
			sink.LogTo(b.logger)
		}
		src.Connect(fwd, rev, sink, start)
		coupler.AddSubflow(src, sink, spec.Cfg.MSS)
		mf.Subflows = append(mf.Subflows, &TCPFlow{Flow: flow, Source: src, Sink: sink})
	}
	return mf, nil
}
