// Package topo is the scenario wiring layer: it turns a named graph of
// nodes and links into live pkt.Route values threading queue.* and
// pipe.Pipe hops between tcp/mptcp endpoints. It is the one package
// that imports every other package in this module, the way mrnes's
// net.go sits above desc-topo.go's Frame/Desc config split and wires
// the live devices desc-topo.go only describes.
package topo

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// QueueKind names which queue variant fronts a link, mirroring the
// RouterFrame/SwitchFrame device-type tagging desc-topo.go uses for
// devices rather than links.
type QueueKind int

const (
	FIFOQueueKind QueueKind = iota
	REDQueueKind
	PriorityQueueKind
	LosslessQueueKind
)

func (k QueueKind) String() string {
	switch k {
	case FIFOQueueKind:
		return "FIFO"
	case REDQueueKind:
		return "RED"
	case PriorityQueueKind:
		return "Priority"
	case LosslessQueueKind:
		return "Lossless"
	default:
		return "unknown"
	}
}

// NodeFrame names one endpoint or intermediate device in a topology.
// Topology-level routing only cares about names; whether a node hosts
// a TCP/MPTCP endpoint is a property of the scenario using it, not of
// the topology graph itself.
type NodeFrame struct {
	Name string `json:"name" yaml:"name"`
}

// LinkFrame describes one directed link: a queue (with its
// policy-specific knobs) in front of a fixed-delay pipe, matching the
// queue-then-pipe ordering spec.md §4.4/§4.5 specify for a hop.
type LinkFrame struct {
	Name         string  `json:"name" yaml:"name"`
	From         string  `json:"from" yaml:"from"`
	To           string  `json:"to" yaml:"to"`
	RateBps      float64 `json:"ratebps" yaml:"ratebps"`
	DelaySeconds float64 `json:"delayseconds" yaml:"delayseconds"`
	MaxBytes     int     `json:"maxbytes" yaml:"maxbytes"`

	Queue QueueKind `json:"queue" yaml:"queue"`

	// RED-specific; ignored unless Queue == REDQueueKind.
	MinThresh  int     `json:"minthresh,omitempty" yaml:"minthresh,omitempty"`
	MaxThresh  int     `json:"maxthresh,omitempty" yaml:"maxthresh,omitempty"`
	MaxProb    float64 `json:"maxprob,omitempty" yaml:"maxprob,omitempty"`
	EWMAWeight float64 `json:"ewmaweight,omitempty" yaml:"ewmaweight,omitempty"`

	// PriorityQuotas gives one quota per class, highest priority first;
	// ignored unless Queue == PriorityQueueKind. Zero means unbounded.
	PriorityQuotas []int `json:"priorityquotas,omitempty" yaml:"priorityquotas,omitempty"`

	// Lossless-specific; ignored unless Queue == LosslessQueueKind.
	HighWater int `json:"highwater,omitempty" yaml:"highwater,omitempty"`
	LowWater  int `json:"lowwater,omitempty" yaml:"lowwater,omitempty"`
}

// TopoFrame accumulates nodes and links before Transform produces the
// serializable TopoDesc, the way desc-topo.go's TopoCfgFrame
// accumulates HostFrame/RouterFrame/SwitchFrame entries before
// Consolidate/Transform.
type TopoFrame struct {
	Name  string
	Nodes []NodeFrame
	Links []LinkFrame
}

// CreateTopoFrame starts an empty, named topology frame.
func CreateTopoFrame(name string) *TopoFrame {
	return &TopoFrame{Name: name}
}

// AddNode appends a node if its name isn't already present.
func (tf *TopoFrame) AddNode(name string) {
	if slices.ContainsFunc(tf.Nodes, func(n NodeFrame) bool { return n.Name == name }) {
		return
	}
	tf.Nodes = append(tf.Nodes, NodeFrame{Name: name})
}

// AddLink appends a directed link, auto-registering its endpoints as
// nodes if they haven't been added explicitly.
func (tf *TopoFrame) AddLink(l LinkFrame) {
	tf.AddNode(l.From)
	tf.AddNode(l.To)
	tf.Links = append(tf.Links, l)
}

// AddBidirectionalLink adds two directed LinkFrames with the same
// characteristics, one in each direction, named name+"-fwd"/"-rev".
// Most scenarios in spec.md §8 describe a link's rate/delay/buffer
// once and mean it symmetrically.
func (tf *TopoFrame) AddBidirectionalLink(l LinkFrame) {
	fwd := l
	fwd.Name = l.Name + "-fwd"
	tf.AddLink(fwd)

	rev := l
	rev.Name = l.Name + "-rev"
	rev.From, rev.To = l.To, l.From
	tf.AddLink(rev)
}

// Transform validates the accumulated nodes/links and produces the
// TopoDesc the rest of this package (and, for persistence, an external
// driver) consumes, mirroring desc-topo.go's Frame.Transform()
// producing a Desc.
func (tf *TopoFrame) Transform() (*TopoDesc, error) {
	seen := make(map[string]bool, len(tf.Nodes))
	for _, n := range tf.Nodes {
		seen[n.Name] = true
	}
	for _, l := range tf.Links {
		if !seen[l.From] {
			return nil, fmt.Errorf("topo: link %q references unknown node %q", l.Name, l.From)
		}
		if !seen[l.To] {
			return nil, fmt.Errorf("topo: link %q references unknown node %q", l.Name, l.To)
		}
		if l.RateBps <= 0 {
			return nil, fmt.Errorf("topo: link %q has non-positive rate", l.Name)
		}
	}
	return &TopoDesc{Name: tf.Name, Nodes: append([]NodeFrame{}, tf.Nodes...), Links: append([]LinkFrame{}, tf.Links...)}, nil
}
