package pkt

// Flow identifies one end-to-end data stream (a TCP or MPTCP
// connection) that packets belong to, the way mrnes's flow.go
// tags every networkMsg with a flow ID for logging and accounting.
type Flow struct {
	ID   int
	Name string

	// Logger is optional; when set, sources/sinks/queues along the
	// flow's route may use it to record lifecycle events. It is a
	// structural interface rather than a dependency on the trace
	// package, so pkt never needs to import it.
	Logger EventLogger
}

// NewFlow constructs a Flow with the given id and name.
func NewFlow(id int, name string) *Flow {
	return &Flow{ID: id, Name: name}
}

// FlowIDAllocator hands out sequential flow IDs. It is an explicit,
// per-simulation object rather than a package-level counter: spec.md
// §9 calls out global mutable state (ID counters, RNGs, event lists)
// as something a complete implementation must avoid so that multiple
// simulations can run independently in one process, in contrast to
// mrnes's own package-level NumIds/numberOfFlows counters.
type FlowIDAllocator struct {
	next int
}

// NewFlowIDAllocator creates an allocator whose first call to Next
// returns base.
func NewFlowIDAllocator(base int) *FlowIDAllocator {
	return &FlowIDAllocator{next: base}
}

// Next returns the next unused flow ID.
func (a *FlowIDAllocator) Next() int {
	id := a.next
	a.next++
	return id
}
