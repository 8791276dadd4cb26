package pkt

// Route is an ordered list of Sinks a packet visits in turn, built once
// by the topology layer's shortest-path computation and shared by every
// packet on the same flow (spec.md §3.3, grounded in routes.go's
// path-caching idiom).
type Route struct {
	hops []Sink
}

// NewRoute builds a Route visiting hops in order.
func NewRoute(hops ...Sink) *Route {
	r := &Route{hops: make([]Sink, len(hops))}
	copy(r.hops, hops)
	return r
}

// Len returns the number of hops on the route.
func (r *Route) Len() int {
	if r == nil {
		return 0
	}
	return len(r.hops)
}

// At returns the Sink at hop index i.
func (r *Route) At(i int) Sink { return r.hops[i] }

// Reverse returns a new Route visiting the same Sinks in reverse order,
// used to build the return path for acknowledgements.
func (r *Route) Reverse() *Route {
	n := len(r.hops)
	rev := make([]Sink, n)
	for i, s := range r.hops {
		rev[n-1-i] = s
	}
	return &Route{hops: rev}
}
