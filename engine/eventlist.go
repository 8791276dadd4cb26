package engine

import (
	"container/heap"
	"fmt"
)

// HandlerFunc is the signature every scheduled callback satisfies: it
// receives the EventList so it can reschedule itself, the context it was
// scheduled with, and a data payload.
type HandlerFunc func(el *EventList, context any, data any) any

// EventSource is satisfied by anything that can be scheduled. It exists
// mainly for documentation purposes; the EventList itself only needs a
// HandlerFunc plus the (context, data) pair it was given at Schedule time.
type EventSource interface {
	// GlobalName returns a stable, human-readable identity used in
	// logging and in panic messages on programming errors.
	GlobalName() string
}

// event is one entry in the time-ordered heap or the immediate-trigger
// stack. Cancellation is a lazy soft-delete: Cancel flips cancelled and
// DoNextEvent skips over already-cancelled entries as it pops them.
type event struct {
	time      Time
	seq       uint64
	context   any
	data      any
	handler   HandlerFunc
	cancelled bool
	fired     bool
}

// eventHeap orders by (time, seq) so that entries scheduled for the same
// time fire in the order they were enqueued (FIFO tie-break), per
// spec.md §4.1 ordering rule 2.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Handle lets a caller cancel a previously scheduled event. Cancelling
// an invalid or already-fired handle is a no-op, satisfying spec.md
// §4.1 and §5's cancellation-idempotence requirement.
type Handle struct {
	ev *event
}

// Stats reports scheduler activity for post-mortem reporting (spec.md §7).
type Stats struct {
	Scheduled int
	Fired     int
	Cancelled int
	Dropped   int // scheduled past the configured end time
}

// EventList is the single global scheduler for one simulation. Nothing
// about it is package-global: callers construct and pass it explicitly,
// so multiple independent simulations can coexist in one process
// (spec.md §9, "Global state").
type EventList struct {
	now     Time
	end     Time
	hasEnd  bool
	heap    eventHeap
	lifo    []*event
	seq     uint64
	stats   Stats
	exiting bool
}

// NewEventList constructs an empty scheduler with the clock at zero.
func NewEventList() *EventList {
	el := &EventList{}
	heap.Init(&el.heap)
	return el
}

// Now returns the current virtual time.
func (el *EventList) Now() Time { return el.now }

// NowSeconds is a convenience accessor mirroring the teacher's
// evtMgr.CurrentSeconds(), used pervasively by loggers and rate math.
func (el *EventList) NowSeconds() float64 { return el.now.Seconds() }

// SetEndTime bounds RunUntil and causes any schedule request past this
// time to be silently dropped (and counted in Stats), per spec.md §4.1
// failure semantics.
func (el *EventList) SetEndTime(t Time) {
	el.end = t
	el.hasEnd = true
}

// RequestExit asks the scheduler to stop after the current event
// handler returns, per spec.md §4.1 run_until termination conditions.
func (el *EventList) RequestExit() { el.exiting = true }

// ScheduleAt enqueues handler to run at absolute virtual time at, with
// the given context/data. Scheduling in the past is a programming
// error and panics immediately (spec.md §4.1 ordering rule 3, §7
// "Programming errors").
func (el *EventList) ScheduleAt(context any, data any, handler HandlerFunc, at Time) Handle {
	if at < el.now {
		panic(fmt.Sprintf("engine: attempt to schedule at %d before now (%d)", at, el.now))
	}
	if el.hasEnd && at > el.end {
		el.stats.Dropped++
		return Handle{}
	}
	el.seq++
	ev := &event{time: at, seq: el.seq, context: context, data: data, handler: handler}
	heap.Push(&el.heap, ev)
	el.stats.Scheduled++
	return Handle{ev: ev}
}

// Schedule enqueues handler to run after delay has elapsed from now.
// This is the form every other package in tcpnet uses, matching the
// teacher's evtMgr.Schedule(context, data, handler, offset) idiom.
func (el *EventList) Schedule(context any, data any, handler HandlerFunc, delay Time) Handle {
	return el.ScheduleAt(context, data, handler, el.now+delay)
}

// TriggerNow enqueues an immediate, zero-delay callback. All pending
// immediate triggers are drained in LIFO order before any time-ordered
// event fires (spec.md §4.1 ordering rule 1).
func (el *EventList) TriggerNow(context any, data any, handler HandlerFunc) Handle {
	el.seq++
	ev := &event{time: el.now, seq: el.seq, context: context, data: data, handler: handler}
	el.lifo = append(el.lifo, ev)
	el.stats.Scheduled++
	return Handle{ev: ev}
}

// Cancel removes a scheduled event. It is a no-op if the handle is zero,
// already fired, or already cancelled.
func (el *EventList) Cancel(h Handle) {
	if h.ev == nil || h.ev.cancelled || h.ev.fired {
		return
	}
	h.ev.cancelled = true
	el.stats.Cancelled++
}

// popLIFO removes and returns the most recently pushed, not-yet-cancelled
// immediate trigger, or nil if none remain.
func (el *EventList) popLIFO() *event {
	for len(el.lifo) > 0 {
		n := len(el.lifo) - 1
		ev := el.lifo[n]
		el.lifo = el.lifo[:n]
		if !ev.cancelled {
			return ev
		}
	}
	return nil
}

// popHeap removes and returns the earliest not-yet-cancelled time-ordered
// event, or nil if none remain.
func (el *EventList) popHeap() *event {
	for el.heap.Len() > 0 {
		ev := heap.Pop(&el.heap).(*event)
		if !ev.cancelled {
			return ev
		}
	}
	return nil
}

// DoNextEvent fires the single next pending event (immediate triggers
// take priority over the time-ordered heap) and reports whether one was
// found. It is the primitive RunUntil is built on, and is also exposed
// directly so external drivers can single-step a simulation.
func (el *EventList) DoNextEvent() bool {
	if ev := el.popLIFO(); ev != nil {
		ev.fired = true
		el.stats.Fired++
		ev.handler(el, ev.context, ev.data)
		return true
	}
	ev := el.popHeap()
	if ev == nil {
		return false
	}
	if ev.time < el.now {
		panic(fmt.Sprintf("engine: clock moved backward: event at %d, now %d", ev.time, el.now))
	}
	el.now = ev.time
	ev.fired = true
	el.stats.Fired++
	ev.handler(el, ev.context, ev.data)
	return true
}

// RunUntil repeatedly dequeues the earliest event, advances the clock to
// its time, and invokes it, stopping when the queue empties, the clock
// reaches end, or a handler calls RequestExit (spec.md §4.1).
func (el *EventList) RunUntil(end Time) {
	el.SetEndTime(end)
	for !el.exiting && el.now < end {
		if !el.DoNextEvent() {
			return
		}
	}
}

// Stats returns a snapshot of scheduler activity counters.
func (el *EventList) Stats() Stats { return el.stats }

// Pending reports how many time-ordered events remain enqueued,
// including any not-yet-skipped cancelled entries.
func (el *EventList) Pending() int { return el.heap.Len() }
