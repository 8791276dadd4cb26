// Package trace implements the passive observer-hook logging layer:
// queue enqueue/dequeue/drop, TCP state change, packet send/receive,
// RTO fire (spec.md §5). Loggers never mutate simulator state or
// schedule events. Ported from mrnes's trace.go TraceManager, with
// vrtime.Time replaced by engine.Time and the object-id dictionary
// keyed by name rather than an externally-assigned integer id.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/iti/tcpnet/engine"
	"gopkg.in/yaml.v3"
)

// Record is one logged event.
type Record struct {
	Time     float64 `json:"time" yaml:"time"`
	Ticks    int64   `json:"ticks" yaml:"ticks"`
	Priority int64   `json:"priority" yaml:"priority"`
	FlowID   int     `json:"flowid" yaml:"flowid"`
	Object   string  `json:"object" yaml:"object"`
	Op       string  `json:"op" yaml:"op"`
}

// Logger is the capability every component accepts via LogTo: record
// one event. Components hold this as an interface so trace.Manager is
// swappable with a no-op or test double.
type Logger interface {
	LogEvent(t engine.Time, flowID int, objName, op string)
}

// Manager is the passive, fan-out log: every component sharing one
// Manager appends into a single per-flow trace, later serialized to
// disk as yaml or json depending on the destination file's extension,
// matching mrnes's TraceManager.WriteToFile dispatch-by-extension.
type Manager struct {
	InUse   bool                `json:"inuse" yaml:"inuse"`
	ExpName string              `json:"expname" yaml:"expname"`
	Records map[int][]Record    `json:"records" yaml:"records"`
}

// NewManager constructs a Manager. When active is false, LogEvent is a
// no-op, the way mrnes gates tracing on TraceManager.InUse so the cost
// of tracing can be skipped entirely in a production run.
func NewManager(expName string, active bool) *Manager {
	return &Manager{
		InUse:   active,
		ExpName: expName,
		Records: make(map[int][]Record),
	}
}

// Active reports whether this manager is recording events.
func (m *Manager) Active() bool { return m.InUse }

// LogEvent appends a Record for the given flow.
func (m *Manager) LogEvent(t engine.Time, flowID int, objName, op string) {
	if !m.InUse {
		return
	}
	m.Records[flowID] = append(m.Records[flowID], Record{
		Time:     t.Seconds(),
		Ticks:    t.Ticks(),
		Priority: t.Pri(),
		FlowID:   flowID,
		Object:   objName,
		Op:       op,
	})
}

// FlowIDs returns the flow ids with at least one recorded event, sorted.
func (m *Manager) FlowIDs() []int {
	ids := make([]int, 0, len(m.Records))
	for id := range m.Records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// WriteToFile serializes the manager's records to filename, choosing
// yaml or json by its extension (mrnes's trace.go WriteToFile idiom).
// It is a no-op, returning false, if the manager is inactive.
func (m *Manager) WriteToFile(filename string) (bool, error) {
	if !m.InUse {
		return false, nil
	}
	var data []byte
	var err error

	switch path.Ext(filename) {
	case ".yaml", ".yml", ".YAML":
		data, err = yaml.Marshal(*m)
	case ".json", ".JSON":
		data, err = json.MarshalIndent(*m, "", "\t")
	default:
		return false, fmt.Errorf("trace: unrecognized extension on %q, want .yaml or .json", filename)
	}
	if err != nil {
		return false, fmt.Errorf("trace: marshal failed: %w", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return false, fmt.Errorf("trace: create %q: %w", filename, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return false, fmt.Errorf("trace: write %q: %w", filename, err)
	}
	return true, nil
}
