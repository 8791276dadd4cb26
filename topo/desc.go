package topo

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// TopoDesc is the serializable topology description Transform
// produces: a flat node list and directed link list, with no live
// engine/pkt/queue state, matching desc-topo.go's TopoCfg (the
// serializable counterpart of TopoCfgFrame).
type TopoDesc struct {
	Name  string      `json:"name" yaml:"name"`
	Nodes []NodeFrame `json:"nodes" yaml:"nodes"`
	Links []LinkFrame `json:"links" yaml:"links"`
}

// WriteToFile serializes the description to filename, selecting yaml
// or json by its extension (desc-topo.go's WriteToFile idiom, also
// used by trace.Manager.WriteToFile in this module).
func (td *TopoDesc) WriteToFile(filename string) error {
	var data []byte
	var err error

	switch path.Ext(filename) {
	case ".yaml", ".yml", ".YAML":
		data, err = yaml.Marshal(*td)
	case ".json", ".JSON":
		data, err = json.MarshalIndent(*td, "", "\t")
	default:
		return fmt.Errorf("topo: unrecognized extension on %q, want .yaml or .json", filename)
	}
	if err != nil {
		return fmt.Errorf("topo: marshal failed: %w", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("topo: create %q: %w", filename, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("topo: write %q: %w", filename, err)
	}
	return nil
}

// ReadTopoDesc reads and deserializes a TopoDesc previously written by
// WriteToFile, dispatching on the file's extension the same way.
func ReadTopoDesc(filename string) (*TopoDesc, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("topo: read %q: %w", filename, err)
	}

	var td TopoDesc
	switch path.Ext(filename) {
	case ".yaml", ".yml", ".YAML":
		err = yaml.Unmarshal(data, &td)
	case ".json", ".JSON":
		err = json.Unmarshal(data, &td)
	default:
		return nil, fmt.Errorf("topo: unrecognized extension on %q, want .yaml or .json", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("topo: unmarshal %q: %w", filename, err)
	}
	return &td, nil
}

// LinkByName returns the link with the given name, and whether it was
// found.
func (td *TopoDesc) LinkByName(name string) (LinkFrame, bool) {
	i := slices.IndexFunc(td.Links, func(l LinkFrame) bool { return l.Name == name })
	if i < 0 {
		return LinkFrame{}, false
	}
	return td.Links[i], true
}

// linkBetween returns the first link whose From/To matches (from, to),
// and whether one was found. Used by the route builder to recover a
// hop's configuration from a node-name path.
func (td *TopoDesc) linkBetween(from, to string) (LinkFrame, bool) {
	i := slices.IndexFunc(td.Links, func(l LinkFrame) bool { return l.From == from && l.To == to })
	if i < 0 {
		return LinkFrame{}, false
	}
	return td.Links[i], true
}
