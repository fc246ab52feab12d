package compiler

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/pixeon/renderplane/common/errors"
)

// UI node modes as exported by the graph editor
const (
	ModeNormal = 0
	ModeMuted  = 2
	ModeBypass = 4
)

// Graph is the authoring representation of a workflow: nodes with port lists
// and positional widget values, plus typed links between ports.
type Graph struct {
	Nodes        []*Node         `json:"nodes"`
	Links        []Link          `json:"links"`
	ExtraPNGInfo json.RawMessage `json:"extra_pnginfo,omitempty"`

	nodeByID map[int]*Node
	// dst node id -> dst slot -> (src node id, src slot)
	linkInto map[int]map[int]LinkEnd
}

// LinkEnd is one side of a resolved link
type LinkEnd struct {
	NodeID int
	Slot   int
}

// Link is one edge of the UI graph, serialized as
// [link_id, src_id, src_slot, dst_id, dst_slot, type].
type Link struct {
	ID      int
	SrcID   int
	SrcSlot int
	DstID   int
	DstSlot int
	Type    string
}

// UnmarshalJSON decodes the positional link array
func (l *Link) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("link must be an array: %w", err)
	}
	if len(raw) < 6 {
		return fmt.Errorf("link array too short: %d elements", len(raw))
	}

	ints := []*int{&l.ID, &l.SrcID, &l.SrcSlot, &l.DstID, &l.DstSlot}
	for i, target := range ints {
		if err := json.Unmarshal(raw[i], target); err != nil {
			return fmt.Errorf("link element %d: %w", i, err)
		}
	}

	// The type element is occasionally null in legacy exports
	if err := json.Unmarshal(raw[5], &l.Type); err != nil {
		l.Type = ""
	}
	return nil
}

// Node is one node of the UI graph
type Node struct {
	ID            int            `json:"id"`
	Type          string         `json:"type,omitempty"`
	ClassTypeRaw  string         `json:"class_type,omitempty"`
	Mode          int            `json:"mode,omitempty"`
	Inputs        NodeInputs     `json:"inputs,omitempty"`
	WidgetsValues []any          `json:"widgets_values,omitempty"`
	Outputs       []OutputPort   `json:"outputs,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
	Title         string         `json:"title,omitempty"`
}

// ClassType resolves the executable class of the node: "class_type" in
// API-shaped exports, "type" in UI exports, with the search-and-replace name
// as a last resort.
func (n *Node) ClassType() string {
	if n.ClassTypeRaw != "" {
		return n.ClassTypeRaw
	}
	if n.Type != "" {
		return n.Type
	}
	if n.Properties != nil {
		if name, ok := n.Properties["Node name for S&R"].(string); ok {
			return name
		}
	}
	return ""
}

// IsMuted reports UI mode 2
func (n *Node) IsMuted() bool { return n.Mode == ModeMuted }

// IsBypass reports UI mode 4
func (n *Node) IsBypass() bool { return n.Mode == ModeBypass }

// Port is an input port descriptor of a UI node. A port is either linked
// (Link set) or a widget port consuming one positional widget value.
// Literal marks a placeholder kept for an interleaved literal value in legacy
// exports, preserving slot indices.
type Port struct {
	Name    string         `json:"name"`
	Type    string         `json:"type,omitempty"`
	Link    *int           `json:"link,omitempty"`
	Widget  map[string]any `json:"widget,omitempty"`
	Literal bool           `json:"-"`
}

// Linked reports whether the port carries an incoming link
func (p *Port) Linked() bool { return p.Link != nil }

// OutputPort is an output slot descriptor
type OutputPort struct {
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Links []int  `json:"links,omitempty"`
}

// NodeInputs is the tagged variant over the two shapes the UI emits for
// node inputs: an ordered list of port descriptors, or a field->value map.
// Positional widget literals interleaved in legacy list exports are dropped;
// widgets_values is the single source of truth for widget values.
type NodeInputs struct {
	Ports  []Port
	Fields map[string]any
}

// IsPortList reports whether the inputs came as an ordered port list
func (in *NodeInputs) IsPortList() bool { return in.Fields == nil }

// UnmarshalJSON accepts either shape
func (in *NodeInputs) UnmarshalJSON(data []byte) error {
	// Try the list-of-ports shape first
	var rawList []json.RawMessage
	if err := json.Unmarshal(data, &rawList); err == nil {
		ports := make([]Port, 0, len(rawList))
		for _, item := range rawList {
			var port Port
			if err := json.Unmarshal(item, &port); err != nil {
				// interleaved literal; keep a placeholder so slot indices
				// stay aligned, the value itself lives in widgets_values
				ports = append(ports, Port{Literal: true})
				continue
			}
			ports = append(ports, port)
		}
		in.Ports = ports
		in.Fields = nil
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("node inputs must be a list or an object")
	}
	in.Fields = fields
	return nil
}

// MarshalJSON writes back whichever variant is populated
func (in NodeInputs) MarshalJSON() ([]byte, error) {
	if in.Fields != nil {
		return json.Marshal(in.Fields)
	}
	return json.Marshal(in.Ports)
}

// ParseGraph decodes and indexes a UI graph. Every call returns a fresh
// mutable copy, so callers may apply bindings without aliasing the stored
// authoring artifact.
func ParseGraph(raw []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, apperrors.InvalidGraph("unparseable graph: %v", err)
	}
	if g.Nodes == nil {
		return nil, apperrors.InvalidGraph("graph has no nodes array")
	}

	g.nodeByID = make(map[int]*Node, len(g.Nodes))
	for _, node := range g.Nodes {
		if node == nil {
			continue
		}
		if node.ClassType() == "" {
			return nil, apperrors.InvalidGraph("node %d has no class type", node.ID)
		}
		g.nodeByID[node.ID] = node
	}

	g.linkInto = make(map[int]map[int]LinkEnd, len(g.Links))
	for _, link := range g.Links {
		into, ok := g.linkInto[link.DstID]
		if !ok {
			into = make(map[int]LinkEnd)
			g.linkInto[link.DstID] = into
		}
		into[link.DstSlot] = LinkEnd{NodeID: link.SrcID, Slot: link.SrcSlot}
	}

	return &g, nil
}

// NodeByID returns the indexed node, or nil
func (g *Graph) NodeByID(id int) *Node {
	return g.nodeByID[id]
}

// SourceOf returns the raw (unresolved) link feeding (nodeID, slot)
func (g *Graph) SourceOf(nodeID, slot int) (LinkEnd, bool) {
	into, ok := g.linkInto[nodeID]
	if !ok {
		return LinkEnd{}, false
	}
	end, ok := into[slot]
	return end, ok
}
