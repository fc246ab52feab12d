package compiler

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/pixeon/renderplane/common/errors"
)

// Output node classes terminate a workflow; active-node discovery walks the
// graph backwards from these.
var outputClasses = map[string]bool{
	"SaveImage":          true,
	"PreviewImage":       true,
	"SaveImageWebsocket": true,
	"SaveAnimatedPNG":    true,
	"SaveAnimatedWEBP":   true,
}

// Multi-input switch nodes pass through the first connected branch in
// any_01, any_02, ... priority order.
var switchClasses = map[string]bool{
	"Any Switch (rgthree)": true,
}

// resolveSource follows mute/bypass/switch pass-through chains from
// (srcID, srcSlot) to the ultimate producing slot. Returns found=false when
// the chain dead-ends in a muted or unconnected node. Cycles of pass-through
// nodes are rejected as an invalid graph.
func (g *Graph) resolveSource(srcID, srcSlot int, visiting map[int]bool) (LinkEnd, bool, error) {
	node := g.NodeByID(srcID)
	if node == nil {
		return LinkEnd{}, false, nil
	}

	if node.IsMuted() {
		return LinkEnd{}, false, nil
	}

	passThrough := node.IsBypass() || switchClasses[node.ClassType()]
	if !passThrough {
		return LinkEnd{NodeID: srcID, Slot: srcSlot}, true, nil
	}

	if visiting[srcID] {
		return LinkEnd{}, false, apperrors.InvalidGraph("pass-through cycle at node %d", srcID)
	}
	visiting[srcID] = true
	defer delete(visiting, srcID)

	slot, ok := g.passThroughSlot(node, srcSlot)
	if !ok {
		return LinkEnd{}, false, nil
	}

	prev, ok := g.SourceOf(srcID, slot)
	if !ok {
		return LinkEnd{}, false, nil
	}

	resolved, found, err := g.resolveSource(prev.NodeID, prev.Slot, visiting)
	if err != nil {
		return LinkEnd{}, false, err
	}
	if !found {
		// keep the direct predecessor when the deeper chain dead-ends
		return prev, true, nil
	}
	return resolved, true, nil
}

// passThroughSlot picks which input slot a pass-through node forwards for the
// requested output slot. Switches use any_NN priority order; bypass nodes
// prefer the input whose port type matches the output type, then the first
// linked input.
func (g *Graph) passThroughSlot(node *Node, outSlot int) (int, bool) {
	if !node.Inputs.IsPortList() {
		return 0, false
	}
	ports := node.Inputs.Ports

	if switchClasses[node.ClassType()] {
		type candidate struct {
			name string
			slot int
		}
		var named []candidate
		for i, port := range ports {
			if port.Linked() && strings.HasPrefix(port.Name, "any_") {
				named = append(named, candidate{name: port.Name, slot: i})
			}
		}
		sort.Slice(named, func(i, j int) bool { return named[i].name < named[j].name })
		if len(named) > 0 {
			return named[0].slot, true
		}
		// fallback: first connected input of any name
		for i, port := range ports {
			if port.Linked() {
				return i, true
			}
		}
		return 0, false
	}

	var outType string
	if outSlot >= 0 && outSlot < len(node.Outputs) {
		outType = node.Outputs[outSlot].Type
	}

	if outType != "" {
		for i, port := range ports {
			if port.Linked() && port.Type == outType {
				return i, true
			}
		}
	}
	for i, port := range ports {
		if port.Linked() {
			return i, true
		}
	}
	return 0, false
}

// ActiveNodes returns the set of node ids reachable backwards from the
// graph's output nodes, honoring mute/bypass/switch traversal rules.
func (g *Graph) ActiveNodes() (map[int]bool, error) {
	active := make(map[int]bool)
	var queue []int

	for _, node := range g.Nodes {
		if node == nil || node.IsMuted() {
			continue
		}
		if outputClasses[node.ClassType()] {
			active[node.ID] = true
			queue = append(queue, node.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node := g.NodeByID(id)
		if node == nil || !node.Inputs.IsPortList() {
			continue
		}

		for slot, port := range node.Inputs.Ports {
			if !port.Linked() {
				continue
			}
			src, ok := g.SourceOf(id, slot)
			if !ok {
				continue
			}
			if err := g.walkSource(src, active, &queue); err != nil {
				return nil, err
			}
		}
	}

	return active, nil
}

// walkSource marks the ultimate source of a link active and enqueues it
func (g *Graph) walkSource(src LinkEnd, active map[int]bool, queue *[]int) error {
	resolved, found, err := g.resolveSource(src.NodeID, src.Slot, map[int]bool{})
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if !active[resolved.NodeID] {
		active[resolved.NodeID] = true
		*queue = append(*queue, resolved.NodeID)
	}
	return nil
}

// RelevantImageBindings filters image inputs to those whose bound node is
// reachable from an output, dropping stale loader references left behind by
// legacy graphs.
func (g *Graph) RelevantImageBindings(nodeIDs []string) (map[string]bool, error) {
	active, err := g.ActiveNodes()
	if err != nil {
		return nil, err
	}

	relevant := make(map[string]bool, len(nodeIDs))
	for _, raw := range nodeIDs {
		var id int
		if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
			continue
		}
		if active[id] {
			relevant[raw] = true
		}
	}
	return relevant, nil
}
