package compiler

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
)

// Seed-mode tokens the UI inserts next to seed widgets. They are not schema
// fields and must not survive into the executable graph.
var seedModes = map[string]bool{
	"randomize": true,
	"fixed":     true,
	"increment": true,
	"decrement": true,
}

// Unlinked ports of these types carry a positional widget value even when the
// export omits explicit widget metadata.
var simpleValueTypes = map[string]bool{
	"INT":         true,
	"FLOAT":       true,
	"STRING":      true,
	"BOOLEAN":     true,
	"COMBO":       true,
	"IMAGEUPLOAD": true,
}

func isSeedMode(v any) bool {
	s, ok := v.(string)
	return ok && seedModes[strings.ToLower(strings.TrimSpace(s))]
}

// valuePorts returns the ports that consume widgets_values entries, in UI
// order: any port with widget metadata, plus unlinked scalar-ish ports that
// omit it.
func valuePorts(node *Node) []*Port {
	if !node.Inputs.IsPortList() {
		return nil
	}

	var ports []*Port
	for i := range node.Inputs.Ports {
		port := &node.Inputs.Ports[i]
		if port.Literal {
			continue
		}
		hasWidgetMeta := port.Widget != nil
		isUnlinkedValue := !port.Linked() && simpleValueTypes[strings.ToUpper(port.Type)]
		if hasWidgetMeta || isUnlinkedValue {
			ports = append(ports, port)
		}
	}
	return ports
}

// reconcileSeedMode drops the UI-only seed-mode token from widgets_values
// when it holds exactly one extra entry, and applies the token to the seed.
// Two placements occur in the wild: the token right after a leading seed
// port, or as the trailing value when the last port is the seed.
func reconcileSeedMode(ports []*Port, values []any, rng *rand.Rand) []any {
	if len(ports) == 0 || len(values) != len(ports)+1 {
		return values
	}

	firstName := strings.ToLower(strings.TrimSpace(ports[0].Name))
	lastName := strings.ToLower(strings.TrimSpace(ports[len(ports)-1].Name))

	if firstName == "seed" && len(values) >= 2 && isSeedMode(values[1]) {
		mode, _ := values[1].(string)
		out := make([]any, 0, len(values)-1)
		out = append(out, nextSeed(values[0], mode, rng))
		out = append(out, values[2:]...)
		return out
	}

	if lastName == "seed" && isSeedMode(values[len(values)-1]) {
		mode, _ := values[len(values)-1].(string)
		out := make([]any, len(values)-1)
		copy(out, values[:len(values)-1])
		out[len(out)-1] = nextSeed(out[len(out)-1], mode, rng)
		return out
	}

	return values
}

// BuildPrompt lowers the UI graph into the executable prompt-graph: a map of
// node_id -> {class_type, inputs} with named inputs, linked inputs resolved
// to their ultimate [src_id, src_slot] sources, and pass-through nodes
// omitted entirely.
func BuildPrompt(g *Graph, rng *rand.Rand) (map[string]any, error) {
	active, err := g.ActiveNodes()
	if err != nil {
		return nil, err
	}

	prompt := make(map[string]any, len(active))

	for _, node := range g.Nodes {
		if node == nil || !active[node.ID] || node.IsMuted() || node.IsBypass() {
			continue
		}

		classType := node.ClassType()
		if skipClasses[classType] || switchClasses[classType] {
			continue
		}

		inputs := make(map[string]any)

		if node.Inputs.IsPortList() {
			// Linked ports first
			for slot, port := range node.Inputs.Ports {
				if !port.Linked() || port.Name == "" {
					continue
				}
				src, ok := g.SourceOf(node.ID, slot)
				if !ok {
					continue
				}
				resolved, found, err := g.resolveSource(src.NodeID, src.Slot, map[int]bool{})
				if err != nil {
					return nil, err
				}
				if !found {
					continue
				}
				inputs[port.Name] = []any{strconv.Itoa(resolved.NodeID), resolved.Slot}
			}

			// Widget values consumed positionally against the value ports
			ports := valuePorts(node)
			if len(node.WidgetsValues) > 0 && len(ports) > 0 {
				aligned := reconcileSeedMode(ports, node.WidgetsValues, rng)

				n := len(aligned)
				if len(ports) < n {
					n = len(ports)
				}
				for i := 0; i < n; i++ {
					port := ports[i]
					if port.Name == "" {
						continue
					}
					// Always consume the value; only write when the UI port
					// is not linked
					if !port.Linked() {
						inputs[port.Name] = aligned[i]
					}
				}
			}
		} else {
			for name, value := range node.Inputs.Fields {
				inputs[name] = value
			}
		}

		prompt[strconv.Itoa(node.ID)] = map[string]any{
			"class_type": classType,
			"inputs":     inputs,
		}
	}

	return prompt, nil
}

// NormalizeExtraPNGInfo accepts the worker-API dict shape as well as the UI
// export's list-of-one-dict shape and returns the dict, or nil.
func NormalizeExtraPNGInfo(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}

	var dict map[string]any
	if err := json.Unmarshal(raw, &dict); err == nil {
		return dict
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return nil
}
