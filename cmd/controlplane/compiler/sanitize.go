package compiler

import (
	"sort"
	"strings"
)

// UI-only classes: annotations and panel widgets that have no executable
// semantics. The builder already drops them; the sanitizer also handles
// graphs that arrive pre-built from other tooling.
var skipClasses = map[string]bool{
	"Note":                        true,
	"MarkdownNote":                true,
	"Label (rgthree)":             true,
	"Fast Groups Muter (rgthree)": true,
	"Image Comparer (rgthree)":    true,
}

// Optimization nodes that misbehave when executed over the worker API even
// in normal mode. They are unrolled like bypass: consumers are rewired to
// the node's first connected input.
var bypassSafeClasses = map[string]bool{
	"PathchSageAttentionKJ": true,
}

// Sanitize performs the final pre-dispatch pass over an executable payload:
// it rewires references through UI-only, switch, and bypass-unrolled nodes,
// removes those nodes, drops empty adapter fields on known model loaders,
// and normalizes extra_pnginfo to the list shape some custom nodes expect.
// Running it twice yields the same payload.
func Sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}

	if extra, ok := payload["extra_pnginfo"].(map[string]any); ok {
		payload["extra_pnginfo"] = []any{extra}
	}

	prompt, ok := payload["prompt"].(map[string]any)
	if !ok {
		return payload
	}

	for _, raw := range prompt {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}
		for name, value := range inputs {
			srcID, srcSlot, ok := asLinkRef(value)
			if !ok {
				continue
			}
			if resID, resSlot, found := resolveRef(prompt, srcID, srcSlot, map[string]bool{}); found {
				inputs[name] = []any{resID, resSlot}
			}
		}
	}

	for id, raw := range prompt {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ct, _ := node["class_type"].(string)
		if skipClasses[ct] || switchClasses[ct] || bypassSafeClasses[ct] {
			delete(prompt, id)
		}
	}

	for _, raw := range prompt {
		node, ok := raw.(map[string]any)
		if !ok || node["class_type"] != "DownloadAndLoadFlorence2Model" {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}
		if v, present := inputs["lora"]; present && emptyAdapter(v) {
			delete(inputs, "lora")
		}
	}

	return payload
}

// asLinkRef recognizes the [node_id, slot] link shape used by executable
// graphs. Slots arrive as int or, after a JSON round-trip, float64.
func asLinkRef(v any) (string, int, bool) {
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		return "", 0, false
	}
	id, ok := list[0].(string)
	if !ok {
		return "", 0, false
	}
	switch slot := list[1].(type) {
	case int:
		return id, slot, true
	case float64:
		return id, int(slot), true
	}
	return "", 0, false
}

// resolveRef follows references through skip, switch, and bypass-unrolled
// nodes to the nearest real source. Returns found=false when the chain
// dead-ends on a node with no usable input.
func resolveRef(prompt map[string]any, nodeID string, slot int, visiting map[string]bool) (string, int, bool) {
	if visiting[nodeID] {
		return "", 0, false
	}
	visiting[nodeID] = true
	defer delete(visiting, nodeID)

	node, ok := prompt[nodeID].(map[string]any)
	if !ok {
		return "", 0, false
	}
	ct, _ := node["class_type"].(string)
	if skipClasses[ct] {
		return "", 0, false
	}

	inputs, _ := node["inputs"].(map[string]any)

	if switchClasses[ct] {
		keys := make([]string, 0, len(inputs))
		for k := range inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if srcID, srcSlot, ok := asLinkRef(inputs[k]); ok {
				if resID, resSlot, found := resolveRef(prompt, srcID, srcSlot, visiting); found {
					return resID, resSlot, true
				}
				return srcID, srcSlot, true
			}
		}
		return "", 0, false
	}

	if bypassSafeClasses[ct] {
		keys := make([]string, 0, len(inputs))
		for k := range inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if srcID, srcSlot, ok := asLinkRef(inputs[k]); ok {
				if resID, resSlot, found := resolveRef(prompt, srcID, srcSlot, visiting); found {
					return resID, resSlot, true
				}
				return srcID, srcSlot, true
			}
		}
		return "", 0, false
	}

	return nodeID, slot, true
}

func emptyAdapter(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
