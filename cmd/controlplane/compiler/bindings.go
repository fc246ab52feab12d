package compiler

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/pixeon/renderplane/cmd/controlplane/models"
	apperrors "github.com/pixeon/renderplane/common/errors"
)

var widgetFieldRe = regexp.MustCompile(`^widget_(\d+)$`)

// FileMerger merges a mask file into the alpha channel of a base image and
// returns the storage path of the merged file.
type FileMerger interface {
	MergeMaskIntoAlpha(ctx context.Context, basePath, maskPath string) (string, error)
}

// bindingTarget identifies a (node, field) write location
type bindingTarget struct {
	nodeID string
	field  string
}

func targetOf(b *models.Binding) bindingTarget {
	return bindingTarget{nodeID: b.NodeID, field: b.Field}
}

// widgetIndex parses positional widget fields: "widget_3", "3", 3
func widgetIndex(field string) (int, bool) {
	field = strings.TrimSpace(field)
	if m := widgetFieldRe.FindStringSubmatch(field); m != nil {
		idx, _ := strconv.Atoi(m[1])
		return idx, true
	}
	if idx, err := strconv.Atoi(field); err == nil && idx >= 0 {
		return idx, true
	}
	return 0, false
}

// applyBinding writes value into the graph at the binding's target.
// widgets_values is the canonical store for positional slots; named fields go
// to the field map when the node carries one, otherwise the name is resolved
// to a widget position among the node's unlinked ports.
func applyBinding(g *Graph, binding *models.Binding, value any) error {
	nodeID, err := strconv.Atoi(binding.NodeID)
	if err != nil {
		return apperrors.InvalidGraph("invalid node_id in binding: %q", binding.NodeID)
	}

	node := g.NodeByID(nodeID)
	if node == nil {
		return apperrors.BindingNotFound(binding.NodeID, binding.Field)
	}

	if idx, ok := widgetIndex(binding.Field); ok {
		setWidgetValue(node, idx, value)
		return nil
	}

	// Named field on a field-map node
	if !node.Inputs.IsPortList() {
		node.Inputs.Fields[binding.Field] = value
		return nil
	}

	// Named field on a port-list node: locate the widget position by name
	idx, ok := widgetPositionByName(node, binding.Field)
	if !ok {
		return apperrors.BindingNotFound(binding.NodeID, binding.Field)
	}
	setWidgetValue(node, idx, value)
	return nil
}

// setWidgetValue writes widgets_values[idx], growing the slice with nulls
func setWidgetValue(node *Node, idx int, value any) {
	for len(node.WidgetsValues) <= idx {
		node.WidgetsValues = append(node.WidgetsValues, nil)
	}
	node.WidgetsValues[idx] = value
}

// widgetPositionByName finds the position of a named field among the node's
// widget (unlinked) ports, counting only widget ports
func widgetPositionByName(node *Node, field string) (int, bool) {
	pos := 0
	for _, port := range node.Inputs.Ports {
		if port.Linked() || port.Literal {
			continue
		}
		if port.Name == field {
			return pos, true
		}
		pos++
	}
	return 0, false
}

// isEmpty treats nil and blank strings as absent values
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// coerceParam converts a raw user value to the param's declared type.
// Empty values and failed conversions fall back to the param default.
func coerceParam(p *models.ParamInput, raw any) any {
	if isEmpty(raw) {
		return p.Default
	}

	switch p.Type {
	case "int":
		if v, ok := toInt(raw); ok {
			return v
		}
		return p.Default
	case "float":
		if v, ok := toFloat(raw); ok {
			return v
		}
		return p.Default
	case "bool":
		return toBool(raw)
	default:
		return raw
	}
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "false", "0", "no", "n", "off":
			return false
		default:
			return true
		}
	}
	return v != nil
}

// enforceChoices replaces out-of-list values with the param default
func enforceChoices(p *models.ParamInput, value any) any {
	if len(p.Choices) == 0 {
		return value
	}
	for _, choice := range p.Choices {
		if fmt.Sprintf("%v", choice) == fmt.Sprintf("%v", value) {
			return value
		}
	}
	return p.Default
}

// applyBindings mutates the graph in place from the spec and user inputs.
// Order matters: params first, then mask coupling, then images, then mask,
// then text last so protected text bindings can never be overwritten.
// Returns the (possibly rewritten) files map.
func applyBindings(
	ctx context.Context,
	g *Graph,
	spec *models.Spec,
	textInputs map[string]string,
	paramInputs map[string]any,
	files map[string]string,
	mode string,
	merger FileMerger,
) (map[string]string, error) {
	if !spec.HasMode(mode) {
		return nil, apperrors.InvalidModeForKey(mode, "workflow")
	}

	// Copy so callers keep their map
	outFiles := make(map[string]string, len(files))
	for k, v := range files {
		outFiles[k] = v
	}

	protected := make(map[bindingTarget]bool, len(spec.Inputs.Text))
	for _, t := range spec.Inputs.Text {
		protected[targetOf(t.Binding)] = true
	}

	// 1) Params
	for i := range spec.Inputs.Params {
		p := &spec.Inputs.Params[i]

		value := enforceChoices(p, coerceParam(p, paramInputs[p.Key]))

		if p.Binding.Map != nil {
			mapped, ok := p.Binding.Map[mode]
			if !ok {
				return nil, apperrors.InvalidModeForKey(mode, p.Key)
			}
			value = mapped
		}

		if protected[targetOf(p.Binding)] {
			continue
		}

		// Mirror into the named field when the node keeps a field map
		if p.Name != "" {
			if nodeID, err := strconv.Atoi(p.Binding.NodeID); err == nil {
				if node := g.NodeByID(nodeID); node != nil && !node.Inputs.IsPortList() {
					node.Inputs.Fields[p.Name] = value
				}
			}
		}

		if err := applyBinding(g, p.Binding, value); err != nil {
			return nil, err
		}
	}

	// 2) Mask coupling (pre-upload): when the mask targets the same binding
	// as its base image, the mask must be merged into the base image's alpha
	// channel and dropped as a standalone upload.
	if mask := spec.Inputs.Mask; mask != nil && merger != nil {
		basePath, haveBase := outFiles[mask.DependsOn]
		maskPath, haveMask := outFiles[mask.Key]
		if haveBase && haveMask {
			if img := imageInputByKey(spec, mask.DependsOn); img != nil && sameTarget(img.Binding, mask.Binding) {
				merged, err := merger.MergeMaskIntoAlpha(ctx, basePath, maskPath)
				if err != nil {
					return nil, fmt.Errorf("merge mask into alpha: %w", err)
				}
				outFiles[mask.DependsOn] = merged
				delete(outFiles, mask.Key)
			}
		}
	}

	// 3) Images (gated by mode)
	for i := range spec.Inputs.Images {
		img := &spec.Inputs.Images[i]
		if len(img.Modes) > 0 && !contains(img.Modes, mode) {
			continue
		}
		path, ok := outFiles[img.Key]
		if !ok {
			continue
		}
		if err := applyBinding(g, img.Binding, path); err != nil {
			return nil, err
		}

		// Image loaders keep their source selector on the second widget
		if nodeID, err := strconv.Atoi(img.Binding.NodeID); err == nil {
			if node := g.NodeByID(nodeID); node != nil && node.ClassType() == "LoadImage" {
				setWidgetValue(node, 1, "image")
			}
		}
	}

	// 4) Mask as its own binding (separate loader node)
	if mask := spec.Inputs.Mask; mask != nil {
		if len(mask.Modes) == 0 || contains(mask.Modes, mode) {
			if path, ok := outFiles[mask.Key]; ok {
				if err := applyBinding(g, mask.Binding, path); err != nil {
					return nil, err
				}
			}
		}
	}

	// 5) Text, last: overrides anything previously written at its binding
	for i := range spec.Inputs.Text {
		t := &spec.Inputs.Text[i]
		value, ok := textInputs[t.Key]
		if !ok {
			if t.Default == "" {
				continue
			}
			value = t.Default
		}
		if err := applyBinding(g, t.Binding, value); err != nil {
			return nil, err
		}
	}

	return outFiles, nil
}

// applySeedRandomization rewrites seed widgets on noise-source nodes
// according to their accompanying seed-mode token
func applySeedRandomization(g *Graph, rng *rand.Rand) {
	for _, node := range g.Nodes {
		if node == nil || node.ClassType() != "RandomNoise" {
			continue
		}
		if len(node.WidgetsValues) < 2 {
			continue
		}

		mode, _ := node.WidgetsValues[1].(string)
		if !isSeedMode(mode) {
			continue
		}
		node.WidgetsValues[0] = nextSeed(node.WidgetsValues[0], mode, rng)
		// Mark the seed as applied so prompt building drops the token
		// without re-rolling
		node.WidgetsValues[1] = "fixed"
	}
}

// nextSeed applies a seed-mode token to the current seed value
func nextSeed(current any, mode string, rng *rand.Rand) any {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "randomize":
		return rng.Int63()
	case "increment":
		if seed, ok := toInt(current); ok {
			return seed + 1
		}
	case "decrement":
		if seed, ok := toInt(current); ok {
			if seed <= 0 {
				return int64(0)
			}
			return seed - 1
		}
	}
	// "fixed" and unrecognized tokens leave the seed alone
	return current
}

func imageInputByKey(spec *models.Spec, key string) *models.ImageInput {
	for i := range spec.Inputs.Images {
		if spec.Inputs.Images[i].Key == key {
			return &spec.Inputs.Images[i]
		}
	}
	return nil
}

func sameTarget(a, b *models.Binding) bool {
	return a != nil && b != nil && a.NodeID == b.NodeID && a.Field == b.Field
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
