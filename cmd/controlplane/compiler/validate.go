package compiler

import (
	"fmt"
	"strings"

	"github.com/pixeon/renderplane/cmd/controlplane/catalog"
)

// ValidateAndFix reconciles every literal input in an executable payload
// against the node schema catalog: primitives are coerced to their schema
// type, empty values fall back to schema defaults, and combo values are
// matched exactly or by basename. Linked inputs and fields the catalog
// does not know are left alone. The payload is fixed in place; the return
// value lists every adjustment made.
func ValidateAndFix(payload map[string]any, cat *catalog.Catalog) []string {
	var warnings []string

	prompt, ok := payload["prompt"].(map[string]any)
	if !ok {
		return []string{"payload has no prompt object"}
	}

	for nodeID, raw := range prompt {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		classType, _ := node["class_type"].(string)
		class := cat.Class(classType)
		if class == nil {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}

		for name, value := range inputs {
			entry, known := class.Entry(name)
			if !known {
				continue
			}
			if _, _, isLink := asLinkRef(value); isLink {
				continue
			}

			if entry.IsCombo() {
				fixed, warn := fixCombo(nodeID, name, entry, value)
				if warn != "" {
					warnings = append(warnings, warn)
				}
				inputs[name] = fixed
				continue
			}

			coerced, err := coerceToKind(entry, value)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("node %s.%s: cannot coerce %v: %v", nodeID, name, value, err))
				continue
			}
			if !equalValue(coerced, value) {
				warnings = append(warnings, fmt.Sprintf("node %s.%s: %v -> %v", nodeID, name, value, coerced))
			}
			inputs[name] = coerced
		}
	}

	return warnings
}

func fixCombo(nodeID, name string, entry *catalog.Entry, value any) (any, string) {
	if isEmptyValue(value) {
		if entry.Default != nil {
			return entry.Default, fmt.Sprintf("node %s.%s: empty -> default %v", nodeID, name, entry.Default)
		}
		return value, ""
	}

	s := fmt.Sprintf("%v", value)
	if fixed, ok := entry.MatchChoice(s); ok {
		if fixed != s {
			return fixed, fmt.Sprintf("node %s.%s: %q -> %q (combo match)", nodeID, name, s, fixed)
		}
		return fixed, ""
	}

	if entry.Default != nil {
		return entry.Default, fmt.Sprintf("node %s.%s: %q not in choices -> default %v", nodeID, name, s, entry.Default)
	}
	// No default: leave the value so the worker rejects it explicitly.
	return value, ""
}

func coerceToKind(entry *catalog.Entry, value any) (any, error) {
	if isEmptyValue(value) {
		if entry.Default != nil {
			return entry.Default, nil
		}
		return value, nil
	}

	switch entry.Kind {
	case catalog.KindInt:
		if n, ok := toInt(value); ok {
			return n, nil
		}
		return nil, fmt.Errorf("not an integer")
	case catalog.KindFloat:
		if f, ok := toFloat(value); ok {
			return f, nil
		}
		return nil, fmt.Errorf("not a number")
	case catalog.KindBoolean:
		return toBool(value), nil
	}
	return value, nil
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func equalValue(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
