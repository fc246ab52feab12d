// Package catalog fetches and caches the worker fleet's node schema
// catalog (the /object_info document) and exposes it as typed entries the
// compiler can coerce values against.
package catalog

import (
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/gjson"
)

// Entry kinds as reported by the worker schema.
const (
	KindInt     = "INT"
	KindFloat   = "FLOAT"
	KindBoolean = "BOOLEAN"
	KindString  = "STRING"
	KindCombo   = "COMBO"
)

// Entry describes one input field of a node class.
type Entry struct {
	Kind    string
	Choices []string
	Default any
	Min     *float64
	Max     *float64
}

// IsCombo reports whether the field is an enumerated choice.
func (e *Entry) IsCombo() bool { return e.Kind == KindCombo }

// Class holds the input schema of one node class. Required and Optional
// keep the document's field order alongside the lookup maps.
type Class struct {
	Required      map[string]*Entry
	Optional      map[string]*Entry
	RequiredOrder []string
	OptionalOrder []string
}

// Entry looks a field up in required then optional inputs.
func (c *Class) Entry(name string) (*Entry, bool) {
	if e, ok := c.Required[name]; ok {
		return e, true
	}
	if e, ok := c.Optional[name]; ok {
		return e, true
	}
	return nil, false
}

// Catalog is the parsed schema for every node class a worker advertises.
type Catalog struct {
	Classes map[string]*Class
}

// Class returns the schema for a class type, or nil when unknown.
func (c *Catalog) Class(classType string) *Class {
	if c == nil {
		return nil
	}
	return c.Classes[classType]
}

// Parse decodes a raw /object_info document. Field order within each
// class is preserved so positional widget reconstruction stays faithful
// to the authoring UI.
func Parse(raw []byte) (*Catalog, error) {
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("object_info: not a JSON object")
	}

	cat := &Catalog{Classes: make(map[string]*Class)}
	doc.ForEach(func(classType, info gjson.Result) bool {
		class := &Class{
			Required: make(map[string]*Entry),
			Optional: make(map[string]*Entry),
		}
		info.Get("input.required").ForEach(func(name, entry gjson.Result) bool {
			class.Required[name.String()] = parseEntry(entry)
			class.RequiredOrder = append(class.RequiredOrder, name.String())
			return true
		})
		info.Get("input.optional").ForEach(func(name, entry gjson.Result) bool {
			class.Optional[name.String()] = parseEntry(entry)
			class.OptionalOrder = append(class.OptionalOrder, name.String())
			return true
		})
		cat.Classes[classType.String()] = class
		return true
	})
	return cat, nil
}

// parseEntry handles the two schema shapes: ["INT", {meta}] for primitives
// and [["a","b"], {meta}] for combos. The meta object is optional.
func parseEntry(res gjson.Result) *Entry {
	entry := &Entry{Kind: KindString}

	parts := res.Array()
	if len(parts) == 0 {
		return entry
	}

	head := parts[0]
	if head.IsArray() {
		entry.Kind = KindCombo
		for _, choice := range head.Array() {
			entry.Choices = append(entry.Choices, choice.String())
		}
	} else {
		entry.Kind = strings.ToUpper(head.String())
	}

	if len(parts) < 2 || !parts[1].IsObject() {
		return entry
	}
	meta := parts[1]
	if d := meta.Get("default"); d.Exists() {
		entry.Default = d.Value()
	}
	if m := meta.Get("min"); m.Exists() {
		v := m.Float()
		entry.Min = &v
	}
	if m := meta.Get("max"); m.Exists() {
		v := m.Float()
		entry.Max = &v
	}
	return entry
}

// MatchChoice reconciles a value against a combo's allowed list: exact
// match first, then basename match in either direction for path-like
// values with mixed separators. Returns ok=false when nothing matches.
func (e *Entry) MatchChoice(value string) (string, bool) {
	for _, c := range e.Choices {
		if c == value {
			return c, true
		}
	}
	if value == "" {
		return "", false
	}
	base := path.Base(strings.ReplaceAll(value, "\\", "/"))
	for _, c := range e.Choices {
		if c == base {
			return c, true
		}
	}
	for _, c := range e.Choices {
		if path.Base(strings.ReplaceAll(c, "\\", "/")) == base {
			return c, true
		}
	}
	return "", false
}
