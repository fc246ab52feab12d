package models

import "fmt"

// ParamView controls whether a param is rendered in the submission UI
const (
	ParamViewVisible = "view"
	ParamViewHidden  = "hidden"
	ParamViewNone    = "no_view"
)

// DefaultMode is the implicit mode of single-mode workflows
const DefaultMode = "default"

// Binding links a user-facing spec input to a (node_id, field) location in the
// UI graph. Field is either "widget_N" (positional widget slot) or a named
// input field. Map optionally remaps the bound value per mode.
type Binding struct {
	NodeID string         `json:"node_id"`
	Field  string         `json:"field"`
	Map    map[string]any `json:"map,omitempty"`
}

// SpecMeta describes the workflow for catalog listings
type SpecMeta struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// SpecMode is a named variant of a workflow
type SpecMode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TextInput is a prose input bound into the graph
type TextInput struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Required bool     `json:"required,omitempty"`
	Default  string   `json:"default,omitempty"`
	Binding  *Binding `json:"binding"`
}

// ParamInput is a typed scalar input bound into the graph
type ParamInput struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Type    string `json:"type"` // int | float | bool | text
	Default any    `json:"default,omitempty"`
	Choices []any  `json:"choices,omitempty"`
	View    string `json:"view,omitempty"` // view | hidden | no_view

	// Optional named input field to mirror the value into, alongside the
	// positional binding
	Name string `json:"name,omitempty"`

	Binding *Binding `json:"binding"`
}

// ImageInput is an uploaded binary input bound into the graph
type ImageInput struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Modes   []string `json:"modes,omitempty"`
	Binding *Binding `json:"binding"`
}

// MaskInput is a mask image coupled to a base image input via DependsOn
type MaskInput struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	DependsOn string   `json:"depends_on"`
	Modes     []string `json:"modes,omitempty"`
	Binding   *Binding `json:"binding"`
}

// SpecInputs groups the user-facing inputs of a workflow
type SpecInputs struct {
	Text   []TextInput  `json:"text,omitempty"`
	Params []ParamInput `json:"params,omitempty"`
	Images []ImageInput `json:"images,omitempty"`
	Mask   *MaskInput   `json:"mask,omitempty"`
}

// SpecOutput names a produced artifact and where it comes from
type SpecOutput struct {
	Key     string   `json:"key"`
	Type    string   `json:"type"`
	Binding *Binding `json:"binding,omitempty"`
}

// Spec is the declarative description of a workflow's user-facing surface,
// version 2.0
type Spec struct {
	Version string       `json:"version"`
	Meta    SpecMeta     `json:"meta"`
	Modes   []SpecMode   `json:"modes"`
	Inputs  SpecInputs   `json:"inputs"`
	Outputs []SpecOutput `json:"outputs,omitempty"`
}

// ModeIDs returns the declared mode ids, defaulting to ["default"]
func (s *Spec) ModeIDs() []string {
	if len(s.Modes) == 0 {
		return []string{"default"}
	}
	ids := make([]string, 0, len(s.Modes))
	for _, m := range s.Modes {
		ids = append(ids, m.ID)
	}
	return ids
}

// HasMode reports whether mode is a declared (or implicit default) mode
func (s *Spec) HasMode(mode string) bool {
	for _, id := range s.ModeIDs() {
		if id == mode {
			return true
		}
	}
	return false
}

// Validate checks structural invariants of the spec
func (s *Spec) Validate() error {
	if len(s.Modes) == 0 {
		return fmt.Errorf("spec must declare at least one mode")
	}

	if s.Inputs.Mask != nil {
		found := false
		for _, img := range s.Inputs.Images {
			if img.Key == s.Inputs.Mask.DependsOn {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("mask depends_on %q does not reference an image input", s.Inputs.Mask.DependsOn)
		}
	}

	for _, t := range s.Inputs.Text {
		if t.Binding == nil {
			return fmt.Errorf("text input %q has no binding", t.Key)
		}
	}
	for _, p := range s.Inputs.Params {
		if p.Binding == nil {
			return fmt.Errorf("param input %q has no binding", p.Key)
		}
	}

	return nil
}
