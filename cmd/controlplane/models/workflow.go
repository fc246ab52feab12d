package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkflowDefinition is an authored workflow: the UI graph plus the declarative
// spec describing user-facing inputs and their bindings into the graph.
// Maps to: workflow_definition table
type WorkflowDefinition struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Slug     string    `db:"slug" json:"slug"`
	Name     string    `db:"name" json:"name"`
	Category string    `db:"category" json:"category"`
	Version  int       `db:"version" json:"version"`

	IsActive     bool `db:"is_active" json:"is_active"`
	RequiresMask bool `db:"requires_mask" json:"requires_mask"`

	// Authoring artifact: node/link graph as exported by the UI (JSONB)
	UIGraph json.RawMessage `db:"ui_graph" json:"ui_graph,omitempty"`

	// Declarative input spec, version 2.0 (JSONB)
	Spec *Spec `db:"spec" json:"spec,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
