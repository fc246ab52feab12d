package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkerNode is one backend graph-execution worker.
// Maps to: worker_node table
type WorkerNode struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`

	BaseURL  string `db:"base_url" json:"base_url"`
	IsActive bool   `db:"is_active" json:"is_active"`

	// Maximum queued+running executions this node accepts
	MaxQueue int `db:"max_queue" json:"max_queue"`
	Priority int `db:"priority" json:"priority"`

	// Updated by the health loop only
	LastSeen  *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// NodeLoad pairs a node with its active execution count for scheduling
type NodeLoad struct {
	Node WorkerNode
	Load int
}
