// Package progress tracks per-prompt execution progress streamed from
// worker nodes over their websocket endpoint.
package progress

import (
	"sync"
	"time"
)

// Progress status values. Progress is advisory: a dead stream never fails
// the job, it only stops updating.
const (
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusError   = "ERROR"
)

// Progress is the latest known state of one prompt on one node.
type Progress struct {
	PromptID  string   `json:"prompt_id"`
	NodeID    string   `json:"node_id"`
	Percent   float64  `json:"percent"`
	Value     *float64 `json:"value"`
	Max       *float64 `json:"max"`
	Status    string   `json:"status"`
	UpdatedAt int64    `json:"updated_at"`
	Message   string   `json:"message,omitempty"`
}

// Registry holds progress per prompt_id. It replaces a process-global map:
// one instance is created at startup and threaded through the scheduler
// and the HTTP handlers.
type Registry struct {
	mu       sync.Mutex
	progress map[string]Progress
	tracking map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		progress: make(map[string]Progress),
		tracking: make(map[string]bool),
	}
}

// Get returns the latest progress for a prompt, if any.
func (r *Registry) Get(promptID string) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progress[promptID]
	return p, ok
}

// Set stores the latest progress for a prompt.
func (r *Registry) Set(p Progress) {
	p.UpdatedAt = time.Now().Unix()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[p.PromptID] = p
}

// Clear drops progress state for a prompt after finalization.
func (r *Registry) Clear(promptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.progress, promptID)
	delete(r.tracking, promptID)
}

// claim reserves tracking for a prompt. Returns false when a tracker is
// already running so at most one stream exists per prompt.
func (r *Registry) claim(promptID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracking[promptID] {
		return false
	}
	r.tracking[promptID] = true
	return true
}

// release marks a tracker as finished so a later dispatch may restart it.
func (r *Registry) release(promptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tracking, promptID)
}
