// Package health probes the worker fleet and maintains node liveness.
package health

import (
	"context"
	"time"

	"github.com/pixeon/renderplane/cmd/controlplane/repository"
	"github.com/pixeon/renderplane/common/clients"
	"github.com/pixeon/renderplane/common/config"
	"github.com/pixeon/renderplane/common/logger"
)

// Loop probes every known node periodically. A successful probe refreshes
// last_seen and reactivates the node; a node unseen for longer than
// DeadAfter is deactivated. Only this loop writes last_seen.
type Loop struct {
	nodes  *repository.NodeRepository
	worker *clients.WorkerClient
	cfg    config.HealthConfig
	log    *logger.Logger
}

func NewLoop(nodes *repository.NodeRepository, worker *clients.WorkerClient, cfg config.HealthConfig, log *logger.Logger) *Loop {
	return &Loop{nodes: nodes, worker: worker, cfg: cfg, log: log}
}

// Run blocks until ctx is canceled, probing every Interval.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.log.Info("health loop started", "interval", l.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			l.log.Info("health loop stopped")
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce probes every node a single time. Also invoked by the admin
// healthcheck endpoint.
func (l *Loop) RunOnce(ctx context.Context) {
	nodes, err := l.nodes.List(ctx)
	if err != nil {
		l.log.Error("health loop failed to list nodes", "error", err)
		return
	}

	for _, node := range nodes {
		probeCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
		err := l.worker.Ping(probeCtx, node.BaseURL)
		cancel()

		if err == nil {
			if merr := l.nodes.MarkSeen(ctx, node.ID); merr != nil {
				l.log.Error("failed to mark node seen", "node_id", node.ID, "error", merr)
			}
			continue
		}

		l.log.Warn("node probe failed", "node_id", node.ID, "base_url", node.BaseURL, "error", err)

		if node.IsActive && node.LastSeen != nil && time.Since(*node.LastSeen) > l.cfg.DeadAfter {
			if derr := l.nodes.Deactivate(ctx, node.ID); derr != nil {
				l.log.Error("failed to deactivate node", "node_id", node.ID, "error", derr)
			} else {
				l.log.Warn("node deactivated", "node_id", node.ID, "unseen_for", time.Since(*node.LastSeen))
			}
		}
	}
}
