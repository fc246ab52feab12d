package models

import "time"

// Default quota values applied when a limits row is created lazily
const (
	DefaultMaxConcurrentJobs = 1
	DefaultMaxJobsPerDay     = 100
)

// UserLimits holds per-user quota settings.
// Maps to: user_limits table, created lazily with defaults on first query.
type UserLimits struct {
	UserID            string    `db:"user_id" json:"user_id"`
	MaxConcurrentJobs int       `db:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	MaxJobsPerDay     int       `db:"max_jobs_per_day" json:"max_jobs_per_day"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
