package model

import "time"

// Artifact is a build output produced by a successful publish stage.
// Artifacts are write-once: the blob and this record are created together
// and removed together when the retention window lapses.
type Artifact struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	StorageKey string    `json:"storage_key"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the artifact's retention window has lapsed at now.
func (a *Artifact) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
