package models

import "time"

// CooldownRecord maps (workflow, cooldown type, target) to an expiry instant.
// TargetID is empty for server-wide cooldowns, else a user or channel id.
// At most one live record exists per key; writes go through the governor's
// atomic reserve primitive only.
type CooldownRecord struct {
	WorkflowID string       `json:"workflow_id"`
	Type       CooldownType `json:"type"`
	TargetID   string       `json:"target_id,omitempty"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

// Live reports whether the record still suppresses dispatch at the given
// instant.
func (r *CooldownRecord) Live(now time.Time) bool {
	return r.ExpiresAt.After(now)
}
