package domain

import "time"

// PresenceState is the ephemeral online/offline flag for a principal.
type PresenceState string

const (
	PresenceOnline  PresenceState = "online"
	PresenceOffline PresenceState = "offline"
)

// Presence is a per-principal record in the realtime store. It is not part
// of durable domain state; a missing record reads as offline.
type Presence struct {
	PrincipalID string        `json:"principal_id"`
	State       PresenceState `json:"state"`
	LastChanged time.Time     `json:"last_changed"`
}
