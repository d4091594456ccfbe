package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/domain"
)

// Tracker maintains ephemeral online/offline markers per principal in Redis.
//
// The online marker carries a TTL and is written in a single SET, so the
// disconnect detection (key expiry) is armed atomically with the marker
// itself: there is no window in which a dropped session leaves a stale
// "online" record behind. Sessions keep the marker alive via Heartbeat; a
// missed heartbeat lets the key expire, which reads as offline.
//
// Multiple concurrent sessions of one principal share a single key, so a
// stale session's explicit Offline can clobber a still-active session's
// marker. The next heartbeat repairs it within one TTL.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// offlineRetention keeps the last-changed time of an offline principal
// readable for a while before the record disappears entirely.
const offlineRetention = 24 * time.Hour

// NewTracker builds a tracker over the given Redis client.
func NewTracker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Tracker{client: client, ttl: ttl, logger: logger}
}

func presenceKey(principalID string) string {
	return fmt.Sprintf("presence:%s", principalID)
}

type record struct {
	State       domain.PresenceState `json:"state"`
	LastChanged time.Time            `json:"last_changed"`
}

// Heartbeat marks the principal online and re-arms the expiry.
func (t *Tracker) Heartbeat(ctx context.Context, principalID string) error {
	return t.set(ctx, principalID, domain.PresenceOnline, t.ttl)
}

// Offline records an explicit sign-out.
func (t *Tracker) Offline(ctx context.Context, principalID string) error {
	return t.set(ctx, principalID, domain.PresenceOffline, offlineRetention)
}

func (t *Tracker) set(ctx context.Context, principalID string, state domain.PresenceState, ttl time.Duration) error {
	data, err := json.Marshal(record{State: state, LastChanged: time.Now().UTC()})
	if err != nil {
		return err
	}
	return t.client.Set(ctx, presenceKey(principalID), data, ttl).Err()
}

// Get returns the presence of a principal. A missing or expired marker reads
// as offline, never as an error.
func (t *Tracker) Get(ctx context.Context, principalID string) (domain.Presence, error) {
	presence := domain.Presence{
		PrincipalID: principalID,
		State:       domain.PresenceOffline,
	}

	data, err := t.client.Get(ctx, presenceKey(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return presence, nil
		}
		return presence, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.logger.Warn("malformed presence record", zap.String("principal_id", principalID), zap.Error(err))
		return presence, nil
	}
	presence.State = rec.State
	presence.LastChanged = rec.LastChanged
	return presence, nil
}
