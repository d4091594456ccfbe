package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/domain"
)

func newTestTracker(t *testing.T, ttl time.Duration) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTracker(client, ttl, zap.NewNop()), mr
}

func TestHeartbeatMarksOnline(t *testing.T) {
	tracker, _ := newTestTracker(t, 30*time.Second)

	require.NoError(t, tracker.Heartbeat(context.Background(), "user-1"))

	presence, err := tracker.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, presence.State)
	assert.Equal(t, "user-1", presence.PrincipalID)
	assert.False(t, presence.LastChanged.IsZero())
}

func TestMissedHeartbeatExpiresToOffline(t *testing.T) {
	tracker, mr := newTestTracker(t, 30*time.Second)

	require.NoError(t, tracker.Heartbeat(context.Background(), "user-1"))
	mr.FastForward(31 * time.Second)

	presence, err := tracker.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, presence.State)
}

func TestHeartbeatReArmsExpiry(t *testing.T) {
	tracker, mr := newTestTracker(t, 30*time.Second)

	require.NoError(t, tracker.Heartbeat(context.Background(), "user-1"))
	mr.FastForward(20 * time.Second)
	require.NoError(t, tracker.Heartbeat(context.Background(), "user-1"))
	mr.FastForward(20 * time.Second)

	presence, err := tracker.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, presence.State)
}

func TestExplicitOffline(t *testing.T) {
	tracker, _ := newTestTracker(t, 30*time.Second)

	require.NoError(t, tracker.Heartbeat(context.Background(), "user-1"))
	require.NoError(t, tracker.Offline(context.Background(), "user-1"))

	presence, err := tracker.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, presence.State)
	assert.False(t, presence.LastChanged.IsZero())
}

func TestUnknownPrincipalReadsOffline(t *testing.T) {
	tracker, _ := newTestTracker(t, 30*time.Second)

	presence, err := tracker.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, presence.State)
	assert.True(t, presence.LastChanged.IsZero())
}

func TestMalformedRecordReadsOffline(t *testing.T) {
	tracker, mr := newTestTracker(t, 30*time.Second)

	require.NoError(t, mr.Set("presence:user-1", "{not json"))

	presence, err := tracker.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, presence.State)
}
