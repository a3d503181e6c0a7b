package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	assert.Empty(t, r.Active(), "new registry should have no notices")

	r.Warn("site-b", "push failed")
	r.Warn("site-a", "push failed too")

	active := r.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "site-a", active[0].SiteID, "notices sorted by site ID")
	assert.Equal(t, "ratewriter_push_failure_site-a", active[0].ID)
	assert.Equal(t, base, active[0].CreatedAt)

	t.Run("warn replaces the existing notice", func(t *testing.T) {
		later := base.Add(time.Hour)
		r.now = func() time.Time { return later }
		r.Warn("site-b", "failed again")

		active := r.Active()
		require.Len(t, active, 2)
		assert.Equal(t, "failed again", active[1].Message)
		assert.Equal(t, later, active[1].CreatedAt)
	})

	t.Run("dismiss is idempotent", func(t *testing.T) {
		r.Dismiss("site-b")
		r.Dismiss("site-b")
		r.Dismiss("never-seen")

		active := r.Active()
		require.Len(t, active, 1)
		assert.Equal(t, "site-a", active[0].SiteID)
	})
}

func TestNotificationID(t *testing.T) {
	assert.Equal(t, "ratewriter_push_failure_123", NotificationID("123"))
	assert.Equal(t, "ratewriter_push_failure", NotificationID(""))
}
