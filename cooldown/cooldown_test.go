package cooldown

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSetAndExpire(t *testing.T) {
	clock := newFakeClock()
	r := New(zerolog.Nop(), WithClock(clock.Now))

	assert.False(t, r.Check("tmdb").OnCooldown)

	require.True(t, r.Set("tmdb", 30*time.Minute, ReasonRateLimited))

	st := r.Check("tmdb")
	assert.True(t, st.OnCooldown)
	assert.Equal(t, ReasonRateLimited, st.Reason)
	assert.Equal(t, 30*time.Minute, st.Remaining)

	clock.Advance(29*time.Minute + 59*time.Second)
	assert.True(t, r.Check("tmdb").OnCooldown)

	clock.Advance(time.Second)
	assert.False(t, r.Check("tmdb").OnCooldown, "cooldown ends when now reaches until")
	assert.Empty(t, r.Active())
}

func TestCooldownNeverShrinks(t *testing.T) {
	clock := newFakeClock()
	r := New(zerolog.Nop(), WithClock(clock.Now))

	require.True(t, r.Set("omdb", 12*time.Hour, ReasonAuthFailed))
	assert.False(t, r.Set("omdb", 30*time.Minute, ReasonRateLimited))

	st := r.Check("omdb")
	assert.Equal(t, ReasonAuthFailed, st.Reason)
	assert.Equal(t, 12*time.Hour, st.Remaining)

	clock.Advance(time.Hour)
	assert.True(t, r.Set("omdb", 12*time.Hour, ReasonAuthFailed), "a later end extends the cooldown")
	assert.Equal(t, 12*time.Hour, r.Check("omdb").Remaining)
}

func TestTransitionReportedOnce(t *testing.T) {
	clock := newFakeClock()
	r := New(zerolog.Nop(), WithClock(clock.Now))

	r.Set("fanart", time.Minute, ReasonRateLimited)

	assert.True(t, r.Check("fanart").Changed)
	assert.False(t, r.Check("fanart").Changed)
	assert.False(t, r.Check("fanart").Changed)

	clock.Advance(time.Minute)

	st := r.Check("fanart")
	assert.False(t, st.OnCooldown)
	assert.True(t, st.Changed)
	assert.False(t, r.Check("fanart").Changed)

	assert.False(t, r.Check("never-seen").Changed)
}

func TestSnapshotRestore(t *testing.T) {
	clock := newFakeClock()
	r := New(zerolog.Nop(), WithClock(clock.Now))
	r.Set("tmdb", time.Hour, ReasonRateLimited)
	r.Set("tvdb", time.Minute, ReasonAuthFailed)

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	clock.Advance(2 * time.Minute)

	restored := New(zerolog.Nop(), WithClock(clock.Now))
	restored.Restore(snap)

	active := restored.Active()
	require.Len(t, active, 1, "expired entries are dropped on restore")
	assert.Equal(t, "tmdb", active[0].Provider)
	assert.Equal(t, ReasonRateLimited, active[0].Reason)
}

func TestClear(t *testing.T) {
	r := New(zerolog.Nop())
	r.Set("tmdb", time.Hour, ReasonRateLimited)
	r.Clear("tmdb")
	assert.False(t, r.Check("tmdb").OnCooldown)
}
