package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenter_TransientExpires(t *testing.T) {
	c := NewCenter(20 * time.Millisecond)
	c.Notify("", "Permission denied", false)

	require.Len(t, c.Active(), 1)

	assert.Eventually(t, func() bool {
		return len(c.Active()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCenter_PersistentStaysUntilDismissed(t *testing.T) {
	c := NewCenter(20 * time.Millisecond)
	c.Notify("Network error", "Unable to reach the server", true)
	c.Notify("", "Request timed out", false)

	time.Sleep(60 * time.Millisecond)

	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Network error", active[0].Title)
	assert.True(t, active[0].Persistent)

	assert.True(t, c.Dismiss(active[0].ID))
	assert.False(t, c.Dismiss(active[0].ID))
	assert.Empty(t, c.Active())
}

func TestCenter_ActiveOrderedByID(t *testing.T) {
	c := NewCenter(time.Minute)
	for _, m := range []string{"a", "b", "c", "d"} {
		c.Notify("", m, false)
	}

	var msgs []string
	for _, n := range c.Active() {
		msgs = append(msgs, n.Message)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, msgs)
}

func TestCenter_Subscribe(t *testing.T) {
	c := NewCenter(0)
	var got []Notice
	c.Subscribe(func(n Notice) { got = append(got, n) })

	c.Notify("System error", "Bad gateway", true)

	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, "Bad gateway", got[0].Message)
}

func TestCenter_DismissAll(t *testing.T) {
	c := NewCenter(time.Minute)
	c.Notify("", "x", false)
	c.Notify("", "y", true)

	c.DismissAll()
	assert.Empty(t, c.Active())
}
