package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyManagerRotatesOnQuotaExceeded(t *testing.T) {
	m := NewYouTubeKeyManager([]string{"key-1", "key-2", "key-3"})

	key, ok := m.CurrentKey()
	require.True(t, ok)
	assert.Equal(t, "key-1", key)

	m.MarkQuotaExceeded("quota exceeded for today")
	key, ok = m.RotateToNextKey()
	require.True(t, ok)
	assert.Equal(t, "key-2", key)

	statuses := m.KeyStatuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, KeyQuotaExceeded, statuses[0].Status)
	assert.Equal(t, KeyActive, statuses[1].Status)

	// 后续请求直接用 key-2，不需要运维介入
	key, ok = m.CurrentKey()
	require.True(t, ok)
	assert.Equal(t, "key-2", key)
}

func TestKeyManagerErrorThreshold(t *testing.T) {
	m := NewYouTubeKeyManager([]string{"only-key"})

	m.MarkError("bad response")
	m.MarkError("bad response")
	assert.True(t, m.HasActiveKeys(), "低于阈值不应降级")

	m.MarkError("bad response")
	assert.False(t, m.HasActiveKeys())

	statuses := m.KeyStatuses()
	assert.Equal(t, KeyError, statuses[0].Status)
	assert.Equal(t, 3, statuses[0].ErrorCount)

	_, ok := m.CurrentKey()
	assert.False(t, ok)
	_, ok = m.RotateToNextKey()
	assert.False(t, ok)
}

func TestKeyManagerStatusesAreRedacted(t *testing.T) {
	m := NewYouTubeKeyManager([]string{"secret-value-1", "secret-value-2"})

	for _, view := range m.KeyStatuses() {
		assert.NotContains(t, view.Label, "secret-value")
		assert.NotContains(t, view.LastError, "secret-value")
	}
	assert.Equal(t, "YOUTUBE_API_KEY", m.KeyStatuses()[0].Label)
	assert.Equal(t, "YOUTUBE_API_KEY_2", m.KeyStatuses()[1].Label)
}

func TestKeyManagerReset(t *testing.T) {
	m := NewYouTubeKeyManager([]string{"key-1", "key-2"})

	m.MarkQuotaExceeded("quota")
	_, _ = m.RotateToNextKey()
	m.MarkQuotaExceeded("quota")
	assert.False(t, m.HasActiveKeys())

	require.NoError(t, m.ResetKey(0))
	assert.True(t, m.HasActiveKeys())
	key, ok := m.CurrentKey()
	require.True(t, ok)
	assert.Equal(t, "key-1", key)

	assert.Error(t, m.ResetKey(5))

	m.MarkQuotaExceeded("quota")
	m.ResetAllKeys()
	for _, view := range m.KeyStatuses() {
		assert.Equal(t, KeyActive, view.Status)
		assert.Zero(t, view.ErrorCount)
	}
}

func TestKeyManagerSkipsEmptyKeys(t *testing.T) {
	m := NewYouTubeKeyManager([]string{"", "key-2", ""})

	statuses := m.KeyStatuses()
	require.Len(t, statuses, 1)

	key, ok := m.CurrentKey()
	require.True(t, ok)
	assert.Equal(t, "key-2", key)
}
