package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
)

func TestWatcher_CheckIgnoresOwnWrites(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryScope(0)
	local := New(shared, NewMemoryScope(0))
	other := New(shared, NewMemoryScope(0))

	bus := events.New(10)
	defer bus.Close()
	ch := bus.Subscribe(events.TypeConfigChanged)
	w := NewWatcher(local, bus, nil, time.Second)

	assert.False(t, w.Check(ctx), "nothing written yet")

	require.NoError(t, local.WriteConfig(ctx, core.DefaultDocument()))
	assert.False(t, w.Check(ctx), "own write")

	doc := core.DefaultDocument()
	doc.Preferences.Theme = core.ThemeAuto
	require.NoError(t, other.WriteConfig(ctx, doc))
	assert.True(t, w.Check(ctx))
	assert.False(t, w.Check(ctx), "already seen")

	e := receive(t, ch).(events.ConfigChangedEvent)
	assert.Equal(t, events.OriginExternal, e.Origin)
	assert.Equal(t, "auto", e.Theme)
	assert.Equal(t, other.LastWrittenMarker(), e.Marker)
	assert.Empty(t, e.SessionID())
}

func TestWatcher_PollsNonFileBackends(t *testing.T) {
	shared := NewMemoryScope(0)
	local := New(shared, NewMemoryScope(0))
	other := New(shared, NewMemoryScope(0))

	bus := events.New(10)
	defer bus.Close()
	ch := bus.Subscribe(events.TypeConfigChanged)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWatcher(local, bus, nil, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	// Give Run a moment to record the initial marker.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, other.ClearAll(context.Background()))

	e := receive(t, ch).(events.ConfigChangedEvent)
	assert.Equal(t, events.OriginExternal, e.Origin)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestWatcher_FileNotifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	local := New(NewFileScope(path), NewMemoryScope(0))
	other := New(NewFileScope(path), NewMemoryScope(0))
	require.NoError(t, other.WriteConfig(context.Background(), core.DefaultDocument()))

	bus := events.New(10)
	defer bus.Close()
	ch := bus.Subscribe(events.TypeConfigChanged)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewWatcher(local, bus, nil, time.Hour).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	doc := core.DefaultDocument()
	doc.User.Name = "Ana"
	require.NoError(t, other.WriteConfig(context.Background(), doc))

	select {
	case e := <-ch:
		assert.Equal(t, other.LastWrittenMarker(), e.(events.ConfigChangedEvent).Marker)
	case <-time.After(3 * time.Second):
		t.Fatal("no config_changed after external write")
	}
}
