package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
)

// EventBusAdapter bridges settings events to Bubbletea messages. Changes
// made by the editor's own session are filtered out.
type EventBusAdapter struct {
	bus        *events.EventBus
	sessionID  string
	eventCh    <-chan events.Event
	priorityCh <-chan events.Event
	msgCh      chan tea.Msg
	closeCh    chan struct{}
	mu         sync.Mutex
	closed     bool
}

// NewEventBusAdapter creates a new adapter for the session sessionID.
func NewEventBusAdapter(bus *events.EventBus, sessionID string) *EventBusAdapter {
	adapter := &EventBusAdapter{
		bus:        bus,
		sessionID:  sessionID,
		eventCh:    bus.Subscribe(events.TypeConfigChanged),
		priorityCh: bus.SubscribePriority(events.TypeConfigCleared),
		msgCh:      make(chan tea.Msg, 16),
		closeCh:    make(chan struct{}),
	}

	go adapter.run()
	return adapter
}

// MsgChannel returns the channel for Bubbletea to read from.
func (a *EventBusAdapter) MsgChannel() <-chan tea.Msg {
	return a.msgCh
}

// Close shuts down the adapter.
func (a *EventBusAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	close(a.closeCh)
	a.bus.Unsubscribe(a.eventCh)
	a.bus.Unsubscribe(a.priorityCh)
}

func (a *EventBusAdapter) run() {
	defer close(a.msgCh)
	for {
		select {
		case <-a.closeCh:
			return

		case event, ok := <-a.priorityCh:
			if !ok {
				return
			}
			a.handleEvent(event)

		case event, ok := <-a.eventCh:
			if !ok {
				return
			}
			a.handleEvent(event)
		}
	}
}

func (a *EventBusAdapter) handleEvent(event events.Event) {
	msg := a.eventToMsg(event)
	if msg == nil {
		return
	}
	select {
	case a.msgCh <- msg:
	default:
		// The editor reloads on any change; one pending message is enough.
	}
}

func (a *EventBusAdapter) eventToMsg(event events.Event) tea.Msg {
	if a.sessionID != "" && event.SessionID() == a.sessionID {
		return nil
	}
	switch e := event.(type) {
	case events.ConfigChangedEvent:
		return ExternalChangeMsg{Marker: e.Marker}
	case events.ConfigClearedEvent:
		return ExternalChangeMsg{Marker: e.Marker, Cleared: true}
	}
	return nil
}

// waitForEvent reads the next message from the adapter.
func waitForEvent(a *EventBusAdapter) tea.Cmd {
	if a == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-a.MsgChannel()
		if !ok {
			return nil
		}
		return msg
	}
}
