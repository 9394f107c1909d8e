// Package store persists the settings document and the Jira session
// credentials in two scopes: a persistent one that survives restarts and a
// session one that does not.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
)

// Fixed keys.
const (
	KeyConfig       = "bsqaConfig"
	KeyJiraSession  = "jira_auth"
	KeyChangeMarker = "bsqaThemeChanged"
)

// CredentialStore reads and writes settings. Reads never fail: missing or
// malformed data yields defaults and a debug log line. Writes return their
// errors.
type CredentialStore struct {
	persistent Scope
	session    Scope
	bus        *events.EventBus
	logger     *logging.Logger
	clock      core.Clock

	mu         sync.Mutex
	lastMarker string
}

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithEventBus publishes change events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *CredentialStore) {
		s.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *CredentialStore) {
		s.logger = l
	}
}

// WithClock sets the clock used for change markers.
func WithClock(c core.Clock) Option {
	return func(s *CredentialStore) {
		s.clock = c
	}
}

// New creates a store over the two scopes.
func New(persistent, session Scope, opts ...Option) *CredentialStore {
	s := &CredentialStore{
		persistent: persistent,
		session:    session,
		logger:     logging.NewNop(),
		clock:      core.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithScope("store")
	return s
}

// Persistent returns the persistent scope.
func (s *CredentialStore) Persistent() Scope { return s.persistent }

// Session returns the session scope.
func (s *CredentialStore) Session() Scope { return s.session }

// ReadRaw returns the stored document as top-level keys. It is empty when
// nothing usable is stored.
func (s *CredentialStore) ReadRaw(ctx context.Context) core.RawDocument {
	data, err := s.persistent.Get(ctx, KeyConfig)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logger.Debug("reading stored config failed", "error", err)
		}
		return core.RawDocument{}
	}
	raw, err := core.ParseRaw(data)
	if err != nil {
		s.logger.Debug("stored config is not a JSON object, using defaults", "error", err)
		return core.RawDocument{}
	}
	return raw
}

// ReadConfig returns the stored document with defaults filled in.
func (s *CredentialStore) ReadConfig(ctx context.Context) core.ConfigDocument {
	return core.Decode(s.ReadRaw(ctx))
}

// WriteRaw replaces the stored document without touching the change marker.
// The loader uses it to refresh the local cache after a remote fetch.
func (s *CredentialStore) WriteRaw(ctx context.Context, raw core.RawDocument) error {
	data, err := raw.Bytes()
	if err != nil {
		return core.ErrStorage(core.CodeStorageWrite, "encoding config").WithCause(err)
	}
	return s.persistent.Set(ctx, KeyConfig, data)
}

// WriteConfig stores the outbound form of doc, bumps the change marker and
// publishes config_changed.
func (s *CredentialStore) WriteConfig(ctx context.Context, doc core.ConfigDocument) error {
	out := core.Outbound(doc)
	if err := s.WriteRaw(ctx, core.Encode(out)); err != nil {
		return err
	}
	marker, err := s.bumpMarker(ctx)
	if err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(events.NewConfigChangedEvent(events.SessionIDFromContext(ctx),
			marker, events.OriginLocal, string(out.Preferences.Theme)))
	}
	return nil
}

// ReadJiraSession returns the session credentials, or nil when none are
// stored or they are incomplete.
func (s *CredentialStore) ReadJiraSession(ctx context.Context) *core.JiraSessionCredentials {
	data, err := s.session.Get(ctx, KeyJiraSession)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logger.Debug("reading jira session failed", "error", err)
		}
		return nil
	}
	var creds core.JiraSessionCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		s.logger.Debug("stored jira session is malformed", "error", err)
		return nil
	}
	if !creds.Complete() {
		s.logger.Debug("stored jira session is incomplete")
		return nil
	}
	return &creds
}

// WriteJiraSession stores complete credentials in the session scope.
func (s *CredentialStore) WriteJiraSession(ctx context.Context, creds core.JiraSessionCredentials) error {
	creds = creds.Normalized()
	if !creds.Complete() {
		return core.ErrValidation(core.CodeJiraIncomplete, "jira base URL, email and API token are required")
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return core.ErrStorage(core.CodeStorageWrite, "encoding jira session").WithCause(err)
	}
	if err := s.session.Set(ctx, KeyJiraSession, data); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(events.NewJiraSessionChangedEvent(events.SessionIDFromContext(ctx),
			true, creds.InstanceName(), creds.DisplayName()))
	}
	return nil
}

// ClearJiraSession removes the session credentials.
func (s *CredentialStore) ClearJiraSession(ctx context.Context) error {
	if err := s.session.Delete(ctx, KeyJiraSession); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(events.NewJiraSessionChangedEvent(events.SessionIDFromContext(ctx), false, "", ""))
	}
	return nil
}

// ClearAll wipes the document and the Jira session, then bumps the change
// marker so other processes reload.
func (s *CredentialStore) ClearAll(ctx context.Context) error {
	if err := s.persistent.Delete(ctx, KeyConfig); err != nil {
		return err
	}
	if err := s.session.Delete(ctx, KeyJiraSession); err != nil {
		return err
	}
	marker, err := s.bumpMarker(ctx)
	if err != nil {
		return err
	}
	if s.bus != nil {
		sessionID := events.SessionIDFromContext(ctx)
		s.bus.PublishPriority(events.NewConfigClearedEvent(sessionID, marker))
		s.bus.Publish(events.NewJiraSessionChangedEvent(sessionID, false, "", ""))
	}
	return nil
}

// ChangeMarker returns the stored change marker, or "" when none was ever
// written.
func (s *CredentialStore) ChangeMarker(ctx context.Context) string {
	data, err := s.persistent.Get(ctx, KeyChangeMarker)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logger.Debug("reading change marker failed", "error", err)
		}
		return ""
	}
	return string(data)
}

// LastWrittenMarker is the marker this store wrote most recently.
func (s *CredentialStore) LastWrittenMarker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMarker
}

// Close closes both scopes.
func (s *CredentialStore) Close() error {
	return errors.Join(s.persistent.Close(), s.session.Close())
}

// bumpMarker writes a fresh unix-millis marker, strictly greater than the
// stored one and than any marker this store wrote before. Other writers
// sharing the persistent scope in the same millisecond still move it.
func (s *CredentialStore) bumpMarker(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clock.Now().UnixMilli()
	for _, prev := range []string{s.lastMarker, s.ChangeMarker(ctx)} {
		if n, err := strconv.ParseInt(prev, 10, 64); err == nil && next <= n {
			next = n + 1
		}
	}
	marker := strconv.FormatInt(next, 10)
	if err := s.persistent.Set(ctx, KeyChangeMarker, []byte(marker)); err != nil {
		return "", err
	}
	s.lastMarker = marker
	return marker, nil
}
