package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/bsqa/internal/backup"
	"github.com/hugo-lorenzo-mato/bsqa/internal/cascade"
	"github.com/hugo-lorenzo-mato/bsqa/internal/clip"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/dirty"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
	"github.com/hugo-lorenzo-mato/bsqa/internal/merge"
	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
	"github.com/hugo-lorenzo-mato/bsqa/internal/remote"
)

// ClearMessage is asked before every stored setting is wiped.
const ClearMessage = "Clear every stored setting and credential? This cannot be undone."

const opLoad = "load"

// Store is the local persistence a session writes through.
type Store interface {
	ReadJiraSession(ctx context.Context) *core.JiraSessionCredentials
	WriteConfig(ctx context.Context, doc core.ConfigDocument) error
	WriteJiraSession(ctx context.Context, creds core.JiraSessionCredentials) error
	ClearJiraSession(ctx context.Context) error
	ClearAll(ctx context.Context) error
	ChangeMarker(ctx context.Context) string
}

// Loader produces the merged document a session starts from.
type Loader interface {
	Load(ctx context.Context) merge.Result
}

// Backend is the remote side of a session.
type Backend interface {
	PushConfig(ctx context.Context, doc core.ConfigDocument) error
	PushAPIConfig(ctx context.Context, values map[string]string) error
	TestJiraConnection(ctx context.Context, creds core.JiraSessionCredentials) (*remote.JiraTestResult, error)
	TestAPIConfig(ctx context.Context) (*remote.APITestResult, error)
	AnalysisTypes(ctx context.Context) (core.AnalysisCatalog, error)
}

// Clipboard copies exported text.
type Clipboard interface {
	Copy(text string) (clip.Result, error)
}

// View is the serializable state of a session.
type View struct {
	ID                string              `json:"id"`
	Document          core.ConfigDocument `json:"document"`
	Fields            cascade.FieldStates `json:"fields"`
	Dirty             bool                `json:"dirty"`
	SaveEnabled       bool                `json:"saveEnabled"`
	Issues            core.Issues         `json:"issues,omitempty"`
	Fingerprint       string              `json:"fingerprint"`
	Marker            string              `json:"marker"`
	Remote            bool                `json:"remote"`
	JiraAuthenticated bool                `json:"jiraAuthenticated"`
	Catalog           map[string]string   `json:"analysisTypes"`
}

// SaveOptions tune Save.
type SaveOptions struct {
	// IfMatch, when set, must equal the store's change marker.
	IfMatch string
}

// SaveResult is the outcome of a successful local save.
type SaveResult struct {
	View View `json:"view"`
	// Remote reports whether the backend accepted the document too.
	Remote  bool   `json:"remote"`
	Warning string `json:"warning,omitempty"`
}

// ExportResult is an export plus how it was copied, if it was.
type ExportResult struct {
	Artifact backup.Artifact
	Copied   *clip.Result
}

// ConfigFormSession is one open settings form. Mutations are serialized;
// remote calls run without the lock and their results are dropped when a
// newer call of the same kind was issued meanwhile.
type ConfigFormSession struct {
	id        string
	store     Store
	loader    Loader
	backend   Backend
	confirm   core.ConfirmationPort
	clipboard Clipboard
	bus       *events.EventBus
	logger    *logging.Logger
	clock     core.Clock
	fallback  core.AnalysisCatalog
	gens      *remote.Generations

	mu          sync.Mutex
	state       State
	loaded      bool
	remoteOK    bool
	marker      string
	jiraSession *core.JiraSessionCredentials
}

// Option configures a ConfigFormSession.
type Option func(*ConfigFormSession)

// WithBackend enables remote load, push and connection tests.
func WithBackend(b Backend) Option {
	return func(s *ConfigFormSession) { s.backend = b }
}

// WithConfirmation sets the port asked before leaving a dirty form or
// clearing everything. A port carried by the request context wins.
func WithConfirmation(p core.ConfirmationPort) Option {
	return func(s *ConfigFormSession) { s.confirm = p }
}

// WithClipboard enables copying exports when autoCopy is on.
func WithClipboard(c Clipboard) Option {
	return func(s *ConfigFormSession) { s.clipboard = c }
}

// WithEventBus publishes dirty-state changes.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *ConfigFormSession) { s.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *ConfigFormSession) { s.logger = l }
}

// WithClock sets the clock used for export timestamps.
func WithClock(c core.Clock) Option {
	return func(s *ConfigFormSession) { s.clock = c }
}

// WithCatalog sets the analysis types used when the backend has none.
func WithCatalog(c core.AnalysisCatalog) Option {
	return func(s *ConfigFormSession) { s.fallback = c }
}

// WithID fixes the session id.
func WithID(id string) Option {
	return func(s *ConfigFormSession) { s.id = id }
}

// New creates a session. Call Load before anything else.
func New(store Store, loader Loader, opts ...Option) *ConfigFormSession {
	s := &ConfigFormSession{
		id:       uuid.NewString(),
		store:    store,
		loader:   loader,
		logger:   logging.NewNop(),
		clock:    core.SystemClock{},
		fallback: core.DefaultAnalysisCatalog(),
		gens:     remote.NewGenerations(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithSession(s.id)
	s.state = NewState(core.DefaultDocument(), s.fallback)
	return s
}

// ID returns the session id.
func (s *ConfigFormSession) ID() string { return s.id }

// Loaded reports whether Load has completed.
func (s *ConfigFormSession) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// State returns the current form state. Treat its maps as read-only.
func (s *ConfigFormSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the serializable state.
func (s *ConfigFormSession) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Load reads the merged document and the analysis catalog, then resets
// the form to them. It fails only when superseded by a newer Load.
func (s *ConfigFormSession) Load(ctx context.Context) (View, error) {
	gen := s.gens.Next(opLoad)

	var (
		res     merge.Result
		catalog core.AnalysisCatalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res = s.loader.Load(gctx)
		return nil
	})
	g.Go(func() error {
		catalog = s.fetchCatalog(gctx)
		return nil
	})
	_ = g.Wait()
	marker := s.store.ChangeMarker(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gens.Check(opLoad, gen); err != nil {
		return s.viewLocked(), err
	}
	wasDirty := s.state.Dirty()
	s.state = NewState(res.Document, catalog)
	s.loaded = true
	s.remoteOK = res.Remote
	s.marker = marker
	s.jiraSession = res.JiraSession
	s.notifyDirty(wasDirty)
	s.logger.Debug("form loaded", "remote", res.Remote, "marker", marker)
	return s.viewLocked(), nil
}

func (s *ConfigFormSession) fetchCatalog(ctx context.Context) core.AnalysisCatalog {
	if s.backend == nil {
		return s.fallback
	}
	catalog, err := s.backend.AnalysisTypes(ctx)
	if err != nil {
		s.logger.Debug("analysis types unavailable, using fallback", "error", err)
		return s.fallback
	}
	return catalog
}

// Change edits one field.
func (s *ConfigFormSession) Change(ctx context.Context, id core.FieldID, value any) (View, error) {
	return s.dispatch(ctx, FieldChanged{Field: id, Value: value})
}

// Toggle flips an integration block.
func (s *ConfigFormSession) Toggle(ctx context.Context, in core.Integration, enabled bool) (View, error) {
	return s.dispatch(ctx, ToggleIntegration{Integration: in, Enabled: enabled})
}

// LogoutJira forgets the Jira identity of this browser session.
func (s *ConfigFormSession) LogoutJira(ctx context.Context) (View, error) {
	return s.dispatch(ctx, JiraLoggedOut{})
}

// Save validates and persists the form, then pushes it to the backend. A
// failed push leaves the local save in place and is reported as a warning.
func (s *ConfigFormSession) Save(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	ctx = events.WithSessionID(ctx, s.id)

	s.mu.Lock()
	if opts.IfMatch != "" {
		if current := s.store.ChangeMarker(ctx); current != opts.IfMatch {
			s.mu.Unlock()
			metrics.SavesTotal.WithLabelValues("conflict").Inc()
			return nil, core.ErrConflict(core.CodeStaleDocument,
				"settings were changed elsewhere; reload the form or force the save").
				WithDetail("marker", current)
		}
	}

	next, effects, err := Reduce(s.state, Save{})
	if err != nil {
		wasDirty := s.state.Dirty()
		s.state = next
		s.notifyDirty(wasDirty)
		s.mu.Unlock()
		metrics.SavesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	deferred, err := s.runLocal(ctx, effects)
	if err != nil {
		s.mu.Unlock()
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	wasDirty := s.state.Dirty()
	s.state = next
	s.marker = s.store.ChangeMarker(ctx)
	s.notifyDirty(wasDirty)
	s.mu.Unlock()

	result := &SaveResult{}
	for _, eff := range deferred {
		if push, ok := eff.(PushRemote); ok {
			result.Remote, result.Warning = s.push(ctx, push.Document)
		}
	}
	if result.Remote {
		metrics.SavesTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.SavesTotal.WithLabelValues("local_only").Inc()
	}
	result.View = s.View()
	return result, nil
}

func (s *ConfigFormSession) push(ctx context.Context, doc core.ConfigDocument) (bool, string) {
	if s.backend == nil {
		return false, ""
	}
	gen := s.gens.Next(remote.OpPushConfig)
	err := s.backend.PushConfig(ctx, doc)
	if err == nil {
		err = s.backend.PushAPIConfig(ctx, core.APIConfigFromDocument(doc))
	}
	if staleErr := s.gens.Check(remote.OpPushConfig, gen); staleErr != nil {
		return err == nil, ""
	}
	if err != nil {
		s.logger.Warn("backend push failed, settings saved locally", "error", err)
		return false, "saved locally; the backend could not be updated: " + err.Error()
	}
	s.mu.Lock()
	s.remoteOK = true
	s.mu.Unlock()
	return true, ""
}

// Import replaces the form with an export file and persists it at once.
// Nothing changes when the file is rejected.
func (s *ConfigFormSession) Import(ctx context.Context, data []byte) (View, error) {
	view, err := s.dispatch(ctx, Import{Data: data})
	if err != nil {
		metrics.ImportsTotal.WithLabelValues("invalid").Inc()
		return view, err
	}
	metrics.ImportsTotal.WithLabelValues("ok").Inc()
	return view, nil
}

// Export serializes the form. Jira credentials missing from the form come
// from the session; with autoCopy on, the artifact is also copied.
func (s *ConfigFormSession) Export(ctx context.Context, opts backup.ExportOptions) (*ExportResult, error) {
	s.mu.Lock()
	if opts.Session == nil {
		opts.Session = s.jiraSession
	}
	if opts.Now.IsZero() {
		opts.Now = s.clock.Now()
	}
	next, effects, err := Reduce(s.state, Export{Options: opts})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = next
	s.mu.Unlock()

	out := &ExportResult{}
	for _, eff := range effects {
		switch e := eff.(type) {
		case Download:
			out.Artifact = e.Artifact
		case CopyToClipboard:
			if s.clipboard == nil {
				continue
			}
			res, err := s.clipboard.Copy(string(e.Artifact.Data))
			if err != nil {
				s.logger.Debug("copying export failed", "error", err)
				continue
			}
			out.Copied = &res
		}
	}
	return out, nil
}

// Navigate asks for confirmation before leaving a dirty form for target.
func (s *ConfigFormSession) Navigate(ctx context.Context, target dirty.Target) error {
	s.mu.Lock()
	guard := s.state.Guard
	s.mu.Unlock()
	return guard.Navigate(ctx, target, s.confirm)
}

// BeforeUnload returns the warning for closing a dirty form, or "".
func (s *ConfigFormSession) BeforeUnload() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Guard.BeforeUnload()
}

// ClearAll asks for confirmation, wipes both scopes and resets the form.
func (s *ConfigFormSession) ClearAll(ctx context.Context) (View, error) {
	port := s.confirm
	if p, ok := core.ConfirmationFromContext(ctx); ok {
		port = p
	}
	if port == nil {
		return s.View(), core.ErrConfirmationRequired
	}
	ok, err := port.Confirm(ctx, ClearMessage)
	if err != nil {
		return s.View(), err
	}
	if !ok {
		return s.View(), core.ErrClearCancelled
	}
	return s.dispatch(ctx, Cleared{})
}

// TestJiraConnection checks the form's Jira credentials (or the session's
// when the form has none) against the backend. Success stores them as the
// session identity and fills empty user fields.
func (s *ConfigFormSession) TestJiraConnection(ctx context.Context) (*remote.JiraTestResult, error) {
	if s.backend == nil {
		return nil, core.ErrNetwork("no backend configured")
	}

	s.mu.Lock()
	if !s.state.Document.Integrations.Jira.Enabled {
		s.mu.Unlock()
		return nil, core.ErrValidation(core.CodeFieldDisabled, "enable Jira before testing the connection")
	}
	creds := s.state.Document.JiraCredentials().Normalized()
	if !creds.Complete() && s.jiraSession != nil {
		creds = *s.jiraSession
	}
	s.mu.Unlock()

	gen := s.gens.Next(remote.OpTestJira)
	res, err := s.backend.TestJiraConnection(ctx, creds)
	if staleErr := s.gens.Check(remote.OpTestJira, gen); staleErr != nil {
		return nil, staleErr
	}
	if err != nil {
		return res, err
	}

	if res.User != nil {
		creds.UserDisplayName = res.User.DisplayName
		creds.UserEmail = res.User.EmailAddress
	}
	if _, err := s.dispatch(ctx, JiraAuthenticated{Credentials: creds}); err != nil {
		return res, err
	}
	return res, nil
}

// TestAIConfig sends the enabled AI credentials to the backend and asks it
// to check them.
func (s *ConfigFormSession) TestAIConfig(ctx context.Context) (*remote.APITestResult, error) {
	if s.backend == nil {
		return nil, core.ErrNetwork("no backend configured")
	}
	s.mu.Lock()
	values := core.APIConfigFromDocument(s.state.Document)
	s.mu.Unlock()
	if len(values) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidField, "enable OpenAI or StackSpot and fill in its credentials first")
	}

	gen := s.gens.Next(remote.OpTestAPIConfig)
	err := s.backend.PushAPIConfig(ctx, values)
	var res *remote.APITestResult
	if err == nil {
		res, err = s.backend.TestAPIConfig(ctx)
	}
	if staleErr := s.gens.Check(remote.OpTestAPIConfig, gen); staleErr != nil {
		return nil, staleErr
	}
	return res, err
}

// dispatch reduces ev, runs its local effects and commits the new state.
func (s *ConfigFormSession) dispatch(ctx context.Context, ev Event) (View, error) {
	ctx = events.WithSessionID(ctx, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	next, effects, err := Reduce(s.state, ev)
	if err != nil {
		return s.viewLocked(), err
	}
	if _, err := s.runLocal(ctx, effects); err != nil {
		return s.viewLocked(), err
	}
	wasDirty := s.state.Dirty()
	s.state = next
	if len(effects) > 0 {
		s.marker = s.store.ChangeMarker(ctx)
	}
	s.notifyDirty(wasDirty)
	return s.viewLocked(), nil
}

// runLocal performs the storage effects in order and returns the rest. When
// an effect fails after the Jira session was written, the previous session
// credentials are put back so the scopes are not left half-updated.
func (s *ConfigFormSession) runLocal(ctx context.Context, effects []Effect) ([]Effect, error) {
	var deferred []Effect
	prevSession, sessionWritten := s.jiraSession, false
	for _, eff := range effects {
		var err error
		switch e := eff.(type) {
		case PersistConfig:
			err = s.store.WriteConfig(ctx, e.Document)
		case PersistJiraSession:
			if err = s.store.WriteJiraSession(ctx, e.Credentials); err == nil {
				creds := e.Credentials
				s.jiraSession = &creds
				sessionWritten = true
			}
		case ClearJiraSession:
			if err = s.store.ClearJiraSession(ctx); err == nil {
				s.jiraSession = nil
			}
		case ClearStored:
			if err = s.store.ClearAll(ctx); err == nil {
				s.jiraSession = nil
			}
		default:
			deferred = append(deferred, eff)
		}
		if err != nil {
			if sessionWritten {
				s.restoreJiraSession(ctx, prevSession)
			}
			return nil, fmt.Errorf("%s: %w", eff.effectName(), err)
		}
	}
	return deferred, nil
}

func (s *ConfigFormSession) restoreJiraSession(ctx context.Context, prev *core.JiraSessionCredentials) {
	var err error
	if prev == nil {
		err = s.store.ClearJiraSession(ctx)
	} else {
		err = s.store.WriteJiraSession(ctx, *prev)
	}
	if err != nil {
		s.logger.Warn("restoring jira session failed", "error", err)
	}
	s.jiraSession = prev
}

func (s *ConfigFormSession) notifyDirty(wasDirty bool) {
	if s.bus == nil || wasDirty == s.state.Dirty() {
		return
	}
	s.bus.Publish(events.NewDirtyChangedEvent(s.id, s.state.Dirty()))
}

func (s *ConfigFormSession) viewLocked() View {
	return View{
		ID:                s.id,
		Document:          s.state.Document,
		Fields:            s.state.Fields,
		Dirty:             s.state.Dirty(),
		SaveEnabled:       s.state.Guard.SaveEnabled(),
		Issues:            s.state.Issues,
		Fingerprint:       dirty.Fingerprint(dirty.Snapshot(s.state.Document)),
		Marker:            s.marker,
		Remote:            s.remoteOK,
		JiraAuthenticated: s.jiraSession != nil,
		Catalog:           s.state.Catalog,
	}
}
