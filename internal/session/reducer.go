// Package session holds the settings form: a pure reducer over form state
// and a ConfigFormSession that runs the reducer's effects against the
// stores and the backend.
package session

import (
	"fmt"

	"github.com/hugo-lorenzo-mato/bsqa/internal/backup"
	"github.com/hugo-lorenzo-mato/bsqa/internal/cascade"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/dirty"
	"github.com/hugo-lorenzo-mato/bsqa/internal/merge"
)

var registry = core.DefaultRegistry()

// State is the form at one point in time. Reduce never mutates a State it
// was given.
type State struct {
	Document   core.ConfigDocument
	Enablement cascade.Enablement
	Shadow     core.ShadowValues
	Fields     cascade.FieldStates
	Guard      dirty.Guard
	Issues     core.Issues
	Catalog    core.AnalysisCatalog
	LastExport *backup.Artifact
}

// NewState is the form right after loading doc.
func NewState(doc core.ConfigDocument, catalog core.AnalysisCatalog) State {
	res := cascade.Apply(registry, doc, nil, nil)
	return State{
		Document:   res.Document,
		Enablement: res.Enablement,
		Shadow:     res.Shadow,
		Fields:     res.States,
		Guard:      dirty.NewGuard(dirty.Snapshot(res.Document)),
		Issues:     core.ValidateDocument(res.Document, catalog),
		Catalog:    catalog,
	}
}

// Dirty reports unsaved changes.
func (s State) Dirty() bool { return s.Guard.Dirty() }

// Event is an input to Reduce.
type Event interface {
	eventName() string
}

// Loaded replaces the form with a freshly loaded document.
type Loaded struct {
	Document core.ConfigDocument
	Catalog  core.AnalysisCatalog
}

// FieldChanged is an edit of one field.
type FieldChanged struct {
	Field core.FieldID
	Value any
}

// ToggleIntegration flips a block's enable switch.
type ToggleIntegration struct {
	Integration core.Integration
	Enabled     bool
}

// Save validates and persists the form.
type Save struct{}

// Import replaces the form with the content of an export file.
type Import struct {
	Data []byte
}

// Export serializes the form.
type Export struct {
	Options backup.ExportOptions
}

// Cleared resets the form after every stored setting was wiped.
type Cleared struct{}

// JiraAuthenticated records a successful Jira connection test.
type JiraAuthenticated struct {
	Credentials core.JiraSessionCredentials
}

// JiraLoggedOut forgets the Jira identity.
type JiraLoggedOut struct{}

func (Loaded) eventName() string            { return "loaded" }
func (FieldChanged) eventName() string      { return "field_changed" }
func (ToggleIntegration) eventName() string { return "toggle_integration" }
func (Save) eventName() string              { return "save" }
func (Import) eventName() string            { return "import" }
func (Export) eventName() string            { return "export" }
func (Cleared) eventName() string           { return "cleared" }
func (JiraAuthenticated) eventName() string { return "jira_authenticated" }
func (JiraLoggedOut) eventName() string     { return "jira_logged_out" }

// Effect is a side effect Reduce asks its caller to perform.
type Effect interface {
	effectName() string
}

// PersistConfig writes the document to the persistent scope.
type PersistConfig struct {
	Document core.ConfigDocument
}

// PersistJiraSession writes the Jira identity to the session scope.
type PersistJiraSession struct {
	Credentials core.JiraSessionCredentials
}

// ClearJiraSession removes the Jira identity from the session scope.
type ClearJiraSession struct{}

// ClearStored wipes both scopes.
type ClearStored struct{}

// Download hands an artifact to the user.
type Download struct {
	Artifact backup.Artifact
}

// CopyToClipboard copies an artifact's content.
type CopyToClipboard struct {
	Artifact backup.Artifact
}

// PushRemote sends the saved document to the backend, best effort.
type PushRemote struct {
	Document core.ConfigDocument
}

func (PersistConfig) effectName() string      { return "persist_config" }
func (PersistJiraSession) effectName() string { return "persist_jira_session" }
func (ClearJiraSession) effectName() string   { return "clear_jira_session" }
func (ClearStored) effectName() string        { return "clear_stored" }
func (Download) effectName() string           { return "download" }
func (CopyToClipboard) effectName() string    { return "copy_to_clipboard" }
func (PushRemote) effectName() string         { return "push_remote" }

// Reduce applies ev to s. On error the returned State is s, except for Save
// which records the validation issues that blocked it.
func Reduce(s State, ev Event) (State, []Effect, error) {
	switch ev := ev.(type) {
	case Loaded:
		return NewState(ev.Document, ev.Catalog), nil, nil

	case FieldChanged:
		return s.changeField(ev.Field, ev.Value)

	case ToggleIntegration:
		if _, err := core.ParseIntegration(string(ev.Integration)); err != nil {
			return s, nil, err
		}
		doc := s.Document
		doc.SetEnabled(ev.Integration, ev.Enabled)
		return s.apply(doc), nil, nil

	case Save:
		return s.save()

	case Import:
		imp, err := backup.Import(ev.Data)
		if err != nil {
			return s, nil, err
		}
		next := NewState(imp.Document, s.Catalog)
		next.LastExport = s.LastExport
		var effects []Effect
		if imp.JiraSession != nil {
			effects = append(effects, PersistJiraSession{Credentials: *imp.JiraSession})
		}
		effects = append(effects, PersistConfig{Document: next.Document})
		return next, effects, nil

	case Export:
		a, err := backup.Export(s.Document, ev.Options)
		if err != nil {
			return s, nil, err
		}
		s.LastExport = &a
		effects := []Effect{Download{Artifact: a}}
		if s.Document.Preferences.AutoCopy {
			effects = append(effects, CopyToClipboard{Artifact: a})
		}
		return s, effects, nil

	case Cleared:
		return NewState(core.DefaultDocument(), s.Catalog), []Effect{ClearStored{}}, nil

	case JiraAuthenticated:
		creds := ev.Credentials.Normalized()
		if !creds.Complete() {
			return s, nil, core.ErrValidation(core.CodeJiraIncomplete, "fill in the Jira URL, email and API token")
		}
		return s.apply(merge.OverlayJiraSession(s.Document, creds)), []Effect{PersistJiraSession{Credentials: creds}}, nil

	case JiraLoggedOut:
		doc := s.Document
		doc.Integrations.Jira.BaseURL = ""
		doc.Integrations.Jira.UserEmail = ""
		doc.Integrations.Jira.APIToken = ""
		next := s.apply(doc)
		if saved, ok := next.Shadow[core.IntegrationJira]; ok {
			delete(saved, core.FieldJiraBaseURL)
			delete(saved, core.FieldJiraUserEmail)
			delete(saved, core.FieldJiraAPIToken)
		}
		return next, []Effect{ClearJiraSession{}}, nil
	}
	return s, nil, core.ErrInternal(fmt.Sprintf("unhandled event %T", ev))
}

func (s State) changeField(id core.FieldID, v any) (State, []Effect, error) {
	spec, ok := registry.Lookup(id)
	if !ok {
		return s, nil, core.ErrValidation(core.CodeInvalidField, "unknown field: "+string(id)).
			WithDetail("field", string(id))
	}
	if s.Fields.Disabled(id) {
		return s, nil, core.ErrValidation(core.CodeFieldDisabled,
			fmt.Sprintf("%s is disabled while %s is off", spec.Label, spec.Block)).
			WithDetail("field", string(id))
	}
	doc := s.Document
	if err := registry.Set(&doc, id, v); err != nil {
		return s, nil, err
	}
	return s.apply(doc), nil, nil
}

func (s State) save() (State, []Effect, error) {
	issues := core.ValidateDocument(s.Document, s.Catalog)
	if len(issues) > 0 {
		s.Issues = issues
		return s, nil, issues.AsError()
	}

	s.Issues = nil
	s.Shadow = cascade.DiscardDisabled(s.Shadow, s.Enablement)
	s.Guard = s.Guard.Rebase(dirty.Snapshot(s.Document))

	// The session-scope write goes first: it never moves the change marker,
	// and runLocal can undo it if the persistent write fails.
	var effects []Effect
	if s.Document.Integrations.Jira.Enabled {
		if creds := s.Document.JiraCredentials().Normalized(); creds.Complete() {
			effects = append(effects, PersistJiraSession{Credentials: creds})
		}
	}
	effects = append(effects, PersistConfig{Document: s.Document}, PushRemote{Document: s.Document})
	return s, effects, nil
}

// apply runs the cascade against the previous toggles and recomputes the
// dirty flag and the issues.
func (s State) apply(doc core.ConfigDocument) State {
	res := cascade.Apply(registry, doc, s.Enablement, s.Shadow)
	s.Document = res.Document
	s.Enablement = res.Enablement
	s.Shadow = res.Shadow
	s.Fields = res.States
	s.Guard = s.Guard.Observe(dirty.Snapshot(res.Document))
	s.Issues = core.ValidateDocument(res.Document, s.Catalog)
	return s
}
