package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldID identifies a tracked form field.
type FieldID string

const (
	FieldUserName    FieldID = "userName"
	FieldUserEmail   FieldID = "userEmail"
	FieldUserCompany FieldID = "userCompany"

	FieldDefaultAI          FieldID = "defaultAI"
	FieldDefaultAnalyseType FieldID = "defaultAnalyseType"
	FieldAutoCopy           FieldID = "autoCopy"
	FieldClearAfterSuccess  FieldID = "clearAfterSuccess"
	FieldTheme              FieldID = "theme"

	FieldJiraEnabled            FieldID = "jiraEnabled"
	FieldJiraBaseURL            FieldID = "jiraBaseUrl"
	FieldJiraUserEmail          FieldID = "jiraUserEmail"
	FieldJiraAPIToken           FieldID = "jiraApiToken"
	FieldJiraSubtaskIssueTypeID FieldID = "jiraSubtaskIssueTypeId"
	FieldJiraBugIssueTypeID     FieldID = "jiraBugIssueTypeId"
	FieldJiraSubBugIssueTypeID  FieldID = "jiraSubBugIssueTypeId"
	FieldJiraRequestTimeout     FieldID = "jiraRequestTimeout"

	FieldOpenAIEnabled   FieldID = "openaiEnabled"
	FieldOpenAIMaxTokens FieldID = "maxTokens"
	FieldOpenAIAPIKey    FieldID = "openaiApiKey"

	FieldStackSpotEnabled      FieldID = "stackspotEnabled"
	FieldStackSpotStreaming    FieldID = "streaming"
	FieldStackSpotKnowledge    FieldID = "stackspotKnowledge"
	FieldStackSpotReturnKs     FieldID = "returnKsInResponse"
	FieldStackSpotClientID     FieldID = "stackspotClientId"
	FieldStackSpotClientSecret FieldID = "stackspotClientSecret"
	FieldStackSpotRealm        FieldID = "stackspotRealm"
	FieldStackSpotAgentID      FieldID = "stackspotAgentId"
)

// FieldKind is the input widget behind a field.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindPassword FieldKind = "password"
	KindNumber   FieldKind = "number"
	KindCheckbox FieldKind = "checkbox"
	KindSelect   FieldKind = "select"
)

// FieldSpec describes one tracked field. Values are string, int or bool
// depending on Kind.
type FieldSpec struct {
	ID    FieldID
	Label string
	Kind  FieldKind
	// Path is the JSON location inside ConfigDocument.
	Path []string
	// Aliases are alternative JSON locations accepted on decode.
	Aliases [][]string
	// Block is the integration whose toggle governs the field.
	Block Integration
	// Master marks the block's own enable toggle.
	Master bool
	// Reset, when non-nil, replaces clearing on disable.
	Reset any
	// Mandatory fields are never disabled.
	Mandatory bool

	get func(*ConfigDocument) any
	set func(*ConfigDocument, any) error
}

// Empty returns the cleared value for the field's kind.
func (f FieldSpec) Empty() any {
	switch f.Kind {
	case KindNumber:
		return 0
	case KindCheckbox:
		return false
	}
	return ""
}

// Secret reports whether the value must be masked when displayed.
func (f FieldSpec) Secret() bool {
	return f.Kind == KindPassword
}

// MaskSecret hides all but the last four characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "••••"
	}
	return "••••" + s[len(s)-4:]
}

// IsEmpty reports whether v is a blank value.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case int:
		return t == 0
	case bool:
		return false
	}
	return false
}

// ShadowValues holds values hidden by disabling a block, per block.
type ShadowValues map[Integration]map[FieldID]any

// Clone returns a deep copy.
func (s ShadowValues) Clone() ShadowValues {
	out := make(ShadowValues, len(s))
	for in, vals := range s {
		cp := make(map[FieldID]any, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		out[in] = cp
	}
	return out
}

// Registry is an ordered set of field specs.
type Registry struct {
	specs []FieldSpec
	index map[FieldID]int
}

// NewRegistry builds a registry preserving the given order.
func NewRegistry(specs ...FieldSpec) *Registry {
	r := &Registry{
		specs: make([]FieldSpec, len(specs)),
		index: make(map[FieldID]int, len(specs)),
	}
	copy(r.specs, specs)
	for i, s := range r.specs {
		r.index[s.ID] = i
	}
	return r
}

// WithMandatory returns a copy of r where ids are flagged mandatory.
func (r *Registry) WithMandatory(ids ...FieldID) *Registry {
	out := NewRegistry(r.specs...)
	for _, id := range ids {
		if i, ok := out.index[id]; ok {
			out.specs[i].Mandatory = true
		}
	}
	return out
}

// Fields returns the specs in display order.
func (r *Registry) Fields() []FieldSpec {
	out := make([]FieldSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Lookup finds a spec by id.
func (r *Registry) Lookup(id FieldID) (FieldSpec, bool) {
	i, ok := r.index[id]
	if !ok {
		return FieldSpec{}, false
	}
	return r.specs[i], true
}

// Master returns the enable toggle of a block.
func (r *Registry) Master(in Integration) (FieldSpec, bool) {
	for _, s := range r.specs {
		if s.Block == in && s.Master {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// Dependents returns the fields governed by a block toggle.
func (r *Registry) Dependents(in Integration) []FieldSpec {
	var out []FieldSpec
	for _, s := range r.specs {
		if s.Block == in && !s.Master {
			out = append(out, s)
		}
	}
	return out
}

// Get reads a field from doc.
func (r *Registry) Get(doc ConfigDocument, id FieldID) (any, error) {
	spec, ok := r.Lookup(id)
	if !ok {
		return nil, unknownField(id)
	}
	return spec.get(&doc), nil
}

// Set writes a field into doc, coercing v to the field's kind.
func (r *Registry) Set(doc *ConfigDocument, id FieldID, v any) error {
	spec, ok := r.Lookup(id)
	if !ok {
		return unknownField(id)
	}
	if err := spec.set(doc, v); err != nil {
		return ErrValidation(CodeInvalidField, fmt.Sprintf("%s: %v", id, err)).
			WithDetail("field", string(id))
	}
	return nil
}

// Values returns every field value keyed by id.
func (r *Registry) Values(doc ConfigDocument) map[FieldID]any {
	out := make(map[FieldID]any, len(r.specs))
	for _, s := range r.specs {
		out[s.ID] = s.get(&doc)
	}
	return out
}

func unknownField(id FieldID) *DomainError {
	return ErrValidation(CodeInvalidField, "unknown field: "+string(id)).
		WithDetail("field", string(id))
}

var defaultRegistry = NewRegistry(
	textField(FieldUserName, "Name", KindText, "user", "name", func(d *ConfigDocument) *string { return &d.User.Name }),
	textField(FieldUserEmail, "Email", KindText, "user", "email", func(d *ConfigDocument) *string { return &d.User.Email }),
	textField(FieldUserCompany, "Company", KindText, "user", "company", func(d *ConfigDocument) *string { return &d.User.Company }),

	FieldSpec{
		ID: FieldDefaultAI, Label: "Default AI", Kind: KindSelect,
		Path: []string{"preferences", "defaultAI"},
		get:  func(d *ConfigDocument) any { return string(d.Preferences.DefaultAI) },
		set: func(d *ConfigDocument, v any) error {
			s, err := toString(v)
			if err != nil {
				return err
			}
			d.Preferences.DefaultAI = AIProvider(s)
			return nil
		},
	},
	textField(FieldDefaultAnalyseType, "Default analysis", KindSelect, "preferences", "defaultAnalyseType", func(d *ConfigDocument) *string { return &d.Preferences.DefaultAnalyseType }),
	boolField(FieldAutoCopy, "Copy results automatically", "", []string{"preferences", "autoCopy"}, func(d *ConfigDocument) *bool { return &d.Preferences.AutoCopy }),
	boolField(FieldClearAfterSuccess, "Clear form after success", "", []string{"preferences", "clearAfterSuccess"}, func(d *ConfigDocument) *bool { return &d.Preferences.ClearAfterSuccess }),
	FieldSpec{
		ID: FieldTheme, Label: "Theme", Kind: KindSelect,
		Path: []string{"preferences", "theme"},
		get:  func(d *ConfigDocument) any { return string(d.Preferences.Theme) },
		set: func(d *ConfigDocument, v any) error {
			s, err := toString(v)
			if err != nil {
				return err
			}
			d.Preferences.Theme = Theme(s)
			return nil
		},
	},

	masterField(FieldJiraEnabled, "Jira", IntegrationJira, []string{"integrations", "jira", "enabled"}, func(d *ConfigDocument) *bool { return &d.Integrations.Jira.Enabled }),
	blockText(FieldJiraBaseURL, "Base URL", KindText, IntegrationJira, nil, []string{"integrations", "jira", "baseUrl"}, nil, func(d *ConfigDocument) *string { return &d.Integrations.Jira.BaseURL }),
	blockText(FieldJiraUserEmail, "User email", KindText, IntegrationJira, nil, []string{"integrations", "jira", "userEmail"}, [][]string{{"integrations", "jira", "email"}}, func(d *ConfigDocument) *string { return &d.Integrations.Jira.UserEmail }),
	blockText(FieldJiraAPIToken, "API token", KindPassword, IntegrationJira, nil, []string{"integrations", "jira", "apiToken"}, [][]string{{"integrations", "jira", "token"}}, func(d *ConfigDocument) *string { return &d.Integrations.Jira.APIToken }),
	blockText(FieldJiraSubtaskIssueTypeID, "Subtask issue type", KindText, IntegrationJira, nil, []string{"integrations", "jira", "subtaskIssueTypeId"}, nil, func(d *ConfigDocument) *string { return &d.Integrations.Jira.SubtaskIssueTypeID }),
	blockText(FieldJiraBugIssueTypeID, "Bug issue type", KindText, IntegrationJira, DefaultBugIssueTypeID, []string{"integrations", "jira", "bugIssueTypeId"}, nil, func(d *ConfigDocument) *string { return &d.Integrations.Jira.BugIssueTypeID }),
	blockText(FieldJiraSubBugIssueTypeID, "Sub-bug issue type", KindText, IntegrationJira, DefaultSubBugIssueTypeID, []string{"integrations", "jira", "subBugIssueTypeId"}, nil, func(d *ConfigDocument) *string { return &d.Integrations.Jira.SubBugIssueTypeID }),
	intField(FieldJiraRequestTimeout, "Request timeout (s)", IntegrationJira, DefaultRequestTimeout, []string{"integrations", "jira", "requestTimeout"}, func(d *ConfigDocument) *int { return &d.Integrations.Jira.RequestTimeout }),

	masterField(FieldOpenAIEnabled, "OpenAI", IntegrationOpenAI, []string{"ia", "openai", "enabled"}, func(d *ConfigDocument) *bool { return &d.IA.OpenAI.Enabled }),
	intField(FieldOpenAIMaxTokens, "Max tokens", IntegrationOpenAI, nil, []string{"ia", "openai", "maxTokens"}, func(d *ConfigDocument) *int { return &d.IA.OpenAI.MaxTokens }),
	blockText(FieldOpenAIAPIKey, "API key", KindPassword, IntegrationOpenAI, nil, []string{"ia", "openai", "apiKey"}, nil, func(d *ConfigDocument) *string { return &d.IA.OpenAI.APIKey }),

	masterField(FieldStackSpotEnabled, "StackSpot", IntegrationStackSpot, []string{"ia", "stackspot", "enabled"}, func(d *ConfigDocument) *bool { return &d.IA.StackSpot.Enabled }),
	boolField(FieldStackSpotStreaming, "Streaming", IntegrationStackSpot, []string{"ia", "stackspot", "streaming"}, func(d *ConfigDocument) *bool { return &d.IA.StackSpot.Streaming }),
	boolField(FieldStackSpotKnowledge, "Use knowledge sources", IntegrationStackSpot, []string{"ia", "stackspot", "stackspotKnowledge"}, func(d *ConfigDocument) *bool { return &d.IA.StackSpot.StackspotKnowledge }),
	boolField(FieldStackSpotReturnKs, "Return knowledge sources", IntegrationStackSpot, []string{"ia", "stackspot", "returnKsInResponse"}, func(d *ConfigDocument) *bool { return &d.IA.StackSpot.ReturnKsInResponse }),
	blockText(FieldStackSpotClientID, "Client ID", KindText, IntegrationStackSpot, nil, []string{"ia", "stackspot", "clientId"}, nil, func(d *ConfigDocument) *string { return &d.IA.StackSpot.ClientID }),
	blockText(FieldStackSpotClientSecret, "Client secret", KindPassword, IntegrationStackSpot, nil, []string{"ia", "stackspot", "clientSecret"}, nil, func(d *ConfigDocument) *string { return &d.IA.StackSpot.ClientSecret }),
	blockText(FieldStackSpotRealm, "Realm", KindText, IntegrationStackSpot, nil, []string{"ia", "stackspot", "realm"}, nil, func(d *ConfigDocument) *string { return &d.IA.StackSpot.Realm }),
	blockText(FieldStackSpotAgentID, "Agent ID", KindText, IntegrationStackSpot, nil, []string{"ia", "stackspot", "agentId"}, nil, func(d *ConfigDocument) *string { return &d.IA.StackSpot.AgentID }),
)

// DefaultRegistry returns the settings form's fields.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func textField(id FieldID, label string, kind FieldKind, block, key string, ptr func(*ConfigDocument) *string) FieldSpec {
	return FieldSpec{
		ID: id, Label: label, Kind: kind,
		Path: []string{block, key},
		get:  func(d *ConfigDocument) any { return *ptr(d) },
		set: func(d *ConfigDocument, v any) error {
			s, err := toString(v)
			if err != nil {
				return err
			}
			*ptr(d) = s
			return nil
		},
	}
}

func blockText(id FieldID, label string, kind FieldKind, in Integration, reset any, path []string, aliases [][]string, ptr func(*ConfigDocument) *string) FieldSpec {
	f := textField(id, label, kind, "", "", ptr)
	f.Path = path
	f.Aliases = aliases
	f.Block = in
	f.Reset = reset
	return f
}

func boolField(id FieldID, label string, in Integration, path []string, ptr func(*ConfigDocument) *bool) FieldSpec {
	return FieldSpec{
		ID: id, Label: label, Kind: KindCheckbox, Block: in, Path: path,
		get: func(d *ConfigDocument) any { return *ptr(d) },
		set: func(d *ConfigDocument, v any) error {
			b, err := toBool(v)
			if err != nil {
				return err
			}
			*ptr(d) = b
			return nil
		},
	}
}

func masterField(id FieldID, label string, in Integration, path []string, ptr func(*ConfigDocument) *bool) FieldSpec {
	f := boolField(id, label, in, path, ptr)
	f.Master = true
	return f
}

func intField(id FieldID, label string, in Integration, reset any, path []string, ptr func(*ConfigDocument) *int) FieldSpec {
	return FieldSpec{
		ID: id, Label: label, Kind: KindNumber, Block: in, Reset: reset, Path: path,
		get: func(d *ConfigDocument) any { return *ptr(d) },
		set: func(d *ConfigDocument, v any) error {
			n, err := toInt(v)
			if err != nil {
				return err
			}
			*ptr(d) = n
			return nil
		},
	}
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("expected text, got %T", v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected a whole number, got %v", t)
		}
		return int(t), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), nil
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("expected a whole number, got %s", t)
		}
		return int(f), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("expected a whole number, got %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1":
			return true, nil
		case "false", "off", "no", "0", "":
			return false, nil
		}
		return false, fmt.Errorf("expected true or false, got %q", t)
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}
