package core

// AIProvider identifies an AI backend selectable as default.
type AIProvider string

const (
	AIOpenAI    AIProvider = "openai"
	AIStackSpot AIProvider = "stackspot"
)

// Valid reports whether p is a known provider.
func (p AIProvider) Valid() bool {
	return p == AIOpenAI || p == AIStackSpot
}

// Integration returns the integration block backing the provider.
func (p AIProvider) Integration() Integration {
	return Integration(p)
}

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeAuto:
		return true
	}
	return false
}

// Integration names a block of the form guarded by an enable toggle.
type Integration string

const (
	IntegrationJira      Integration = "jira"
	IntegrationOpenAI    Integration = "openai"
	IntegrationStackSpot Integration = "stackspot"
)

// Integrations returns every integration block in display order.
func Integrations() []Integration {
	return []Integration{IntegrationJira, IntegrationOpenAI, IntegrationStackSpot}
}

// ParseIntegration resolves a block name.
func ParseIntegration(s string) (Integration, error) {
	for _, in := range Integrations() {
		if string(in) == s {
			return in, nil
		}
	}
	return "", ErrValidation(CodeInvalidField, "unknown integration: "+s).
		WithDetail("valid", Integrations())
}

// Built-in defaults.
const (
	DefaultAnalyseType        = "card_QA_writer"
	DefaultSubtaskIssueTypeID = "10003"
	DefaultBugIssueTypeID     = "10004"
	DefaultSubBugIssueTypeID  = "10271"
	DefaultRequestTimeout     = 30
	DefaultMaxTokens          = 1000
)

// ConfigDocument is the persisted settings record.
type ConfigDocument struct {
	User         UserInfo           `json:"user"`
	Preferences  Preferences        `json:"preferences"`
	Integrations IntegrationsConfig `json:"integrations"`
	IA           IAConfig           `json:"ia"`
}

// UserInfo identifies the person using the tool.
type UserInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

// Preferences holds UI behaviour settings.
type Preferences struct {
	DefaultAI          AIProvider `json:"defaultAI"`
	DefaultAnalyseType string     `json:"defaultAnalyseType"`
	AutoCopy           bool       `json:"autoCopy"`
	ClearAfterSuccess  bool       `json:"clearAfterSuccess"`
	Theme              Theme      `json:"theme"`
}

// IntegrationsConfig groups the ticketing integrations.
type IntegrationsConfig struct {
	Jira JiraConfig `json:"jira"`
}

// JiraConfig is the Jira block of the form.
type JiraConfig struct {
	Enabled            bool   `json:"enabled"`
	BaseURL            string `json:"baseUrl"`
	UserEmail          string `json:"userEmail"`
	APIToken           string `json:"apiToken"`
	SubtaskIssueTypeID string `json:"subtaskIssueTypeId"`
	BugIssueTypeID     string `json:"bugIssueTypeId"`
	SubBugIssueTypeID  string `json:"subBugIssueTypeId"`
	RequestTimeout     int    `json:"requestTimeout"`
}

// IAConfig groups the AI providers.
type IAConfig struct {
	OpenAI    OpenAIConfig    `json:"openai"`
	StackSpot StackSpotConfig `json:"stackspot"`
}

// OpenAIConfig is the OpenAI block of the form.
type OpenAIConfig struct {
	Enabled   bool   `json:"enabled"`
	MaxTokens int    `json:"maxTokens"`
	APIKey    string `json:"apiKey"`
}

// StackSpotConfig is the StackSpot block of the form.
type StackSpotConfig struct {
	Enabled            bool   `json:"enabled"`
	Streaming          bool   `json:"streaming"`
	StackspotKnowledge bool   `json:"stackspotKnowledge"`
	ReturnKsInResponse bool   `json:"returnKsInResponse"`
	ClientID           string `json:"clientId"`
	ClientSecret       string `json:"clientSecret"`
	Realm              string `json:"realm"`
	AgentID            string `json:"agentId"`
}

// DefaultDocument returns the document used when nothing is stored.
func DefaultDocument() ConfigDocument {
	return ConfigDocument{
		Preferences: Preferences{
			DefaultAI:          AIOpenAI,
			DefaultAnalyseType: DefaultAnalyseType,
			ClearAfterSuccess:  true,
			Theme:              ThemeDark,
		},
		Integrations: IntegrationsConfig{
			Jira: JiraConfig{
				SubtaskIssueTypeID: DefaultSubtaskIssueTypeID,
				BugIssueTypeID:     DefaultBugIssueTypeID,
				SubBugIssueTypeID:  DefaultSubBugIssueTypeID,
				RequestTimeout:     DefaultRequestTimeout,
			},
		},
		IA: IAConfig{
			OpenAI: OpenAIConfig{MaxTokens: DefaultMaxTokens},
		},
	}
}

// Enabled reports the enable toggle of an integration block.
func (d ConfigDocument) Enabled(in Integration) bool {
	switch in {
	case IntegrationJira:
		return d.Integrations.Jira.Enabled
	case IntegrationOpenAI:
		return d.IA.OpenAI.Enabled
	case IntegrationStackSpot:
		return d.IA.StackSpot.Enabled
	}
	return false
}

// SetEnabled flips the enable toggle of an integration block.
func (d *ConfigDocument) SetEnabled(in Integration, enabled bool) {
	switch in {
	case IntegrationJira:
		d.Integrations.Jira.Enabled = enabled
	case IntegrationOpenAI:
		d.IA.OpenAI.Enabled = enabled
	case IntegrationStackSpot:
		d.IA.StackSpot.Enabled = enabled
	}
}

// JiraCredentials returns the session credentials typed into the Jira block.
func (d ConfigDocument) JiraCredentials() JiraSessionCredentials {
	return JiraSessionCredentials{
		BaseURL: d.Integrations.Jira.BaseURL,
		Email:   d.Integrations.Jira.UserEmail,
		Token:   d.Integrations.Jira.APIToken,
	}
}

// Outbound returns a copy of d safe to leave the process: every credential
// of a disabled block is cleared and the Jira secrets, which live in the
// session scope, are removed. A zero maxTokens falls back to the default.
func Outbound(d ConfigDocument) ConfigDocument {
	out := d
	out.Integrations.Jira.BaseURL = ""
	out.Integrations.Jira.UserEmail = ""
	out.Integrations.Jira.APIToken = ""
	if !out.IA.OpenAI.Enabled {
		out.IA.OpenAI.APIKey = ""
	}
	if out.IA.OpenAI.MaxTokens <= 0 {
		out.IA.OpenAI.MaxTokens = DefaultMaxTokens
	}
	if !out.IA.StackSpot.Enabled {
		out.IA.StackSpot.ClientID = ""
		out.IA.StackSpot.ClientSecret = ""
		out.IA.StackSpot.Realm = ""
		out.IA.StackSpot.AgentID = ""
	}
	return out
}
