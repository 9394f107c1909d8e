package remote

// Operation names, used for generations, metrics and log fields.
const (
	OpFetchConfig    = "fetch_config"
	OpFetchAPIConfig = "fetch_api_config"
	OpPushConfig     = "push_config"
	OpPushAPIConfig  = "push_api_config"
	OpTestJira       = "test_jira"
	OpTestAPIConfig  = "test_api_config"
	OpAnalysisTypes  = "analysis_types"
)

// Jira identity headers understood by the backend.
const (
	HeaderJiraAuth    = "X-Jira-Auth"
	HeaderJiraBaseURL = "X-Jira-Base-Url"
)

// JiraUser is the account reported by a successful connection test.
type JiraUser struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// JiraTestResult is the body of POST /jira/test-connection.
type JiraTestResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	User    *JiraUser `json:"user,omitempty"`
}

// ServiceResult is one AI service checked by POST /test-api-config.
type ServiceResult struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// APITestResult is the body of POST /test-api-config.
type APITestResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Results []ServiceResult `json:"results"`
}

// ackResponse is the {"success", "message"} body of the write endpoints. A
// body without "success" counts as accepted.
type ackResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

type analysisTypesResponse struct {
	AnalysisTypes map[string]string `json:"analysis_types"`
}

type errorBody struct {
	Detail  any    `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
