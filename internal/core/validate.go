package core

import (
	"fmt"
	"regexp"
	"strings"
)

// Issue is one invariant violation found in a document.
type Issue struct {
	Field   FieldID `json:"field"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}

// Issues is a list of violations.
type Issues []Issue

// Error joins the messages.
func (is Issues) Error() string {
	msgs := make([]string, len(is))
	for i, issue := range is {
		msgs[i] = issue.Message
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any issue carries code.
func (is Issues) Has(code string) bool {
	for _, issue := range is {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// AsError converts the issues into a validation DomainError, or nil.
func (is Issues) AsError() error {
	if len(is) == 0 {
		return nil
	}
	return ErrValidation(is[0].Code, is.Error()).WithDetail("issues", []Issue(is))
}

// ValidateDocument checks the invariants a document must satisfy before it
// can be saved.
func ValidateDocument(doc ConfigDocument, catalog AnalysisCatalog) Issues {
	var issues Issues

	ai := doc.Preferences.DefaultAI
	switch {
	case !ai.Valid():
		issues = append(issues, Issue{
			Field:   FieldDefaultAI,
			Code:    CodeInvalidField,
			Message: fmt.Sprintf("unknown AI provider %q", ai),
		})
	case !doc.Enabled(ai.Integration()):
		issues = append(issues, Issue{
			Field:   FieldDefaultAI,
			Code:    CodeDefaultAIDisabled,
			Message: fmt.Sprintf("the default AI (%s) is not enabled; enable it or pick another default", ai),
		})
	}

	if len(catalog) > 0 && !catalog.Has(doc.Preferences.DefaultAnalyseType) {
		msg := fmt.Sprintf("unknown analysis type %q", doc.Preferences.DefaultAnalyseType)
		if s := catalog.Suggest(doc.Preferences.DefaultAnalyseType); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		issues = append(issues, Issue{Field: FieldDefaultAnalyseType, Code: CodeUnknownAnalysisType, Message: msg})
	}

	if !doc.Preferences.Theme.Valid() {
		issues = append(issues, Issue{
			Field:   FieldTheme,
			Code:    CodeInvalidTheme,
			Message: fmt.Sprintf("theme must be light, dark or auto, got %q", doc.Preferences.Theme),
		})
	}

	if doc.Integrations.Jira.Enabled && doc.Integrations.Jira.RequestTimeout <= 0 {
		issues = append(issues, Issue{
			Field:   FieldJiraRequestTimeout,
			Code:    CodeInvalidNumber,
			Message: "jira request timeout must be positive",
		})
	}
	if doc.IA.OpenAI.Enabled && doc.IA.OpenAI.MaxTokens < 0 {
		issues = append(issues, Issue{
			Field:   FieldOpenAIMaxTokens,
			Code:    CodeInvalidNumber,
			Message: "max tokens must not be negative",
		})
	}
	return issues
}

// JiraReady reports whether Jira-dependent actions may run.
func JiraReady(doc ConfigDocument, session *JiraSessionCredentials) bool {
	if !doc.Integrations.Jira.Enabled {
		return false
	}
	if doc.JiraCredentials().Complete() {
		return true
	}
	return session != nil && session.Complete()
}

var cardNumberPattern = regexp.MustCompile(`^[A-Z]+-\d+$`)

// ValidateCardNumber normalizes a Jira issue key such as "qa-123" and
// rejects anything that is not PROJECT-NUMBER.
func ValidateCardNumber(s string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if !cardNumberPattern.MatchString(key) {
		return "", ErrValidation(CodeInvalidCardNumber,
			fmt.Sprintf("invalid card number %q: expected PROJECT-123", s))
	}
	return key, nil
}
