package core

import (
	"encoding/base64"
	"net/url"
	"strings"
	"unicode"
)

// JiraSessionCredentials is the session-scoped Jira identity. It lives only
// as long as the session scope and is never written to the persistent one.
type JiraSessionCredentials struct {
	BaseURL         string `json:"baseUrl"`
	Email           string `json:"email"`
	Token           string `json:"token"`
	UserDisplayName string `json:"userDisplayName,omitempty"`
	UserEmail       string `json:"userEmail,omitempty"`
}

// Complete reports whether base URL, email and token are all present.
func (c JiraSessionCredentials) Complete() bool {
	return strings.TrimSpace(c.BaseURL) != "" &&
		strings.TrimSpace(c.Email) != "" &&
		strings.TrimSpace(c.Token) != ""
}

// Normalized trims whitespace and the trailing slash of the base URL.
func (c JiraSessionCredentials) Normalized() JiraSessionCredentials {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Email = strings.TrimSpace(c.Email)
	c.Token = strings.TrimSpace(c.Token)
	return c
}

// AuthHeader is the X-Jira-Auth value: base64 of "email:token".
func (c JiraSessionCredentials) AuthHeader() string {
	return base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.Token))
}

// InstanceName derives a display name from an Atlassian Cloud URL, e.g.
// https://acme-corp.atlassian.net becomes "Acme Corp". It falls back to
// "Jira" when the URL has no usable host.
func (c JiraSessionCredentials) InstanceName() string {
	raw := strings.TrimSpace(c.BaseURL)
	if raw == "" {
		return "Jira"
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "Jira"
	}
	slug, _, _ := strings.Cut(u.Hostname(), ".")
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) == 0 {
		return "Jira"
	}
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// DisplayName prefers the Jira-reported name, then the email.
func (c JiraSessionCredentials) DisplayName() string {
	if c.UserDisplayName != "" {
		return c.UserDisplayName
	}
	if c.UserEmail != "" {
		return c.UserEmail
	}
	return c.Email
}
