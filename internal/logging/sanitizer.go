package logging

import (
	"regexp"
	"strings"
)

// Sanitizer redacts credentials from log messages and attributes.
type Sanitizer struct {
	patterns []*regexp.Regexp
	keys     map[string]bool
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		keys:     defaultSecretKeys(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// OpenAI
		`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`,
		// Atlassian API tokens
		`ATATT[A-Za-z0-9_=-]{20,}`,
		// Authorization headers
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		`(?i)basic\s+[A-Za-z0-9+/]{12,}={0,2}`,
		// X-Jira-Auth header values
		`(?i)x-jira-auth["'\s:=]+[A-Za-z0-9+/]{8,}={0,2}`,
		// Generic API keys
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{16,}`,
		// Client secrets (StackSpot and friends)
		`(?i)client[_-]?(?:secret|key)["'\s:=]+[a-zA-Z0-9_-]{12,}`,
		// Generic secrets
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		// Generic passwords
		`(?i)password["'\s:=]+[^\s"']{8,}`,
		// Generic tokens
		`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Attribute keys whose values are redacted whatever they look like.
func defaultSecretKeys() map[string]bool {
	keys := map[string]bool{}
	for _, k := range []string{
		"apikey", "api_key", "apitoken", "api_token", "token",
		"clientsecret", "client_secret", "client_key_stackspot",
		"openai_api_key", "password", "x-jira-auth", "authorization",
	} {
		keys[k] = true
	}
	return keys
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// SanitizeValue redacts value outright when key names a secret, and
// pattern-matches it otherwise.
func (s *Sanitizer) SanitizeValue(key, value string) string {
	if value != "" && s.IsSecretKey(key) {
		return s.redacted
	}
	return s.Sanitize(value)
}

// IsSecretKey reports whether an attribute key names a credential.
func (s *Sanitizer) IsSecretKey(key string) bool {
	return s.keys[strings.ToLower(key)]
}

// SanitizeMap redacts values in a map.
func (s *Sanitizer) SanitizeMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			result[k] = s.SanitizeValue(k, val)
		case map[string]interface{}:
			result[k] = s.SanitizeMap(val)
		default:
			result[k] = v
		}
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}

// AddSecretKey marks an attribute key as always redacted.
func (s *Sanitizer) AddSecretKey(key string) {
	s.keys[strings.ToLower(key)] = true
}

// SetRedactedPlaceholder sets the placeholder text for redacted content.
func (s *Sanitizer) SetRedactedPlaceholder(placeholder string) {
	s.redacted = placeholder
}
