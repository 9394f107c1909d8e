package core

import (
	"sort"

	"github.com/sahilm/fuzzy"
)

// AnalysisCatalog maps analysis-type keys to display labels.
type AnalysisCatalog map[string]string

// DefaultAnalysisCatalog is used when the backend catalog is unreachable.
func DefaultAnalysisCatalog() AnalysisCatalog {
	return AnalysisCatalog{
		"card_QA_writer":            "QA card writer",
		"test_case_flow_classifier": "Test case flow classifier",
		"swagger_postman":           "Swagger to Postman",
		"swagger_python":            "Swagger to Python tests",
	}
}

// Has reports whether key is in the catalog.
func (c AnalysisCatalog) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Keys returns the catalog keys sorted.
func (c AnalysisCatalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Suggest returns the closest catalog key to key, or "" when nothing matches.
func (c AnalysisCatalog) Suggest(key string) string {
	if key == "" {
		return ""
	}
	matches := fuzzy.Find(key, c.Keys())
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
