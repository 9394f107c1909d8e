// Package backup turns the settings document into a portable file and
// back.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// ExportedAtKey is added to every exported document.
const ExportedAtKey = "_exportedAt"

// Filenames.
const (
	DefaultFilename    = "bsqa-config.json"
	DefaultEnvFilename = "bsqa-api.env"
)

// Artifact is an exported file.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	ExportedAt  time.Time
}

// ExportOptions tune Export.
type ExportOptions struct {
	// Timestamped puts the export time in the filename.
	Timestamped bool
	// Session fills Jira credentials left empty in the document.
	Session *core.JiraSessionCredentials
	// Now is the export time; zero uses the wall clock.
	Now time.Time
}

type exportPayload struct {
	core.ConfigDocument
	ExportedAt string `json:"_exportedAt"`
}

// Export serializes doc as indented JSON plus the export timestamp.
// Credentials of disabled AI blocks are dropped; Jira credentials are
// kept, falling back to the session's.
func Export(doc core.ConfigDocument, opts ExportOptions) (Artifact, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	out := core.Outbound(doc)
	jira := doc.JiraCredentials()
	if opts.Session != nil {
		if jira.BaseURL == "" {
			jira.BaseURL = opts.Session.BaseURL
		}
		if jira.Email == "" {
			jira.Email = opts.Session.Email
		}
		if jira.Token == "" {
			jira.Token = opts.Session.Token
		}
	}
	out.Integrations.Jira.BaseURL = jira.BaseURL
	out.Integrations.Jira.UserEmail = jira.Email
	out.Integrations.Jira.APIToken = jira.Token

	data, err := json.MarshalIndent(exportPayload{
		ConfigDocument: out,
		ExportedAt:     now.Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return Artifact{}, core.ErrInternal("encoding export").WithCause(err)
	}

	name := DefaultFilename
	if opts.Timestamped {
		name = fmt.Sprintf("bsqa-config-%s.json", now.Format("20060102-150405"))
	}
	return Artifact{
		Filename:    name,
		ContentType: "application/json",
		Data:        append(data, '\n'),
		ExportedAt:  now,
	}, nil
}

// Imported is a validated import.
type Imported struct {
	Document core.ConfigDocument
	// ExportedAt is zero when the file carried no usable timestamp.
	ExportedAt time.Time
	// JiraSession is set when base URL, email and token are all present.
	JiraSession *core.JiraSessionCredentials
}

// Import validates data and decodes it. The top level must be an object
// whose user, preferences, integrations and ia members are objects;
// anything else is rejected with INVALID_JSON or INVALID_SHAPE.
func Import(data []byte) (*Imported, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > maxImportSize {
		return nil, core.ErrValidation(core.CodeInvalidJSON, "file is too large to be a settings export")
	}
	if !json.Valid(trimmed) {
		return nil, core.ErrValidation(core.CodeInvalidJSON, "file is not valid JSON")
	}
	raw, err := core.ParseRaw(trimmed)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidShape,
			"expected a bsqa-config object with user, preferences, integrations and ia").WithCause(err)
	}

	var bad []string
	for _, key := range core.DocumentKeys() {
		if !raw.IsObject(key) {
			bad = append(bad, key)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, core.ErrValidation(core.CodeInvalidShape,
			"missing or invalid sections: "+strings.Join(bad, ", ")).WithDetail("keys", bad)
	}

	res := &Imported{Document: core.Decode(raw)}
	if ts, ok := raw[ExportedAtKey]; ok {
		var s string
		if json.Unmarshal(ts, &s) == nil {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				res.ExportedAt = t
			}
		}
	}
	if creds := res.Document.JiraCredentials().Normalized(); creds.Complete() {
		res.JiraSession = &creds
	}
	return res, nil
}
