// Package merge combines the local settings cache with the backend's copy.
package merge

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
)

// Merge overlays remote on local by top-level key: every key present in
// remote replaces the local value wholesale. A nil remote yields a copy of
// local.
func Merge(local, remote core.RawDocument) core.RawDocument {
	out := local.Clone()
	if out == nil {
		out = core.RawDocument{}
	}
	for k, v := range remote {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Source is the backend side of a load.
type Source interface {
	FetchConfig(ctx context.Context) (core.RawDocument, error)
	FetchAPIConfig(ctx context.Context) (map[string]string, error)
}

// Cache is the local side of a load.
type Cache interface {
	ReadRaw(ctx context.Context) core.RawDocument
	WriteRaw(ctx context.Context, raw core.RawDocument) error
	ReadJiraSession(ctx context.Context) *core.JiraSessionCredentials
}

// Result is what a load produced.
type Result struct {
	Document core.ConfigDocument
	// Raw is the merged top-level view, including keys the document type
	// does not model.
	Raw core.RawDocument
	// Remote reports whether the backend answered.
	Remote bool
	// JiraSession is the authenticated session overlaid on the document.
	JiraSession *core.JiraSessionCredentials
}

// Loader reads the cache, fetches the backend copy and merges them.
type Loader struct {
	cache  Cache
	source Source
	logger *logging.Logger
}

// NewLoader creates a loader. source may be nil for offline use.
func NewLoader(cache Cache, source Source, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{cache: cache, source: source, logger: logger.WithScope("merge")}
}

// Load never fails: when the backend is unreachable the local cache is used
// as is. On success the merged view is written back to the cache.
func (l *Loader) Load(ctx context.Context) Result {
	local := l.cache.ReadRaw(ctx)

	remote, ok := l.fetch(ctx)
	merged := Merge(local, remote)
	if ok {
		if err := l.cache.WriteRaw(ctx, merged); err != nil {
			l.logger.Debug("refreshing local cache failed", "error", err)
		}
	}

	res := Result{
		Document: core.Decode(merged),
		Raw:      merged,
		Remote:   ok,
	}
	if session := l.cache.ReadJiraSession(ctx); session != nil {
		res.Document = OverlayJiraSession(res.Document, *session)
		res.JiraSession = session
	}
	return res
}

// fetch gets /config and /api-config in parallel and folds the credential
// map into the "ia" key. ok is false when /config failed.
func (l *Loader) fetch(ctx context.Context) (core.RawDocument, bool) {
	if l.source == nil {
		return nil, false
	}

	var (
		remote core.RawDocument
		apiCfg map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := l.source.FetchConfig(gctx)
		if err != nil {
			return err
		}
		remote = r
		return nil
	})
	g.Go(func() error {
		m, err := l.source.FetchAPIConfig(gctx)
		if err != nil {
			// Optional endpoint; the document alone is enough.
			l.logger.Debug("fetching api config failed", "error", err)
			return nil
		}
		apiCfg = m
		return nil
	})
	if err := g.Wait(); err != nil {
		l.logger.Debug("fetching remote config failed, using local cache", "error", err)
		return nil, false
	}

	if len(apiCfg) > 0 {
		remote = foldAPIConfig(remote, apiCfg)
	}
	return remote, true
}

// foldAPIConfig applies the credential map to the "ia" key of remote.
func foldAPIConfig(remote core.RawDocument, apiCfg map[string]string) core.RawDocument {
	before := core.Decode(remote)
	doc := core.ApplyAPIConfig(before, apiCfg)
	if doc.IA == before.IA {
		return remote
	}
	out := remote.Clone()
	out[core.KeyIA] = core.Encode(doc)[core.KeyIA]
	return out
}

// OverlayJiraSession copies an authenticated session into the Jira block
// and fills empty user fields from the Jira account.
func OverlayJiraSession(doc core.ConfigDocument, session core.JiraSessionCredentials) core.ConfigDocument {
	if !session.Complete() {
		return doc
	}
	doc.Integrations.Jira.Enabled = true
	doc.Integrations.Jira.BaseURL = session.BaseURL
	doc.Integrations.Jira.UserEmail = session.Email
	doc.Integrations.Jira.APIToken = session.Token
	return FillUserFromJira(doc, session)
}

// FillUserFromJira fills empty name, email and company from the Jira
// account without overwriting anything the user typed.
func FillUserFromJira(doc core.ConfigDocument, session core.JiraSessionCredentials) core.ConfigDocument {
	if doc.User.Name == "" && session.UserDisplayName != "" {
		doc.User.Name = session.UserDisplayName
	}
	if doc.User.Email == "" && session.UserEmail != "" {
		doc.User.Email = session.UserEmail
	}
	if doc.User.Company == "" {
		doc.User.Company = session.InstanceName()
	}
	return doc
}
