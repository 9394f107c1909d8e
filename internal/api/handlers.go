package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apimw "github.com/hugo-lorenzo-mato/bsqa/internal/api/middleware"
	"github.com/hugo-lorenzo-mato/bsqa/internal/backup"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/dirty"
	"github.com/hugo-lorenzo-mato/bsqa/internal/fsutil"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

const maxBodySize = 1 << 20

// FieldChange is one edit in a PATCH /fields request.
type FieldChange struct {
	Field core.FieldID `json:"field"`
	Value any          `json:"value"`
}

// ChangeFieldsRequest edits one field, or several in order.
type ChangeFieldsRequest struct {
	Field   core.FieldID  `json:"field,omitempty"`
	Value   any           `json:"value,omitempty"`
	Changes []FieldChange `json:"changes,omitempty"`
}

// ToggleRequest switches an integration block on or off.
type ToggleRequest struct {
	Integration string `json:"integration"`
	Enabled     bool   `json:"enabled"`
}

// NavigateRequest asks to leave the form. Confirm carries the user's answer
// once they were asked.
type NavigateRequest struct {
	Target  string `json:"target"`
	Confirm *bool  `json:"confirm,omitempty"`
}

// UnloadResponse tells the page whether closing it loses edits.
type UnloadResponse struct {
	Dirty   bool   `json:"dirty"`
	Message string `json:"message,omitempty"`
}

// JiraSessionResponse describes the stored Jira identity without its
// credentials.
type JiraSessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	BaseURL       string `json:"baseUrl,omitempty"`
	Instance      string `json:"instance,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
}

// handleOpenSession loads a new form session for a page.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sess, view, err := s.sessions.Open(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.logger.Debug("form session opened", "session_id", sess.ID(), "remote", view.Remote)
	setETag(w, view.Marker)
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view := apimw.GetSession(r.Context()).View()
	setETag(w, view.Marker)
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Close(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// handleChangeFields applies the edits in order and stops at the first one
// that is rejected; the edits before it stay applied.
func (s *Server) handleChangeFields(w http.ResponseWriter, r *http.Request) {
	var req ChangeFieldsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	changes := req.Changes
	if req.Field != "" {
		changes = append([]FieldChange{{Field: req.Field, Value: req.Value}}, changes...)
	}
	if len(changes) == 0 {
		s.respondDomainError(w, r, core.ErrValidation(core.CodeInvalidField, "no field changes given"))
		return
	}

	sess := apimw.GetSession(r.Context())
	var view session.View
	for _, c := range changes {
		v, err := sess.Change(r.Context(), c.Field, c.Value)
		if err != nil {
			s.respondDomainError(w, r, err)
			return
		}
		view = v
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	in, err := core.ParseIntegration(req.Integration)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	view, err := apimw.GetSession(r.Context()).Toggle(r.Context(), in, req.Enabled)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// handleSave honours If-Match against the store's change marker so a tab
// does not overwrite what another tab saved since it loaded. ?force=true
// skips the check.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	opts := session.SaveOptions{IfMatch: parseETag(r.Header.Get("If-Match"))}
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force {
		opts.IfMatch = ""
	}

	res, err := apimw.GetSession(r.Context()).Save(r.Context(), opts)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	setETag(w, res.View.Marker)
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, fsutil.MaxImportSize+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondDomainError(w, r, core.ErrValidation(core.CodeInvalidJSON, "import file is too large"))
			return
		}
		respondError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	view, err := apimw.GetSession(r.Context()).Import(r.Context(), data)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	setETag(w, view.Marker)
	respondJSON(w, http.StatusOK, view)
}

// handleExport downloads the form as a JSON attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	timestamped, _ := strconv.ParseBool(r.URL.Query().Get("timestamped"))
	res, err := apimw.GetSession(r.Context()).Export(r.Context(), backup.ExportOptions{Timestamped: timestamped})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	a := res.Artifact
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}

// handleNavigate answers whether the page may leave the form. A dirty form
// without an answer gets 409 CONFIRMATION_REQUIRED and the prompt to show.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if req.Confirm != nil {
		ctx = apimw.WithAnswer(ctx, req.Confirm)
	}

	err := apimw.GetSession(ctx).Navigate(ctx, dirty.Target(req.Target))
	if err != nil {
		s.respondConfirmation(w, r, err, dirty.LeaveMessage)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	msg := apimw.GetSession(r.Context()).BeforeUnload()
	respondJSON(w, http.StatusOK, UnloadResponse{Dirty: msg != "", Message: msg})
}

// handleClearSession wipes every stored setting and resets this form.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	view, err := apimw.GetSession(r.Context()).ClearAll(r.Context())
	if err != nil {
		s.respondConfirmation(w, r, err, session.ClearMessage)
		return
	}
	setETag(w, view.Marker)
	respondJSON(w, http.StatusOK, view)
}

// handleClearSettings wipes every stored setting without a form session.
// Open forms learn about it from the config_cleared event.
func (s *Server) handleClearSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	port, ok := core.ConfirmationFromContext(ctx)
	if !ok {
		port = core.AnswerConfirmation{}
	}
	confirmed, err := port.Confirm(ctx, session.ClearMessage)
	if err == nil && !confirmed {
		err = core.ErrClearCancelled
	}
	if err != nil {
		s.respondConfirmation(w, r, err, session.ClearMessage)
		return
	}

	if err := s.settings.ClearAll(ctx); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	marker := s.settings.ChangeMarker(ctx)
	setETag(w, marker)
	respondJSON(w, http.StatusOK, map[string]interface{}{"cleared": true, "marker": marker})
}

func (s *Server) handleTestJira(w http.ResponseWriter, r *http.Request) {
	res, err := apimw.GetSession(r.Context()).TestJiraConnection(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogoutJira(w http.ResponseWriter, r *http.Request) {
	view, err := apimw.GetSession(r.Context()).LogoutJira(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleTestAI(w http.ResponseWriter, r *http.Request) {
	res, err := apimw.GetSession(r.Context()).TestAIConfig(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetJiraSession(w http.ResponseWriter, r *http.Request) {
	creds := s.settings.ReadJiraSession(r.Context())
	if creds == nil {
		respondJSON(w, http.StatusOK, JiraSessionResponse{})
		return
	}
	respondJSON(w, http.StatusOK, JiraSessionResponse{
		Authenticated: true,
		BaseURL:       creds.BaseURL,
		Instance:      creds.InstanceName(),
		DisplayName:   creds.DisplayName(),
	})
}

func (s *Server) handleDeleteJiraSession(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.ClearJiraSession(r.Context()); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondConfirmation adds the prompt to CONFIRMATION_REQUIRED answers so
// the client can ask the user and retry.
func (s *Server) respondConfirmation(w http.ResponseWriter, r *http.Request, err error, prompt string) {
	if errors.Is(err, core.ErrConfirmationRequired) {
		respondJSON(w, http.StatusConflict, errorResponse{
			Error:    core.ErrConfirmationRequired.Message,
			Code:     core.CodeConfirmationRequired,
			Category: string(core.ErrCatConflict),
			Details:  map[string]interface{}{"prompt": prompt},
		})
		return
	}
	s.respondDomainError(w, r, err)
}

// decodeJSON reads the request body into v. Numbers stay json.Number so
// integer fields keep their exact value.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		s.respondDomainError(w, r, core.ErrValidation(core.CodeInvalidJSON, "invalid request body").WithCause(err))
		return false
	}
	return true
}

func setETag(w http.ResponseWriter, marker string) {
	if marker != "" {
		w.Header().Set("ETag", `"`+marker+`"`)
	}
}

// parseETag strips the weak prefix and quotes. "*" matches anything.
func parseETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	if v == "*" {
		return ""
	}
	return v
}
