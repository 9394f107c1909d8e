package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/bsqa/internal/backup"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/dirty"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

// Navigation targets of the editor.
const (
	TargetQuit   dirty.Target = "quit"
	TargetReload dirty.Target = "reload"
)

// FormSession is the part of a form session the editor drives.
type FormSession interface {
	ID() string
	View() session.View
	Load(ctx context.Context) (session.View, error)
	Change(ctx context.Context, id core.FieldID, value any) (session.View, error)
	Toggle(ctx context.Context, in core.Integration, enabled bool) (session.View, error)
	Save(ctx context.Context, opts session.SaveOptions) (*session.SaveResult, error)
	Export(ctx context.Context, opts backup.ExportOptions) (*session.ExportResult, error)
	Navigate(ctx context.Context, target dirty.Target) error
}

// Option configures an Editor.
type Option func(*Editor)

// WithEventBus makes the editor notice changes saved by other processes.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Editor) {
		if bus != nil {
			e.adapter = NewEventBusAdapter(bus, e.session.ID())
		}
	}
}

// WithExportDir sets where `e` writes export files.
func WithExportDir(dir string) Option {
	return func(e *Editor) { e.exportDir = dir }
}

// Editor is the Bubbletea model of the settings form.
type Editor struct {
	ctx       context.Context
	session   FormSession
	view      session.View
	fields    []core.FieldSpec
	cursor    int
	input     textinput.Model
	editing   bool
	confirm   dirty.Target
	spinner   spinner.Model
	busy      bool
	status    string
	statusErr bool
	notice    string
	exportDir string
	adapter   *EventBusAdapter
	styles    Styles
	width     int
	quitting  bool
}

// NewEditor creates an editor for a loaded session.
func NewEditor(ctx context.Context, s FormSession, opts ...Option) *Editor {
	ti := textinput.New()
	ti.CharLimit = 512
	ti.Width = 48

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	e := &Editor{
		ctx:       ctx,
		session:   s,
		fields:    core.DefaultRegistry().Fields(),
		input:     ti,
		spinner:   sp,
		exportDir: ".",
	}
	for _, opt := range opts {
		opt(e)
	}
	e.setView(s.View())
	return e
}

// Init implements tea.Model.
func (e *Editor) Init() tea.Cmd {
	return waitForEvent(e.adapter)
}

// Close releases the event subscription.
func (e *Editor) Close() {
	if e.adapter != nil {
		e.adapter.Close()
	}
}

// Update implements tea.Model.
func (e *Editor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		e.width = msg.Width
		return e, nil

	case tea.KeyMsg:
		return e.handleKey(msg)

	case spinner.TickMsg:
		if !e.busy {
			return e, nil
		}
		var cmd tea.Cmd
		e.spinner, cmd = e.spinner.Update(msg)
		return e, cmd

	case SavedMsg:
		e.busy = false
		if msg.Err != nil {
			e.setError(msg.Err)
			e.setView(e.session.View())
			return e, nil
		}
		e.setView(msg.Result.View)
		e.notice = ""
		if msg.Result.Warning != "" {
			e.status, e.statusErr = msg.Result.Warning, true
		} else {
			e.status, e.statusErr = "Settings saved", false
		}
		return e, nil

	case ExportedMsg:
		e.busy = false
		if msg.Err != nil {
			e.setError(msg.Err)
			return e, nil
		}
		e.status, e.statusErr = "Exported to "+msg.Path, false
		if msg.Copied != nil {
			e.status += "; " + msg.Copied.Describe()
		}
		return e, nil

	case LoadedMsg:
		e.busy = false
		if msg.Err != nil {
			e.setError(msg.Err)
			return e, nil
		}
		e.setView(msg.View)
		e.notice = ""
		e.status, e.statusErr = "Settings reloaded", false
		return e, nil

	case ExternalChangeMsg:
		if msg.Cleared {
			e.notice = "Settings were cleared elsewhere. Press r to reload."
		} else {
			e.notice = "Settings were changed elsewhere. Press r to reload."
		}
		return e, waitForEvent(e.adapter)
	}
	return e, nil
}

func (e *Editor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if e.confirm != "" {
		return e.handleConfirmKey(msg)
	}
	if e.editing {
		return e.handleEditKey(msg)
	}
	if e.busy && msg.String() != "ctrl+c" {
		return e, nil
	}

	switch msg.String() {
	case "up", "k":
		if e.cursor > 0 {
			e.cursor--
		}
	case "down", "j":
		if e.cursor < len(e.fields)-1 {
			e.cursor++
		}
	case "home", "g":
		e.cursor = 0
	case "end", "G":
		e.cursor = len(e.fields) - 1
	case " ":
		e.activate(true)
	case "enter":
		return e, e.activate(false)
	case "ctrl+s":
		if !e.view.SaveEnabled {
			e.status, e.statusErr = "Nothing to save", false
			return e, nil
		}
		e.busy = true
		e.status = ""
		return e, tea.Batch(e.spinner.Tick, e.saveCmd())
	case "e":
		e.busy = true
		e.status = ""
		return e, tea.Batch(e.spinner.Tick, e.exportCmd())
	case "r":
		return e, e.leave(TargetReload, nil)
	case "q", "ctrl+c", "esc":
		return e, e.leave(TargetQuit, nil)
	}
	return e, nil
}

// activate toggles the selected switch or checkbox, cycles a select, or
// opens the text input. Space never opens the input.
func (e *Editor) activate(spaceOnly bool) tea.Cmd {
	spec := e.selected()
	if e.view.Fields.Disabled(spec.ID) {
		e.status, e.statusErr = fmt.Sprintf("%s is disabled while %s is off", spec.Label, spec.Block), true
		return nil
	}

	switch {
	case spec.Master:
		enabled := !e.view.Document.Enabled(spec.Block)
		e.apply(e.session.Toggle(e.ctx, spec.Block, enabled))
	case spec.Kind == core.KindCheckbox:
		current, _ := e.value(spec).(bool)
		e.apply(e.session.Change(e.ctx, spec.ID, !current))
	case spec.Kind == core.KindSelect:
		e.apply(e.session.Change(e.ctx, spec.ID, e.nextOption(spec)))
	case !spaceOnly:
		e.editing = true
		e.input.SetValue(formatValue(e.value(spec)))
		e.input.CursorEnd()
		if spec.Secret() {
			e.input.EchoMode = textinput.EchoPassword
		} else {
			e.input.EchoMode = textinput.EchoNormal
		}
		return e.input.Focus()
	}
	return nil
}

func (e *Editor) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		spec := e.selected()
		e.editing = false
		e.input.Blur()
		e.apply(e.session.Change(e.ctx, spec.ID, e.input.Value()))
		return e, nil
	case "esc":
		e.editing = false
		e.input.Blur()
		return e, nil
	}
	var cmd tea.Cmd
	e.input, cmd = e.input.Update(msg)
	return e, cmd
}

func (e *Editor) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	target := e.confirm
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		e.confirm = ""
		yes := true
		return e, e.leave(target, &yes)
	case "n", "esc", "q":
		e.confirm = ""
		no := false
		return e, e.leave(target, &no)
	}
	return e, nil
}

// leave asks the dirty guard whether the form may be left for target,
// opening the confirmation prompt when it needs an answer.
func (e *Editor) leave(target dirty.Target, answer *bool) tea.Cmd {
	ctx := core.WithConfirmation(e.ctx, core.AnswerConfirmation{Answer: answer})
	err := e.session.Navigate(ctx, target)
	switch {
	case errors.Is(err, core.ErrConfirmationRequired):
		e.confirm = target
		return nil
	case errors.Is(err, core.ErrNavigationCancelled):
		e.status, e.statusErr = "Kept your unsaved changes", false
		return nil
	case err != nil:
		e.setError(err)
		return nil
	}

	if target == TargetQuit {
		e.quitting = true
		return tea.Quit
	}
	e.busy = true
	return tea.Batch(e.spinner.Tick, e.loadCmd())
}

func (e *Editor) saveCmd() tea.Cmd {
	ctx, s := e.ctx, e.session
	return func() tea.Msg {
		res, err := s.Save(ctx, session.SaveOptions{})
		return SavedMsg{Result: res, Err: err}
	}
}

func (e *Editor) exportCmd() tea.Cmd {
	ctx, s, dir := e.ctx, e.session, e.exportDir
	return func() tea.Msg {
		res, err := s.Export(ctx, backup.ExportOptions{Timestamped: true})
		if err != nil {
			return ExportedMsg{Err: err}
		}
		path, err := backup.WriteFile(dir, res.Artifact)
		return ExportedMsg{Path: path, Copied: res.Copied, Err: err}
	}
}

func (e *Editor) loadCmd() tea.Cmd {
	ctx, s := e.ctx, e.session
	return func() tea.Msg {
		view, err := s.Load(ctx)
		return LoadedMsg{View: view, Err: err}
	}
}

func (e *Editor) apply(view session.View, err error) {
	if err != nil {
		e.setError(err)
		return
	}
	e.setView(view)
	e.status = ""
}

func (e *Editor) setView(view session.View) {
	e.view = view
	e.styles = NewStyles(SchemeFor(view.Document.Preferences.Theme))
}

func (e *Editor) setError(err error) {
	var de *core.DomainError
	if errors.As(err, &de) {
		e.status = de.Message
	} else {
		e.status = err.Error()
	}
	e.statusErr = true
}

func (e *Editor) selected() core.FieldSpec {
	return e.fields[e.cursor]
}

func (e *Editor) value(spec core.FieldSpec) any {
	v, err := core.DefaultRegistry().Get(e.view.Document, spec.ID)
	if err != nil {
		return nil
	}
	return v
}

// nextOption returns the option after the current one of a select field.
func (e *Editor) nextOption(spec core.FieldSpec) string {
	opts := e.options(spec)
	if len(opts) == 0 {
		return formatValue(e.value(spec))
	}
	current := formatValue(e.value(spec))
	for i, o := range opts {
		if o == current {
			return opts[(i+1)%len(opts)]
		}
	}
	return opts[0]
}

func (e *Editor) options(spec core.FieldSpec) []string {
	switch spec.ID {
	case core.FieldDefaultAI:
		return []string{string(core.AIOpenAI), string(core.AIStackSpot)}
	case core.FieldTheme:
		return []string{string(core.ThemeLight), string(core.ThemeDark), string(core.ThemeAuto)}
	case core.FieldDefaultAnalyseType:
		keys := make([]string, 0, len(e.view.Catalog))
		for k := range e.view.Catalog {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}
	return nil
}

// View implements tea.Model.
func (e *Editor) View() string {
	if e.quitting {
		return ""
	}
	st := e.styles
	var b strings.Builder

	title := "bsqa settings"
	if e.view.Dirty {
		title += "  " + st.Dirty.Render("● unsaved")
	}
	if !e.view.Remote {
		title += "  " + st.Warning.Render("(offline)")
	}
	b.WriteString(st.Header.Render(title))
	b.WriteString("\n")

	section := ""
	for i, spec := range e.fields {
		if s := sectionOf(spec); s != section {
			section = s
			b.WriteString(st.Section.Render(sectionTitle(s)))
			b.WriteString("\n")
		}
		b.WriteString(e.renderField(i, spec))
		b.WriteString("\n")
	}

	if len(e.view.Issues) > 0 {
		b.WriteString("\n")
		for _, issue := range e.view.Issues {
			b.WriteString(st.Warning.Render("⚠ " + issue.Message))
			b.WriteString("\n")
		}
	}
	if e.notice != "" {
		b.WriteString("\n" + st.Notice.Render(e.notice) + "\n")
	}
	if e.busy {
		b.WriteString("\n" + e.spinner.View() + " working...\n")
	} else if e.status != "" {
		style := st.Success
		if e.statusErr {
			style = st.Error
		}
		b.WriteString("\n" + style.Render(e.status) + "\n")
	}

	if e.confirm != "" {
		prompt := dirty.LeaveMessage
		b.WriteString("\n" + st.Modal.Render(prompt+"\n\n[y] yes   [n] no") + "\n")
	}

	b.WriteString(st.Help.Render("↑/↓ move · enter edit · space toggle · ctrl+s save · e export · r reload · q quit"))
	return b.String()
}

func (e *Editor) renderField(i int, spec core.FieldSpec) string {
	st := e.styles
	disabled := e.view.Fields.Disabled(spec.ID)

	label := spec.Label
	if spec.Master {
		label = "Enabled"
	}
	label = lipgloss.NewStyle().Width(st.labelColWidth).Render(label)

	var value string
	switch {
	case e.editing && i == e.cursor:
		value = e.input.View()
	case spec.Master || spec.Kind == core.KindCheckbox:
		if on, _ := e.value(spec).(bool); on {
			value = st.SwitchOn.Render("[x]")
		} else {
			value = st.SwitchOff.Render("[ ]")
		}
	case spec.Secret():
		value = core.MaskSecret(formatValue(e.value(spec)))
	case spec.ID == core.FieldDefaultAnalyseType:
		key := formatValue(e.value(spec))
		value = key
		if name, ok := e.view.Catalog[key]; ok && name != key {
			value = fmt.Sprintf("%s (%s)", key, name)
		}
	default:
		value = formatValue(e.value(spec))
	}

	line := label + " " + value
	for _, issue := range e.view.Issues {
		if issue.Field == spec.ID {
			line += "  " + st.Warning.Render("⚠")
			break
		}
	}

	switch {
	case i == e.cursor && !e.editing:
		return st.Selected.Render("› " + line)
	case disabled:
		return st.Disabled.Render("  " + line)
	default:
		return st.Label.Render("  " + line)
	}
}

func sectionOf(spec core.FieldSpec) string {
	if spec.Block != "" {
		return string(spec.Block)
	}
	if len(spec.Path) > 0 {
		return spec.Path[0]
	}
	return ""
}

func sectionTitle(s string) string {
	switch s {
	case "user":
		return "User"
	case "preferences":
		return "Preferences"
	case string(core.IntegrationJira):
		return "Jira"
	case string(core.IntegrationOpenAI):
		return "OpenAI"
	case string(core.IntegrationStackSpot):
		return "StackSpot"
	}
	return s
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// Run starts the editor on the terminal and blocks until it quits.
func Run(ctx context.Context, s FormSession, opts ...Option) error {
	e := NewEditor(ctx, s, opts...)
	defer e.Close()
	_, err := tea.NewProgram(e, tea.WithContext(ctx)).Run()
	return err
}
