// Package dirty tracks whether the settings form differs from what was
// last loaded or saved, and guards navigation away from unsaved changes.
package dirty

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// Warning texts.
const (
	LeaveMessage  = "There are unsaved settings. Discard the changes and leave?"
	UnloadMessage = "There are unsaved settings. Leave without saving?"
)

// Snapshot serializes the tracked fields of doc canonically: a flat object
// keyed by field id, keys sorted. Blank issue types, timeout and max tokens
// read as their defaults, as the form displays them.
func Snapshot(doc core.ConfigDocument) string {
	values := core.DefaultRegistry().Values(doc)
	if core.IsEmpty(values[core.FieldJiraBugIssueTypeID]) {
		values[core.FieldJiraBugIssueTypeID] = core.DefaultBugIssueTypeID
	}
	if core.IsEmpty(values[core.FieldJiraSubBugIssueTypeID]) {
		values[core.FieldJiraSubBugIssueTypeID] = core.DefaultSubBugIssueTypeID
	}
	if core.IsEmpty(values[core.FieldJiraRequestTimeout]) {
		values[core.FieldJiraRequestTimeout] = core.DefaultRequestTimeout
	}
	if core.IsEmpty(values[core.FieldOpenAIMaxTokens]) {
		values[core.FieldOpenAIMaxTokens] = core.DefaultMaxTokens
	}
	// encoding/json sorts map keys.
	b, _ := json.Marshal(values)
	return string(b)
}

// Fingerprint is a short digest of a snapshot, safe to expose since it
// reveals no field values.
func Fingerprint(snapshot string) string {
	sum := sha256.Sum256([]byte(snapshot))
	return hex.EncodeToString(sum[:8])
}

// IsDirty reports whether current differs from baseline.
func IsDirty(current, baseline string) bool {
	return current != baseline
}

// State of a Guard.
type State int

const (
	Clean State = iota
	Dirty
)

func (s State) String() string {
	if s == Dirty {
		return "dirty"
	}
	return "clean"
}

// Target is where a navigation leads.
type Target string

// Targets that leave the form in place, or carry their own confirmation.
const (
	TargetSave     Target = "save"
	TargetTestJira Target = "test-jira"
	TargetTestAI   Target = "test-ai"
	TargetClearAll Target = "clear-all"
)

// Exempt reports whether navigating to t never asks about unsaved changes.
func (t Target) Exempt() bool {
	switch t {
	case TargetSave, TargetTestJira, TargetTestAI, TargetClearAll:
		return true
	}
	return false
}

// Guard is the clean/dirty state machine. It is a value; transitions
// return the next Guard.
type Guard struct {
	baseline string
	current  string
}

// NewGuard starts clean at baseline.
func NewGuard(baseline string) Guard {
	return Guard{baseline: baseline, current: baseline}
}

// Observe records the form's current snapshot. Reverting every edit by hand
// makes the guard clean again.
func (g Guard) Observe(snapshot string) Guard {
	g.current = snapshot
	return g
}

// Rebase makes snapshot the new baseline, after a save or load.
func (g Guard) Rebase(snapshot string) Guard {
	return NewGuard(snapshot)
}

// Baseline returns the snapshot the form is compared against.
func (g Guard) Baseline() string { return g.baseline }

// State returns Clean or Dirty.
func (g Guard) State() State {
	if IsDirty(g.current, g.baseline) {
		return Dirty
	}
	return Clean
}

// Dirty reports whether there are unsaved changes.
func (g Guard) Dirty() bool { return g.State() == Dirty }

// SaveEnabled reports whether the save action is offered.
func (g Guard) SaveEnabled() bool { return g.Dirty() }

// Navigate decides whether leaving for target may proceed. While dirty and
// for non-exempt targets, the port carried by ctx (else port) is asked; a
// declined answer returns core.ErrNavigationCancelled. Leaving never saves.
func (g Guard) Navigate(ctx context.Context, target Target, port core.ConfirmationPort) error {
	if !g.Dirty() || target.Exempt() {
		return nil
	}
	if p, ok := core.ConfirmationFromContext(ctx); ok {
		port = p
	}
	if port == nil {
		return core.ErrConfirmationRequired
	}
	ok, err := port.Confirm(ctx, LeaveMessage)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNavigationCancelled
	}
	return nil
}

// BeforeUnload returns the warning to show when the page is closed, or ""
// when there is nothing to lose.
func (g Guard) BeforeUnload() string {
	if g.Dirty() {
		return UnloadMessage
	}
	return ""
}
