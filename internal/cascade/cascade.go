// Package cascade propagates the integration toggles to the fields they
// govern: disabling a block hides its values in a shadow map and clears
// them, re-enabling restores them.
package cascade

import (
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// Enablement records the toggle of every block as last applied.
type Enablement map[core.Integration]bool

// EnablementOf reads the toggles of doc.
func EnablementOf(doc core.ConfigDocument) Enablement {
	out := make(Enablement, 3)
	for _, in := range core.Integrations() {
		out[in] = doc.Enabled(in)
	}
	return out
}

// Clone returns a copy.
func (e Enablement) Clone() Enablement {
	out := make(Enablement, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// FieldState is the interactivity of one field.
type FieldState struct {
	Disabled bool             `json:"disabled"`
	Block    core.Integration `json:"block,omitempty"`
}

// FieldStates maps every tracked field to its state.
type FieldStates map[core.FieldID]FieldState

// Disabled reports whether id is disabled.
func (s FieldStates) Disabled(id core.FieldID) bool {
	return s[id].Disabled
}

// Transition is a block whose toggle changed since the last application.
type Transition struct {
	Block   core.Integration
	Enabled bool
}

// Result is the outcome of Apply.
type Result struct {
	Document    core.ConfigDocument
	States      FieldStates
	Shadow      core.ShadowValues
	Enablement  Enablement
	Transitions []Transition
}

// Apply runs the cascade for every block independently. prev is the
// enablement seen by the previous call; nil treats every block as
// previously enabled. Neither doc nor shadow is modified.
//
// On enabled to disabled, every dependent value that is non-empty (or has
// a reset default, or is a checkbox) is copied to the shadow map; text is
// then cleared, checkboxes unset and fields with a reset default set to it.
// On disabled to enabled, shadowed values are written back and the block's
// shadow entry is consumed.
func Apply(reg *core.Registry, doc core.ConfigDocument, prev Enablement, shadow core.ShadowValues) Result {
	res := Result{
		Document:   doc,
		States:     make(FieldStates, len(reg.Fields())),
		Shadow:     shadow.Clone(),
		Enablement: EnablementOf(doc),
	}

	for _, in := range core.Integrations() {
		enabled := res.Enablement[in]
		wasEnabled := true
		if prev != nil {
			if v, ok := prev[in]; ok {
				wasEnabled = v
			}
		}

		switch {
		case wasEnabled && !enabled:
			disableBlock(reg, &res.Document, in, res.Shadow)
			res.Transitions = append(res.Transitions, Transition{Block: in, Enabled: false})
		case !wasEnabled && enabled:
			enableBlock(reg, &res.Document, in, res.Shadow)
			res.Transitions = append(res.Transitions, Transition{Block: in, Enabled: true})
		}
	}

	res.States = States(reg, res.Enablement)
	return res
}

// States derives the field states from an enablement without touching any
// value.
func States(reg *core.Registry, en Enablement) FieldStates {
	out := make(FieldStates)
	for _, spec := range reg.Fields() {
		st := FieldState{Block: spec.Block}
		if spec.Block != "" && !spec.Master && !spec.Mandatory {
			st.Disabled = !en[spec.Block]
		}
		out[spec.ID] = st
	}
	return out
}

func disableBlock(reg *core.Registry, doc *core.ConfigDocument, in core.Integration, shadow core.ShadowValues) {
	saved := make(map[core.FieldID]any)
	for _, spec := range reg.Dependents(in) {
		if spec.Mandatory {
			continue
		}
		v, err := reg.Get(*doc, spec.ID)
		if err != nil {
			continue
		}
		if spec.Kind == core.KindCheckbox || spec.Reset != nil || !core.IsEmpty(v) {
			saved[spec.ID] = v
		}
		next := spec.Empty()
		if spec.Reset != nil {
			next = spec.Reset
		}
		_ = reg.Set(doc, spec.ID, next)
	}
	if len(saved) > 0 {
		shadow[in] = saved
	} else {
		delete(shadow, in)
	}
}

func enableBlock(reg *core.Registry, doc *core.ConfigDocument, in core.Integration, shadow core.ShadowValues) {
	for id, v := range shadow[in] {
		_ = reg.Set(doc, id, v)
	}
	delete(shadow, in)
}

// DiscardDisabled drops the shadow entries of blocks that are still
// disabled in en. Saving the form makes the cleared values final.
func DiscardDisabled(shadow core.ShadowValues, en Enablement) core.ShadowValues {
	out := shadow.Clone()
	for in := range out {
		if !en[in] {
			delete(out, in)
		}
	}
	return out
}
