package wizard

import (
	"time"

	"github.com/healthfirst/portal/internal/form"
)

// Status is the lifecycle phase of a wizard.
type Status int

const (
	StatusEditing Status = iota
	StatusSubmitting
	StatusSubmitted
)

func (s Status) String() string {
	switch s {
	case StatusEditing:
		return "editing"
	case StatusSubmitting:
		return "submitting"
	case StatusSubmitted:
		return "submitted"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a snapshot of one wizard. The reducer never mutates a State it
// is given.
type State struct {
	ActiveStep   int
	Bag          *form.Bag
	Errors       form.Errors
	Touched      map[string]bool
	Status       Status
	SubmissionID string
}

func (s State) Clone() State {
	out := s
	out.Bag = s.Bag.Clone()
	out.Errors = s.Errors.Clone()
	out.Touched = make(map[string]bool, len(s.Touched))
	for k, v := range s.Touched {
		out.Touched[k] = v
	}
	return out
}

// IsSubmitting reports whether a submission is in flight.
func (s State) IsSubmitting() bool { return s.Status == StatusSubmitting }

// StepView describes one step for clients drawing a step indicator.
type StepView struct {
	Label   string   `json:"label"`
	Fields  []string `json:"fields"`
	Current bool     `json:"current"`
	// Reachable steps can be selected directly.
	Reachable bool `json:"reachable"`
	HasErrors bool `json:"has_errors"`
}

// View is the JSON shape of a session returned to clients. Secret values are
// blanked.
type View struct {
	SessionID    string         `json:"session_id,omitempty"`
	Flow         string         `json:"flow"`
	Title        string         `json:"title,omitempty"`
	ActiveStep   int            `json:"active_step"`
	Steps        []StepView     `json:"steps"`
	Values       *form.Bag      `json:"values"`
	Errors       form.Errors    `json:"errors"`
	Status       Status         `json:"status"`
	IsSubmitting bool           `json:"is_submitting"`
	SubmissionID string         `json:"submission_id,omitempty"`
	Derived      map[string]any `json:"derived,omitempty"`
}

// View renders s for clients of flow f.
func (f *Flow) View(s State, now time.Time) View {
	values := s.Bag.Clone()
	for _, spec := range f.Schema.Fields() {
		if spec.Secret && values.Text(spec.Name) != "" {
			values.Set(spec.Name, "")
		}
	}
	steps := make([]StepView, len(f.Steps))
	for i, st := range f.Steps {
		steps[i] = StepView{
			Label:     st.Label,
			Fields:    st.Fields,
			Current:   i == s.ActiveStep,
			Reachable: i <= s.ActiveStep,
			HasErrors: s.Errors.Any(st.Fields),
		}
	}
	v := View{
		Flow:         f.Name,
		Title:        f.Title,
		ActiveStep:   s.ActiveStep,
		Steps:        steps,
		Values:       values,
		Errors:       s.Errors.Clone(),
		Status:       s.Status,
		IsSubmitting: s.IsSubmitting(),
		SubmissionID: s.SubmissionID,
	}
	if f.Derive != nil {
		v.Derived = f.Derive(s.Bag, now)
	}
	return v
}
