// Package wizard runs multi-step form flows: step tables, the navigation
// reducer, draft persistence and mounted sessions.
package wizard

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/healthfirst/portal/internal/form"
)

// Step is one screen of a flow and the fields it owns.
type Step struct {
	Label  string   `json:"label" yaml:"label"`
	Fields []string `json:"fields" yaml:"fields"`
}

// DeriveFunc computes read-only values shown next to the form, such as the
// patient's age.
type DeriveFunc func(bag *form.Bag, now time.Time) map[string]any

// Flow is a static step definition table bound to its schema. The last
// step is terminal: completing it submits instead of advancing.
type Flow struct {
	Name     string
	Title    string
	DraftKey string
	Schema   *form.Schema
	Steps    []Step

	// Roles, when set, limits who may open the flow.
	Roles  []string
	Derive DeriveFunc
}

// NewFlow checks that the table is usable: at least one step, and every
// step field declared by the schema.
func NewFlow(f Flow) (*Flow, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("flow has no name")
	}
	if f.DraftKey == "" {
		return nil, fmt.Errorf("flow %s has no draft key", f.Name)
	}
	if f.Schema == nil {
		return nil, fmt.Errorf("flow %s has no schema", f.Name)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("flow %s has no steps", f.Name)
	}
	seen := make(map[string]string)
	for _, st := range f.Steps {
		for _, name := range st.Fields {
			if _, ok := f.Schema.Field(name); !ok {
				return nil, fmt.Errorf("flow %s: step %q references undeclared field %q", f.Name, st.Label, name)
			}
			if prev, dup := seen[name]; dup {
				return nil, fmt.Errorf("flow %s: field %q owned by steps %q and %q", f.Name, name, prev, st.Label)
			}
			seen[name] = st.Label
		}
	}
	return &f, nil
}

// MustFlow is like NewFlow but panics. Flow tables are package-level
// literals, so a bad one is a programming error.
func MustFlow(f Flow) *Flow {
	flow, err := NewFlow(f)
	if err != nil {
		panic("wizard: " + err.Error())
	}
	return flow
}

// Last is the index of the terminal step.
func (f *Flow) Last() int { return len(f.Steps) - 1 }

// Start returns the initial state, hydrated from bag when one is given.
func (f *Flow) Start(bag *form.Bag) State {
	if bag == nil {
		bag = form.NewBag(f.Schema)
	}
	return State{
		Bag:     bag,
		Errors:  form.Errors{},
		Touched: map[string]bool{},
		Status:  StatusEditing,
	}
}

// Registry holds the flows a server exposes together with the collaborator
// that receives each flow's submissions.
type Registry struct {
	mu         sync.RWMutex
	flows      map[string]*Flow
	submitters map[string]Submitter
}

func NewRegistry() *Registry {
	return &Registry{
		flows:      make(map[string]*Flow),
		submitters: make(map[string]Submitter),
	}
}

// Register adds a flow. Registering the same name twice panics.
func (r *Registry) Register(f *Flow, sub Submitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.flows[f.Name]; dup {
		panic("wizard: flow registered twice: " + f.Name)
	}
	r.flows[f.Name] = f
	r.submitters[f.Name] = sub
}

func (r *Registry) Get(name string) (*Flow, Submitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[name]
	return f, r.submitters[name], ok
}

// List returns every flow sorted by name.
func (r *Registry) List() []*Flow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Flow, 0, len(r.flows))
	for _, f := range r.flows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
