package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/healthfirst/portal/internal/form"
)

var (
	ErrStepInvalid    = errors.New("current step has invalid fields")
	ErrFinalStep      = errors.New("already on the final step; submit instead")
	ErrForwardJump    = errors.New("cannot jump ahead of the current step")
	ErrStepOutOfRange = errors.New("step index out of range")
	ErrNotFinalStep   = errors.New("submit is only allowed from the final step")
	ErrSubmitInvalid  = errors.New("form has invalid fields")
	ErrNotSubmitting  = errors.New("no submission in flight")
	ErrBusy           = errors.New("submission in progress")
	ErrClosed         = errors.New("wizard already submitted")
)

// Action is an event applied to a State by Flow.Reduce.
type Action interface {
	action()
}

// SetField stores a raw value. Name is a top-level field or an entry path
// such as "emergencyContacts.0.phone".
type SetField struct {
	Name  string
	Value any
}

// AddEntry appends a default entry to a repeatable group.
type AddEntry struct {
	Group string
}

// RemoveEntry drops one entry, addressed by Key when set and by Index
// otherwise.
type RemoveEntry struct {
	Group string
	Index int
	Key   string
}

type Next struct{}

type Previous struct{}

// Jump selects a step directly. Only the current or an earlier step is
// allowed.
type Jump struct {
	Step int
}

// Submit validates the whole bag from the final step.
type Submit struct{}

type SubmitSucceeded struct {
	ID string
}

type SubmitFailed struct {
	Err error
}

func (SetField) action()        {}
func (AddEntry) action()        {}
func (RemoveEntry) action()     {}
func (Next) action()            {}
func (Previous) action()        {}
func (Jump) action()            {}
func (Submit) action()          {}
func (SubmitSucceeded) action() {}
func (SubmitFailed) action()    {}

// Reduce applies a to s and returns the state to adopt. The returned state
// is meaningful even when err is non-nil: a blocked Next or Submit carries
// the fresh error map while keeping the active step.
func (f *Flow) Reduce(s State, a Action) (State, error) {
	switch s.Status {
	case StatusSubmitted:
		return s, ErrClosed
	case StatusSubmitting:
		switch a.(type) {
		case SubmitSucceeded, SubmitFailed:
		default:
			return s, ErrBusy
		}
	}

	next := s.Clone()
	switch a := a.(type) {
	case SetField:
		return next, f.setField(&next, a)
	case AddEntry:
		entry, err := f.Schema.NewEntry(a.Group)
		if err != nil {
			return s, err
		}
		if spec, _ := f.Schema.Field(a.Group); spec.MaxEntries > 0 && len(next.Bag.Group(a.Group)) >= spec.MaxEntries {
			return s, fmt.Errorf("%w: %s holds at most %d", form.ErrMaxEntries, a.Group, spec.MaxEntries)
		}
		next.Bag.Set(a.Group, append(next.Bag.Group(a.Group), entry))
		return next, nil
	case RemoveEntry:
		return next, f.removeEntry(&next, a)
	case Next:
		return f.next(next)
	case Previous:
		if next.ActiveStep > 0 {
			next.ActiveStep--
		}
		return next, nil
	case Jump:
		if a.Step < 0 || a.Step > f.Last() {
			return s, fmt.Errorf("%w: %d", ErrStepOutOfRange, a.Step)
		}
		if a.Step > s.ActiveStep {
			return s, ErrForwardJump
		}
		next.ActiveStep = a.Step
		return next, nil
	case Submit:
		return f.submit(next)
	case SubmitSucceeded:
		if s.Status != StatusSubmitting {
			return s, ErrNotSubmitting
		}
		next.Status = StatusSubmitted
		next.SubmissionID = a.ID
		return next, nil
	case SubmitFailed:
		if s.Status != StatusSubmitting {
			return s, ErrNotSubmitting
		}
		next.Status = StatusEditing
		next.ActiveStep = f.Last()
		return next, nil
	}
	return s, fmt.Errorf("unsupported action %T", a)
}

func (f *Flow) setField(s *State, a SetField) error {
	if group, idx, field, ok := form.SplitEntryPath(a.Name); ok {
		item, ok := f.Schema.Item(group)
		if !ok {
			return fmt.Errorf("%w: %s", form.ErrUnknownField, a.Name)
		}
		entries := s.Bag.Group(group)
		if idx >= len(entries) {
			return fmt.Errorf("%w: %s", form.ErrEntryIndex, a.Name)
		}
		v, err := item.Coerce(field, a.Value)
		if err != nil {
			return err
		}
		entries[idx].Fields.Set(field, v)
		f.touch(s, a.Name)
		for _, dep := range item.Dependents(field) {
			if path := form.EntryPath(group, idx, dep); s.Touched[path] {
				f.revalidate(s, path)
			}
		}
		return nil
	}

	v, err := f.Schema.Coerce(a.Name, a.Value)
	if err != nil {
		return err
	}
	s.Bag.Set(a.Name, v)
	f.touch(s, a.Name)
	for _, dep := range f.Schema.Dependents(a.Name) {
		if s.Touched[dep] {
			f.revalidate(s, dep)
		}
	}
	return nil
}

func (f *Flow) touch(s *State, name string) {
	s.Touched[name] = true
	f.revalidate(s, name)
}

func (f *Flow) revalidate(s *State, name string) {
	if msg := f.Schema.Validate(name, s.Bag); msg != "" {
		s.Errors[name] = msg
		return
	}
	delete(s.Errors, name)
}

func (f *Flow) removeEntry(s *State, a RemoveEntry) error {
	spec, ok := f.Schema.Field(a.Group)
	if !ok || spec.Kind != form.KindGroup {
		return fmt.Errorf("%w: %s is not a group", form.ErrUnknownField, a.Group)
	}
	entries := s.Bag.Group(a.Group)
	idx := a.Index
	if a.Key != "" {
		idx = -1
		for i, e := range entries {
			if e.Key == a.Key {
				idx = i
				break
			}
		}
	}
	if idx < 0 || idx >= len(entries) {
		return fmt.Errorf("%w: %s[%d]", form.ErrEntryIndex, a.Group, idx)
	}
	if len(entries)-1 < spec.MinEntries {
		return fmt.Errorf("%w: %s keeps at least %d", form.ErrMinEntries, a.Group, spec.MinEntries)
	}
	kept := make([]form.Entry, 0, len(entries)-1)
	kept = append(kept, entries[:idx]...)
	kept = append(kept, entries[idx+1:]...)
	s.Bag.Set(a.Group, kept)
	shiftEntries(s.Errors, a.Group, idx)
	shiftEntries(s.Touched, a.Group, idx)
	return nil
}

// shiftEntries drops the keys of entry idx and renumbers the entries after it.
func shiftEntries[V any](m map[string]V, group string, idx int) {
	moved := make(map[string]V)
	for k, v := range m {
		g, i, field, ok := form.SplitEntryPath(k)
		if !ok || g != group || i < idx {
			continue
		}
		delete(m, k)
		if i > idx {
			moved[form.EntryPath(g, i-1, field)] = v
		}
	}
	for k, v := range moved {
		m[k] = v
	}
}

func (f *Flow) next(s State) (State, error) {
	if s.ActiveStep >= f.Last() {
		return s, ErrFinalStep
	}
	fields := f.Steps[s.ActiveStep].Fields
	fresh := f.Schema.ValidateFields(fields, s.Bag)
	s.Errors.Replace(fields, fresh)
	for _, name := range fields {
		s.Touched[name] = true
	}
	if !fresh.Empty() {
		return s, &ValidationError{Err: ErrStepInvalid, Fields: fresh}
	}
	s.ActiveStep++
	return s, nil
}

func (f *Flow) submit(s State) (State, error) {
	if s.ActiveStep != f.Last() {
		return s, ErrNotFinalStep
	}
	all := f.Schema.ValidateAll(s.Bag)
	s.Errors = all
	for _, name := range f.Schema.Names() {
		s.Touched[name] = true
	}
	if !all.Empty() {
		return s, &ValidationError{Err: ErrSubmitInvalid, Fields: all}
	}
	s.Status = StatusSubmitting
	return s, nil
}

// ValidationError carries the failing fields of a blocked Next or Submit.
// It unwraps to ErrStepInvalid or ErrSubmitInvalid.
type ValidationError struct {
	Err    error
	Fields form.Errors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Fields.Keys(), ", "))
}

func (e *ValidationError) Unwrap() error { return e.Err }
