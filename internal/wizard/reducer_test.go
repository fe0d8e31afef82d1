package wizard

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/healthfirst/portal/internal/form"
)

func TestNewFlow_UndeclaredField(t *testing.T) {
	_, err := NewFlow(Flow{
		Name:     "broken",
		DraftKey: "brokenDraft",
		Schema:   form.MustSchema(form.FieldSpec{Name: "a"}),
		Steps:    []Step{{Label: "One", Fields: []string{"a", "b"}}},
	})
	if err == nil {
		t.Fatal("expected error for undeclared step field")
	}
}

func TestNewFlow_FieldInTwoSteps(t *testing.T) {
	_, err := NewFlow(Flow{
		Name:     "broken",
		DraftKey: "brokenDraft",
		Schema:   form.MustSchema(form.FieldSpec{Name: "a"}),
		Steps:    []Step{{Label: "One", Fields: []string{"a"}}, {Label: "Two", Fields: []string{"a"}}},
	})
	if err == nil {
		t.Fatal("expected error for a field owned twice")
	}
}

func TestMustFlow_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustFlow(Flow{Name: "empty", DraftKey: "emptyDraft", Schema: form.MustSchema()})
}

func TestStart_DefaultsEveryField(t *testing.T) {
	f := testFlow()
	s := f.Start(nil)
	for _, name := range f.Schema.Names() {
		if !s.Bag.Has(name) {
			t.Errorf("bag missing declared field %s", name)
		}
	}
	if s.ActiveStep != 0 || s.Status != StatusEditing || !s.Errors.Empty() {
		t.Errorf("unexpected initial state: %+v", s)
	}
}

func TestNext_BlocksOnInvalidStep(t *testing.T) {
	f := testFlow()
	s := f.Start(nil)
	s = apply(t, f, s, SetField{Name: "firstName", Value: "Jane"})

	next, err := f.Reduce(s, Next{})
	if !errors.Is(err, ErrStepInvalid) {
		t.Fatalf("expected ErrStepInvalid, got %v", err)
	}
	if next.ActiveStep != 0 {
		t.Errorf("active step moved to %d", next.ActiveStep)
	}
	if next.Errors["lastName"] != "Last name is required" {
		t.Errorf("errors = %v", next.Errors)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["lastName"] == "" {
		t.Errorf("validation error does not carry fields: %v", err)
	}
}

func TestNext_ValidatesOnlyCurrentStep(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil), step0Valid()...)

	next, err := f.Reduce(s, Next{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ActiveStep != 1 {
		t.Errorf("expected step 1, got %d", next.ActiveStep)
	}
	if _, ok := next.Errors["primaryPhone"]; ok {
		t.Error("Next validated a field of a later step")
	}
}

func TestNext_EveryStepAdvancesWhenValid(t *testing.T) {
	f := testFlow()
	s := f.Start(nil)
	fills := [][]Action{step0Valid(), step1Valid(), step2Valid()}
	for i := 0; i < f.Last(); i++ {
		s = apply(t, f, s, fills[i]...)
		next, err := f.Reduce(s, Next{})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if next.ActiveStep != i+1 {
			t.Fatalf("step %d: advanced to %d", i, next.ActiveStep)
		}
		s = next
	}
	if _, err := f.Reduce(s, Next{}); !errors.Is(err, ErrFinalStep) {
		t.Errorf("expected ErrFinalStep, got %v", err)
	}
}

func TestNext_EntryErrorsBlock(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil), step0Valid()...)
	s = apply(t, f, s, Next{}, SetField{Name: "primaryPhone", Value: "5551234567"})

	next, err := f.Reduce(s, Next{})
	if !errors.Is(err, ErrStepInvalid) {
		t.Fatalf("expected ErrStepInvalid, got %v", err)
	}
	if next.Errors["contacts.0.name"] == "" {
		t.Errorf("entry error missing: %v", next.Errors)
	}
}

func TestPrevious_ClampsAndKeepsErrors(t *testing.T) {
	f := testFlow()
	s := f.Start(nil)
	s = apply(t, f, s, Previous{})
	if s.ActiveStep != 0 {
		t.Fatalf("expected clamp at 0, got %d", s.ActiveStep)
	}

	s = apply(t, f, s, step0Valid()...)
	s = apply(t, f, s, Next{})
	blocked, _ := f.Reduce(s, Next{})
	back := apply(t, f, blocked, Previous{})
	if back.ActiveStep != 0 {
		t.Fatalf("expected step 0, got %d", back.ActiveStep)
	}
	if back.Errors["primaryPhone"] == "" {
		t.Error("Previous cleared the errors of the step being left")
	}
}

func TestJump(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil), step0Valid()...)
	s = apply(t, f, s, Next{})

	if _, err := f.Reduce(s, Jump{Step: 2}); !errors.Is(err, ErrForwardJump) {
		t.Errorf("expected ErrForwardJump, got %v", err)
	}
	if _, err := f.Reduce(s, Jump{Step: 7}); !errors.Is(err, ErrStepOutOfRange) {
		t.Errorf("expected ErrStepOutOfRange, got %v", err)
	}
	same := apply(t, f, s, Jump{Step: 1})
	if same.ActiveStep != 1 {
		t.Errorf("jump to current step moved to %d", same.ActiveStep)
	}
	back := apply(t, f, s, Jump{Step: 0})
	if back.ActiveStep != 0 {
		t.Errorf("expected step 0, got %d", back.ActiveStep)
	}
}

func TestJumpBack_DoesNotRevalidate(t *testing.T) {
	f := testFlow()
	s := completeState(t, f)
	// Invalidate an earlier step from the final one, then jump back and forth.
	s = apply(t, f, s, Jump{Step: 0}, SetField{Name: "firstName", Value: ""})
	if s.Errors["firstName"] == "" {
		t.Fatal("edit did not revalidate the edited field")
	}
	s = apply(t, f, s, Jump{Step: 0})
	if s.ActiveStep != 0 {
		t.Fatalf("unexpected step %d", s.ActiveStep)
	}
}

func TestSubmit_ValidatesWholeBag(t *testing.T) {
	f := testFlow()
	s := completeState(t, f)
	// Clear a step-0 field directly in the bag so no edit revalidates it.
	s.Bag.Set("lastName", "")

	next, err := f.Reduce(s, Submit{})
	if !errors.Is(err, ErrSubmitInvalid) {
		t.Fatalf("expected ErrSubmitInvalid, got %v", err)
	}
	if next.ActiveStep != f.Last() {
		t.Errorf("submit moved to step %d", next.ActiveStep)
	}
	if next.Errors["lastName"] != "Last name is required" {
		t.Errorf("errors = %v", next.Errors)
	}
	if next.Status != StatusEditing {
		t.Errorf("status = %s", next.Status)
	}
}

func TestSubmit_OnlyFromFinalStep(t *testing.T) {
	f := testFlow()
	if _, err := f.Reduce(f.Start(nil), Submit{}); !errors.Is(err, ErrNotFinalStep) {
		t.Errorf("expected ErrNotFinalStep, got %v", err)
	}
}

func TestSubmit_Lifecycle(t *testing.T) {
	f := testFlow()
	s := completeState(t, f)

	submitting := apply(t, f, s, Submit{})
	if !submitting.IsSubmitting() {
		t.Fatalf("status = %s", submitting.Status)
	}
	if _, err := f.Reduce(submitting, SetField{Name: "firstName", Value: "X"}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	failed := apply(t, f, submitting, SubmitFailed{Err: errors.New("offline")})
	if failed.Status != StatusEditing || failed.ActiveStep != f.Last() {
		t.Errorf("failed state: status=%s step=%d", failed.Status, failed.ActiveStep)
	}
	if !failed.Bag.Equal(s.Bag) {
		t.Error("bag changed by a failed submission")
	}

	done := apply(t, f, submitting, SubmitSucceeded{ID: "P123456"})
	if done.Status != StatusSubmitted || done.SubmissionID != "P123456" {
		t.Errorf("done state: %+v", done)
	}
	if _, err := f.Reduce(done, Previous{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := f.Reduce(s, SubmitSucceeded{ID: "x"}); !errors.Is(err, ErrNotSubmitting) {
		t.Errorf("expected ErrNotSubmitting, got %v", err)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	f := testFlow()
	s := f.Start(nil)
	before := s.Clone()

	_ = apply(t, f, s, SetField{Name: "firstName", Value: "Jane"}, SetField{Name: "contacts.0.name", Value: "A"})
	_, _ = f.Reduce(s, Next{})

	if !s.Bag.Equal(before.Bag) || len(s.Errors) != 0 || len(s.Touched) != 0 {
		t.Error("reducer mutated the state it was given")
	}
}

func TestSetField_MasksPhone(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil),
		SetField{Name: "primaryPhone", Value: "555"},
		SetField{Name: "primaryPhone", Value: "(555) 1234"},
		SetField{Name: "contacts.0.phone", Value: "555123456799"},
	)
	if got := s.Bag.Text("primaryPhone"); got != "(555) 123-4" {
		t.Errorf("primaryPhone = %q", got)
	}
	if got := s.Bag.Group("contacts")[0].Fields.Text("phone"); got != "(555) 123-4567" {
		t.Errorf("contact phone = %q", got)
	}
}

func TestSetField_RevalidatesTouchedDependents(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil),
		SetField{Name: "password", Value: "Secret1!"},
		SetField{Name: "confirmPassword", Value: "Secret1!"},
	)
	if _, bad := s.Errors["confirmPassword"]; bad {
		t.Fatalf("matching confirmation flagged: %v", s.Errors)
	}
	s = apply(t, f, s, SetField{Name: "password", Value: "Secret2!"})
	if s.Errors["confirmPassword"] != "Passwords do not match" {
		t.Errorf("dependent not revalidated: %v", s.Errors)
	}
}

func TestSetField_UntouchedDependentStaysQuiet(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil), SetField{Name: "password", Value: "Secret1!"})
	if _, ok := s.Errors["confirmPassword"]; ok {
		t.Error("untouched confirmation got an error")
	}
}

func TestSetField_Errors(t *testing.T) {
	f := testFlow()
	s := f.Start(nil)
	tests := []struct {
		action Action
		want   error
	}{
		{SetField{Name: "middleName", Value: "Q"}, form.ErrUnknownField},
		{SetField{Name: "consent", Value: 3.0}, form.ErrKind},
		{SetField{Name: "contacts.4.name", Value: "x"}, form.ErrEntryIndex},
		{SetField{Name: "nothing.0.name", Value: "x"}, form.ErrUnknownField},
	}
	for _, tt := range tests {
		if _, err := f.Reduce(s, tt.action); !errors.Is(err, tt.want) {
			t.Errorf("%+v: expected %v, got %v", tt.action, tt.want, err)
		}
	}
}

func TestEntries_AddAndRemove(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil),
		AddEntry{Group: "contacts"},
		AddEntry{Group: "contacts"},
		SetField{Name: "contacts.0.name", Value: "First"},
		SetField{Name: "contacts.1.name", Value: ""},
		SetField{Name: "contacts.2.name", Value: "Third"},
	)
	if s.Errors["contacts.1.name"] == "" {
		t.Fatalf("expected error on contacts.1.name: %v", s.Errors)
	}

	s = apply(t, f, s, RemoveEntry{Group: "contacts", Index: 1})
	entries := s.Bag.Group("contacts")
	if len(entries) != 2 || entries[1].Fields.Text("name") != "Third" {
		t.Fatalf("unexpected entries after remove: %d", len(entries))
	}
	if _, ok := s.Errors["contacts.1.name"]; ok {
		t.Errorf("removed entry's error survived: %v", s.Errors)
	}
	if !s.Touched["contacts.1.name"] {
		t.Error("touched mark was not shifted down")
	}

	key := entries[0].Key
	s = apply(t, f, s, RemoveEntry{Group: "contacts", Key: key})
	if got := s.Bag.Group("contacts"); len(got) != 1 || got[0].Fields.Text("name") != "Third" {
		t.Fatalf("remove by key removed the wrong entry")
	}

	if _, err := f.Reduce(s, RemoveEntry{Group: "contacts", Index: 0}); !errors.Is(err, form.ErrMinEntries) {
		t.Errorf("expected ErrMinEntries, got %v", err)
	}
	if _, err := f.Reduce(s, AddEntry{Group: "firstName"}); !errors.Is(err, form.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestEntries_MaxEntries(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil),
		AddEntry{Group: "contacts"},
		AddEntry{Group: "contacts"},
	)
	next, err := f.Reduce(s, AddEntry{Group: "contacts"})
	if !errors.Is(err, form.ErrMaxEntries) {
		t.Fatalf("expected ErrMaxEntries, got %v", err)
	}
	if len(next.Bag.Group("contacts")) != 3 {
		t.Errorf("full group changed: %d entries", len(next.Bag.Group("contacts")))
	}
}

func TestShiftEntries(t *testing.T) {
	m := map[string]string{
		"contacts.0.name": "a",
		"contacts.1.name": "b",
		"contacts.2.name": "c",
		"other.1.name":    "x",
		"firstName":       "y",
	}
	shiftEntries(m, "contacts", 1)
	want := map[string]string{
		"contacts.0.name": "a",
		"contacts.1.name": "c",
		"other.1.name":    "x",
		"firstName":       "y",
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("shift mismatch (-want +got):\n%s", diff)
	}
}

func TestView_RedactsSecretsAndDescribesSteps(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil), SetField{Name: "password", Value: "Secret1!"})
	s = apply(t, f, s, step0Valid()...)
	s = apply(t, f, s, Next{})

	v := f.View(s, date(2024, 6, 15))
	if v.Values.Text("password") != "" {
		t.Error("password leaked into view")
	}
	if s.Bag.Text("password") != "Secret1!" {
		t.Error("view redaction changed the session bag")
	}
	if !v.Steps[1].Current || !v.Steps[0].Reachable || v.Steps[2].Reachable {
		t.Errorf("unexpected step views: %+v", v.Steps)
	}
}
