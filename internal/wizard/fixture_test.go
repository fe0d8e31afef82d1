package wizard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/healthfirst/portal/internal/form"
	"github.com/healthfirst/portal/internal/platform/notification"
)

func testFlow() *Flow {
	return MustFlow(Flow{
		Name:     "test-registration",
		Title:    "Test Registration",
		DraftKey: "testRegistrationDraft",
		Schema: form.MustSchema(
			form.FieldSpec{Name: "firstName", Kind: form.KindText, Rule: form.Required("First name is required")},
			form.FieldSpec{Name: "lastName", Kind: form.KindText, Rule: form.Required("Last name is required")},
			form.FieldSpec{Name: "primaryPhone", Kind: form.KindText, Mask: form.MaskPhone,
				Rule: form.Chain(form.Required("Phone is required"), form.Phone("Invalid phone number"))},
			form.FieldSpec{Name: "email", Kind: form.KindText, Rule: form.Optional(form.Email("Invalid email"))},
			form.FieldSpec{
				Name:       "contacts",
				Kind:       form.KindGroup,
				MinEntries: 1,
				MaxEntries: 3,
				Item: []form.FieldSpec{
					{Name: "name", Kind: form.KindText, Rule: form.Required("Contact name is required")},
					{Name: "phone", Kind: form.KindText, Mask: form.MaskPhone, Rule: form.Optional(form.Phone("Invalid phone number"))},
				},
			},
			form.FieldSpec{Name: "password", Kind: form.KindText, Secret: true, Rule: form.Password()},
			form.FieldSpec{Name: "confirmPassword", Kind: form.KindText, Secret: true,
				Rule: form.Matches("password", "Passwords do not match"), Watch: []string{"password"}},
			form.FieldSpec{Name: "consent", Kind: form.KindBool, Rule: form.Required("Consent is required")},
		),
		Steps: []Step{
			{Label: "Personal", Fields: []string{"firstName", "lastName"}},
			{Label: "Contact", Fields: []string{"primaryPhone", "email", "contacts"}},
			{Label: "Security", Fields: []string{"password", "confirmPassword", "consent"}},
		},
	})
}

// apply reduces every action and fails the test on the first error.
func apply(t *testing.T, f *Flow, s State, actions ...Action) State {
	t.Helper()
	for _, a := range actions {
		next, err := f.Reduce(s, a)
		if err != nil {
			t.Fatalf("%T%+v: %v", a, a, err)
		}
		s = next
	}
	return s
}

func step0Valid() []Action {
	return []Action{
		SetField{Name: "firstName", Value: "Jane"},
		SetField{Name: "lastName", Value: "Doe"},
	}
}

func step1Valid() []Action {
	return []Action{
		SetField{Name: "primaryPhone", Value: "5551234567"},
		SetField{Name: "contacts.0.name", Value: "John Doe"},
	}
}

func step2Valid() []Action {
	return []Action{
		SetField{Name: "password", Value: "Secret1!"},
		SetField{Name: "confirmPassword", Value: "Secret1!"},
		SetField{Name: "consent", Value: true},
	}
}

// completeState walks a fresh state to the final step with every field valid.
func completeState(t *testing.T, f *Flow) State {
	t.Helper()
	s := f.Start(nil)
	s = apply(t, f, s, step0Valid()...)
	s = apply(t, f, s, Next{})
	s = apply(t, f, s, step1Valid()...)
	s = apply(t, f, s, Next{})
	return apply(t, f, s, step2Valid()...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notification.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n notification.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Title
	}
	return out
}

func (r *recordingNotifier) last() notification.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
