package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/platform/kvstore"
	"github.com/healthfirst/portal/internal/platform/notification"
)

type sessionFixture struct {
	flow     *Flow
	store    *countingStore
	notifier *recordingNotifier
	sess     *Session
}

func newSessionFixture(t *testing.T, sub Submitter, interval time.Duration) *sessionFixture {
	t.Helper()
	f := testFlow()
	store := newCountingStore()
	notifier := &recordingNotifier{}
	if sub == nil {
		sub = SubmitterFunc(func(context.Context, string, map[string]any) (string, error) {
			return "P123456", nil
		})
	}
	sess := NewSession(SessionConfig{
		ID:               "sess-1",
		Owner:            "owner-1",
		Flow:             f,
		Drafts:           NewDrafts(store, f, "owner-1", zerolog.Nop()),
		Submitter:        sub,
		Notifier:         notifier,
		Logger:           zerolog.Nop(),
		AutosaveInterval: interval,
	})
	t.Cleanup(func() { _ = sess.Unmount(context.Background()) })
	return &sessionFixture{flow: f, store: store, notifier: notifier, sess: sess}
}

// fillAll drives the session to the final step with every field valid.
func (fx *sessionFixture) fillAll(t *testing.T) {
	t.Helper()
	groups := [][]Action{step0Valid(), step1Valid(), step2Valid()}
	for i, actions := range groups {
		for _, a := range actions {
			if _, err := fx.sess.Dispatch(a); err != nil {
				t.Fatalf("%+v: %v", a, err)
			}
		}
		if i < len(groups)-1 {
			if _, err := fx.sess.Dispatch(Next{}); err != nil {
				t.Fatalf("next from step %d: %v", i, err)
			}
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_DispatchBeforeMount(t *testing.T) {
	fx := newSessionFixture(t, nil, time.Hour)
	if _, err := fx.sess.Dispatch(Next{}); !errors.Is(err, ErrNotMounted) {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}
	if err := fx.sess.Save(context.Background()); !errors.Is(err, ErrNotMounted) {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}
}

func TestSession_MountFresh(t *testing.T) {
	fx := newSessionFixture(t, nil, time.Hour)
	st := fx.sess.Mount(context.Background())
	if st.ActiveStep != 0 || st.Bag.Text("firstName") != "" {
		t.Errorf("unexpected fresh state: %+v", st)
	}
	if titles := fx.notifier.titles(); len(titles) != 0 {
		t.Errorf("fresh mount notified: %v", titles)
	}
}

func TestSession_MountRestoresDraft(t *testing.T) {
	fx := newSessionFixture(t, nil, time.Hour)
	ctx := context.Background()
	saved := apply(t, fx.flow, fx.flow.Start(nil), SetField{Name: "firstName", Value: "Jane"})
	if err := NewDrafts(fx.store, fx.flow, "owner-1", zerolog.Nop()).Save(ctx, saved.Bag); err != nil {
		t.Fatal(err)
	}

	st := fx.sess.Mount(ctx)
	if st.Bag.Text("firstName") != "Jane" {
		t.Errorf("draft not restored: %v", st.Bag.Values())
	}
	if st.ActiveStep != 0 {
		t.Errorf("restored draft moved to step %d", st.ActiveStep)
	}
	n := fx.notifier.last()
	if n.Title != "Draft Loaded" || n.Severity != notification.SeverityInfo || n.Topic != "sess-1" {
		t.Errorf("unexpected notice: %+v", n)
	}

	// A second mount does not reload or notify again.
	fx.sess.Mount(ctx)
	if got := len(fx.notifier.titles()); got != 1 {
		t.Errorf("expected 1 notice, got %d", got)
	}
}

func TestSession_AutosaveWritesAndStopsOnUnmount(t *testing.T) {
	fx := newSessionFixture(t, nil, 10*time.Millisecond)
	ctx := context.Background()
	fx.sess.Mount(ctx)
	if _, err := fx.sess.Dispatch(SetField{Name: "firstName", Value: "Jane"}); err != nil {
		t.Fatal(err)
	}

	d := NewDrafts(fx.store, fx.flow, "owner-1", zerolog.Nop())
	waitFor(t, "autosave", func() bool {
		bag, ok := d.Load(ctx)
		return ok && bag.Text("firstName") == "Jane"
	})

	if err := fx.sess.Unmount(ctx); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	sets, _ := fx.store.counts()
	time.Sleep(50 * time.Millisecond)
	if after, _ := fx.store.counts(); after != sets {
		t.Errorf("autosave kept writing after unmount: %d -> %d", sets, after)
	}
}

func TestSession_UnmountTakesFinalSnapshot(t *testing.T) {
	fx := newSessionFixture(t, nil, time.Hour)
	ctx := context.Background()
	fx.sess.Mount(ctx)
	if _, err := fx.sess.Dispatch(SetField{Name: "lastName", Value: "Doe"}); err != nil {
		t.Fatal(err)
	}
	if err := fx.sess.Unmount(ctx); err != nil {
		t.Fatal(err)
	}
	bag, ok := NewDrafts(fx.store, fx.flow, "owner-1", zerolog.Nop()).Load(ctx)
	if !ok || bag.Text("lastName") != "Doe" {
		t.Error("final snapshot missing")
	}
	if err := fx.sess.Unmount(ctx); err != nil {
		t.Errorf("second unmount: %v", err)
	}
}

func TestSession_DispatchRejectsSubmitActions(t *testing.T) {
	fx := newSessionFixture(t, nil, time.Hour)
	fx.sess.Mount(context.Background())
	for _, a := range []Action{Submit{}, SubmitSucceeded{ID: "x"}, SubmitFailed{}} {
		if _, err := fx.sess.Dispatch(a); err == nil {
			t.Errorf("%T dispatched", a)
		}
	}
}

func TestSession_SubmitSuccess(t *testing.T) {
	var got map[string]any
	sub := SubmitterFunc(func(_ context.Context, flow string, values map[string]any) (string, error) {
		if flow != "test-registration" {
			t.Errorf("flow = %q", flow)
		}
		got = values
		return "P654321", nil
	})
	fx := newSessionFixture(t, sub, time.Hour)
	ctx := context.Background()
	fx.sess.Mount(ctx)
	fx.fillAll(t)
	if err := fx.sess.Save(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := fx.sess.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Status != StatusSubmitted || st.SubmissionID != "P654321" {
		t.Errorf("unexpected state: %+v", st)
	}
	if got["firstName"] != "Jane" || got["password"] != "Secret1!" || got["consent"] != true {
		t.Errorf("submitter got %v", got)
	}

	_, removes := fx.store.counts()
	if removes != 1 {
		t.Errorf("expected draft cleared once, got %d removes", removes)
	}
	if _, ok, _ := fx.store.Get(ctx, "testRegistrationDraft:owner-1"); ok {
		t.Error("draft survived a successful submission")
	}
	n := fx.notifier.last()
	if n.Title != "Test Registration Complete" || n.Message != "Reference ID: P654321" || n.Severity != notification.SeveritySuccess {
		t.Errorf("unexpected notice: %+v", n)
	}

	// Closed sessions refuse edits and never write the draft again.
	if _, err := fx.sess.Dispatch(SetField{Name: "firstName", Value: "X"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := fx.sess.Unmount(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := fx.store.Get(ctx, "testRegistrationDraft:owner-1"); ok {
		t.Error("unmount recreated the draft")
	}
}

func TestSession_SubmitFailureKeepsBag(t *testing.T) {
	boom := errors.New("registry offline")
	calls := 0
	sub := SubmitterFunc(func(context.Context, string, map[string]any) (string, error) {
		calls++
		return "", boom
	})
	fx := newSessionFixture(t, sub, time.Hour)
	ctx := context.Background()
	fx.sess.Mount(ctx)
	fx.fillAll(t)
	before := fx.sess.State()

	st, err := fx.sess.Submit(ctx)
	if !errors.Is(err, ErrSubmission) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped submission error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("submitter called %d times", calls)
	}
	if st.Status != StatusEditing || st.ActiveStep != fx.flow.Last() {
		t.Errorf("unexpected state: status=%s step=%d", st.Status, st.ActiveStep)
	}
	if !st.Bag.Equal(before.Bag) {
		t.Error("bag changed by failed submission")
	}
	n := fx.notifier.last()
	if n.Title != "Submission Failed" || n.Message != "registry offline" || n.Severity != notification.SeverityError {
		t.Errorf("unexpected notice: %+v", n)
	}
	if _, removes := fx.store.counts(); removes != 0 {
		t.Error("draft cleared after a failed submission")
	}
}

func TestSession_SubmitInvalidNeverCallsSubmitter(t *testing.T) {
	called := false
	sub := SubmitterFunc(func(context.Context, string, map[string]any) (string, error) {
		called = true
		return "x", nil
	})
	fx := newSessionFixture(t, sub, time.Hour)
	ctx := context.Background()
	fx.sess.Mount(ctx)
	fx.fillAll(t)
	if _, err := fx.sess.Dispatch(SetField{Name: "consent", Value: false}); err != nil {
		t.Fatal(err)
	}

	_, err := fx.sess.Submit(ctx)
	if !errors.Is(err, ErrSubmitInvalid) {
		t.Fatalf("expected ErrSubmitInvalid, got %v", err)
	}
	if called {
		t.Error("submitter called with invalid data")
	}
}

func TestSession_BusyWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	sub := SubmitterFunc(func(context.Context, string, map[string]any) (string, error) {
		<-release
		return "P111111", nil
	})
	fx := newSessionFixture(t, sub, time.Hour)
	ctx := context.Background()
	fx.sess.Mount(ctx)
	fx.fillAll(t)

	done := make(chan error, 1)
	go func() {
		_, err := fx.sess.Submit(ctx)
		done <- err
	}()
	waitFor(t, "submitting", func() bool { return fx.sess.State().IsSubmitting() })

	if !fx.sess.View().IsSubmitting {
		t.Error("view does not report the submission")
	}
	if _, err := fx.sess.Dispatch(Previous{}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if _, err := fx.sess.Submit(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit: expected ErrBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if fx.sess.State().Status != StatusSubmitted {
		t.Error("session not submitted")
	}
}

func TestSession_ViewCarriesSessionID(t *testing.T) {
	fx := newSessionFixture(t, nil, time.Hour)
	fx.sess.Mount(context.Background())
	if v := fx.sess.View(); v.SessionID != "sess-1" || v.Flow != "test-registration" {
		t.Errorf("unexpected view: %+v", v)
	}
}

func TestSession_DiscardNotifierDefault(t *testing.T) {
	f := testFlow()
	sess := NewSession(SessionConfig{
		ID:     "s",
		Owner:  "o",
		Flow:   f,
		Drafts: NewDrafts(kvstore.NewMemory(), f, "o", zerolog.Nop()),
		Logger: zerolog.Nop(),
	})
	defer sess.Unmount(context.Background())
	sess.Mount(context.Background())
	if sess.interval != DefaultAutosaveInterval {
		t.Errorf("interval = %v", sess.interval)
	}
}
