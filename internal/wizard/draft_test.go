package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/platform/kvstore"
)

// countingStore wraps a store and counts calls per operation.
type countingStore struct {
	kvstore.Store
	mu      sync.Mutex
	sets    int
	removes int
	failGet error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: kvstore.NewMemory()}
}

func (c *countingStore) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, key, value)
}

func (c *countingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if c.failGet != nil {
		return "", false, c.failGet
	}
	return c.Store.Get(ctx, key)
}

func (c *countingStore) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	c.removes++
	c.mu.Unlock()
	return c.Store.Remove(ctx, key)
}

func (c *countingStore) counts() (sets, removes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets, c.removes
}

func TestDrafts_KeyIncludesOwner(t *testing.T) {
	d := NewDrafts(kvstore.NewMemory(), testFlow(), "owner-1", zerolog.Nop())
	if d.Key() != "testRegistrationDraft:owner-1" {
		t.Errorf("unexpected key %q", d.Key())
	}
}

func TestDrafts_RoundTrip(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil), step0Valid()...)
	s = apply(t, f, s,
		SetField{Name: "email", Value: "jane@example.com"},
		SetField{Name: "primaryPhone", Value: "5551234567"},
		AddEntry{Group: "contacts"},
		SetField{Name: "contacts.0.name", Value: "John"},
		SetField{Name: "contacts.1.phone", Value: "5559876543"},
		SetField{Name: "consent", Value: true},
	)

	d := NewDrafts(kvstore.NewMemory(), f, "owner-1", zerolog.Nop())
	ctx := context.Background()
	if err := d.Save(ctx, s.Bag); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok := d.Load(ctx)
	if !ok {
		t.Fatal("expected a draft")
	}
	if !loaded.Equal(s.Bag) {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", cmp.Diff(s.Bag.Values(), loaded.Values()))
	}
}

func TestDrafts_SecretsNeverStored(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil),
		SetField{Name: "firstName", Value: "Jane"},
		SetField{Name: "password", Value: "Secret1!"},
		SetField{Name: "confirmPassword", Value: "Secret1!"},
	)
	store := kvstore.NewMemory()
	d := NewDrafts(store, f, "owner-1", zerolog.Nop())
	ctx := context.Background()
	if err := d.Save(ctx, s.Bag); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, _, _ := store.Get(ctx, d.Key())
	if strings.Contains(raw, "Secret1!") || strings.Contains(raw, "password") {
		t.Errorf("secret leaked into draft: %s", raw)
	}
	loaded, ok := d.Load(ctx)
	if !ok {
		t.Fatal("expected a draft")
	}

	// Everything but the secret fields comes back unchanged.
	want := s.Bag.Clone()
	want.Set("password", "")
	want.Set("confirmPassword", "")
	if !loaded.Equal(want) {
		t.Errorf("round trip mismatch outside secrets (-want +loaded):\n%s", cmp.Diff(want.Values(), loaded.Values()))
	}
	if loaded.Equal(s.Bag) {
		t.Error("secret values should not survive a round trip")
	}
}

func TestDrafts_RecordFormat(t *testing.T) {
	f := testFlow()
	s := apply(t, f, f.Start(nil), SetField{Name: "firstName", Value: "Jane"})
	store := kvstore.NewMemory()
	d := NewDrafts(store, f, "owner-1", zerolog.Nop())
	ctx := context.Background()
	if err := d.Save(ctx, s.Bag); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, _, _ := store.Get(ctx, d.Key())
	var rec struct {
		Version int                        `json:"version"`
		Flow    string                     `json:"flow"`
		Values  map[string]json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("draft is not JSON: %v", err)
	}
	if rec.Version != 1 || rec.Flow != f.Name {
		t.Errorf("unexpected header: %+v", rec)
	}
	// Values follow field order and entries carry no keys.
	values := raw[strings.Index(raw, `"values":`):]
	if strings.Index(values, `"firstName"`) > strings.Index(values, `"lastName"`) {
		t.Errorf("values not in field order: %s", values)
	}
	if bytes.Contains(rec.Values["contacts"], []byte(`"key"`)) {
		t.Errorf("entry keys stored: %s", rec.Values["contacts"])
	}
}

func TestDrafts_LoadAbsentOrBroken(t *testing.T) {
	f := testFlow()
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{not json"},
		{"wrong flow", `{"version":1,"flow":"other","values":{"firstName":"x"}}`},
		{"wrong version", `{"version":9,"flow":"test-registration","values":{"firstName":"x"}}`},
		{"no values", `{"version":1,"flow":"test-registration"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kvstore.NewMemory()
			d := NewDrafts(store, f, "o", zerolog.Nop())
			if err := store.Set(ctx, d.Key(), tt.raw); err != nil {
				t.Fatal(err)
			}
			if _, ok := d.Load(ctx); ok {
				t.Error("expected no draft")
			}
		})
	}

	d := NewDrafts(kvstore.NewMemory(), f, "o", zerolog.Nop())
	if _, ok := d.Load(ctx); ok {
		t.Error("empty slot produced a draft")
	}
}

func TestDrafts_LoadStoreErrorIsNoDraft(t *testing.T) {
	store := newCountingStore()
	store.failGet = errors.New("disk gone")
	var logs bytes.Buffer
	d := NewDrafts(store, testFlow(), "o", zerolog.New(&logs))

	if _, ok := d.Load(context.Background()); ok {
		t.Error("expected no draft")
	}
	if !strings.Contains(logs.String(), "disk gone") {
		t.Errorf("store error not logged: %s", logs.String())
	}
}

func TestDrafts_PartialMerge(t *testing.T) {
	f := testFlow()
	store := kvstore.NewMemory()
	var logs bytes.Buffer
	d := NewDrafts(store, f, "o", zerolog.New(&logs))
	ctx := context.Background()

	raw := `{"version":1,"flow":"test-registration","values":{` +
		`"firstName":"Jane",` +
		`"middleName":"Q",` +
		`"consent":"maybe",` +
		`"password":"leaked",` +
		`"primaryPhone":"5551234567",` +
		`"contacts":[]}}`
	if err := store.Set(ctx, d.Key(), raw); err != nil {
		t.Fatal(err)
	}

	bag, ok := d.Load(ctx)
	if !ok {
		t.Fatal("expected a draft")
	}
	if bag.Text("firstName") != "Jane" {
		t.Errorf("firstName = %q", bag.Text("firstName"))
	}
	if bag.Text("primaryPhone") != "(555) 123-4567" {
		t.Errorf("stored phone not re-masked: %q", bag.Text("primaryPhone"))
	}
	if bag.Bool("consent") {
		t.Error("unparseable consent should fall back to the default")
	}
	if bag.Text("password") != "" {
		t.Error("secret restored from draft")
	}
	if bag.Text("lastName") != "" || !bag.Has("lastName") {
		t.Error("missing field not defaulted")
	}
	if got := len(bag.Group("contacts")); got != 1 {
		t.Errorf("group not padded to its minimum: %d entries", got)
	}
	for _, want := range []string{"middleName", "consent", "password"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("dropped field %s not logged: %s", want, logs.String())
		}
	}
}

func TestDrafts_Clear(t *testing.T) {
	store := kvstore.NewMemory()
	f := testFlow()
	d := NewDrafts(store, f, "o", zerolog.Nop())
	ctx := context.Background()
	if err := d.Save(ctx, f.Start(nil).Bag); err != nil {
		t.Fatal(err)
	}
	if err := d.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if store.Len() != 0 {
		t.Error("slot still present")
	}
	if err := d.Clear(ctx); err != nil {
		t.Errorf("clearing an empty slot: %v", err)
	}
}

func TestDrafts_OwnersDoNotShareSlots(t *testing.T) {
	f := testFlow()
	store := kvstore.NewMemory()
	ctx := context.Background()
	a := NewDrafts(store, f, "a", zerolog.Nop())
	b := NewDrafts(store, f, "b", zerolog.Nop())

	s := apply(t, f, f.Start(nil), SetField{Name: "firstName", Value: "Ann"})
	if err := a.Save(ctx, s.Bag); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Load(ctx); ok {
		t.Error("owner b saw owner a's draft")
	}
}
