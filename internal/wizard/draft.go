package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/form"
	"github.com/healthfirst/portal/internal/platform/kvstore"
)

const draftVersion = 1

type draftRecord struct {
	Version int                        `json:"version"`
	Flow    string                     `json:"flow"`
	SavedAt time.Time                  `json:"saved_at"`
	Values  map[string]json.RawMessage `json:"values"`
}

// Drafts persists the bag of one flow for one owner in a single slot.
type Drafts struct {
	store  kvstore.Store
	flow   *Flow
	key    string
	logger zerolog.Logger
	now    func() time.Time
}

// NewDrafts binds the slot "<DraftKey>:<owner>" of store.
func NewDrafts(store kvstore.Store, flow *Flow, owner string, logger zerolog.Logger) *Drafts {
	return &Drafts{
		store:  store,
		flow:   flow,
		key:    flow.DraftKey + ":" + owner,
		logger: logger.With().Str("flow", flow.Name).Str("draft_key", flow.DraftKey).Logger(),
		now:    time.Now,
	}
}

// Key is the storage slot.
func (d *Drafts) Key() string { return d.key }

// Save overwrites the slot with bag. Secret fields and entry keys are left
// out.
func (d *Drafts) Save(ctx context.Context, bag *form.Bag) error {
	values, err := encodeValues(d.flow.Schema, bag)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"version":%d,"flow":`, draftVersion)
	name, _ := json.Marshal(d.flow.Name)
	buf.Write(name)
	savedAt, _ := json.Marshal(d.now().UTC())
	buf.WriteString(`,"saved_at":`)
	buf.Write(savedAt)
	buf.WriteString(`,"values":`)
	buf.Write(values)
	buf.WriteByte('}')

	if err := d.store.Set(ctx, d.key, buf.String()); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Load returns the stored bag merged onto schema defaults. An absent,
// unreadable or foreign record counts as no draft.
func (d *Drafts) Load(ctx context.Context) (*form.Bag, bool) {
	raw, ok, err := d.store.Get(ctx, d.key)
	if err != nil {
		d.logger.Error().Err(err).Msg("read draft slot")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var rec draftRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		d.logger.Warn().Err(err).Msg("discarding unparseable draft")
		return nil, false
	}
	if rec.Version != draftVersion || rec.Flow != d.flow.Name || rec.Values == nil {
		d.logger.Warn().Int("version", rec.Version).Str("record_flow", rec.Flow).Msg("discarding foreign draft")
		return nil, false
	}

	bag, dropped := mergeValues(d.flow.Schema, rec.Values)
	if len(dropped) > 0 {
		d.logger.Warn().Strs("dropped", dropped).Msg("draft fields no longer match the form")
	}
	return bag, true
}

// Clear removes the slot.
func (d *Drafts) Clear(ctx context.Context) error {
	if err := d.store.Remove(ctx, d.key); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// encodeValues writes bag as an object in schema order, groups as arrays of
// plain objects.
func encodeValues(schema *form.Schema, bag *form.Bag) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range schema.Fields() {
		if f.Secret {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, _ := json.Marshal(f.Name)
		buf.Write(name)
		buf.WriteByte(':')

		if f.Kind == form.KindGroup {
			item, _ := schema.Item(f.Name)
			buf.WriteByte('[')
			for i, e := range bag.Group(f.Name) {
				if i > 0 {
					buf.WriteByte(',')
				}
				raw, err := encodeValues(item, e.Fields)
				if err != nil {
					return nil, err
				}
				buf.Write(raw)
			}
			buf.WriteByte(']')
			continue
		}
		raw, err := json.Marshal(bag.Get(f.Name))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// mergeValues starts from schema defaults and copies every stored value that
// still fits a declared field. It returns the names it had to drop.
func mergeValues(schema *form.Schema, stored map[string]json.RawMessage) (*form.Bag, []string) {
	bag := form.NewBag(schema)
	var dropped []string
	for name, raw := range stored {
		f, ok := schema.Field(name)
		if !ok || f.Secret {
			dropped = append(dropped, name)
			continue
		}
		if f.Kind == form.KindGroup {
			entries, lost, ok := mergeEntries(schema, f, raw)
			if !ok {
				dropped = append(dropped, name)
				continue
			}
			for _, l := range lost {
				dropped = append(dropped, name+"[]."+l)
			}
			bag.Set(name, entries)
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			dropped = append(dropped, name)
			continue
		}
		cv, err := schema.Coerce(name, v)
		if err != nil {
			dropped = append(dropped, name)
			continue
		}
		bag.Set(name, cv)
	}
	return bag, dropped
}

func mergeEntries(schema *form.Schema, f form.FieldSpec, raw json.RawMessage) ([]form.Entry, []string, bool) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, false
	}
	item, _ := schema.Item(f.Name)
	seen := make(map[string]bool)
	var lost []string
	if f.MaxEntries > 0 && len(items) > f.MaxEntries {
		items = items[:f.MaxEntries]
		lost = append(lost, f.Name+"[overflow]")
	}
	entries := make([]form.Entry, 0, len(items))
	for _, values := range items {
		fields, dropped := mergeValues(item, values)
		for _, d := range dropped {
			if !seen[d] {
				seen[d] = true
				lost = append(lost, d)
			}
		}
		entry, _ := schema.NewEntry(f.Name)
		entry.Fields = fields
		entries = append(entries, entry)
	}
	for len(entries) < f.MinEntries {
		entry, _ := schema.NewEntry(f.Name)
		entries = append(entries, entry)
	}
	return entries, lost, true
}
