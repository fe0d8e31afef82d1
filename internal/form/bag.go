// Package form holds the value bag, field schema, validation rules and
// derived-value helpers shared by every portal wizard.
package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies the type of value a field holds.
type Kind int

const (
	KindText Kind = iota
	KindBool
	KindNumber
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindGroup:
		return "group"
	}
	return "unknown"
}

// MarshalText renders the kind by name so YAML/JSON exports stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Entry is one item of a repeatable group. Key is session-local: it exists so
// clients can address an entry while editing and is never persisted.
type Entry struct {
	Key    string
	Fields *Bag
}

// Bag is an ordered mapping from field name to value. Values are string,
// bool, float64 (nil when a number is unset) or []Entry for groups. Nested
// records use dotted names such as "homeAddress.street".
type Bag struct {
	names  []string
	values map[string]any
}

func newBag() *Bag {
	return &Bag{values: make(map[string]any)}
}

// NewBag returns a bag holding the default value of every field in schema.
func NewBag(schema *Schema) *Bag {
	b := newBag()
	for _, f := range schema.fields {
		b.Set(f.Name, f.zero())
	}
	return b
}

// Names returns the field names in declaration order.
func (b *Bag) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

func (b *Bag) Has(name string) bool {
	_, ok := b.values[name]
	return ok
}

func (b *Bag) Get(name string) any {
	return b.values[name]
}

// Set stores v under name, appending name when it is new.
func (b *Bag) Set(name string, v any) {
	if _, ok := b.values[name]; !ok {
		b.names = append(b.names, name)
	}
	b.values[name] = v
}

func (b *Bag) Text(name string) string {
	s, _ := b.values[name].(string)
	return s
}

func (b *Bag) Bool(name string) bool {
	v, _ := b.values[name].(bool)
	return v
}

// Number returns the numeric value of name and whether it is set.
func (b *Bag) Number(name string) (float64, bool) {
	v, ok := b.values[name].(float64)
	return v, ok
}

func (b *Bag) Group(name string) []Entry {
	g, _ := b.values[name].([]Entry)
	return g
}

// Clone returns a deep copy. Group entries keep their keys.
func (b *Bag) Clone() *Bag {
	if b == nil {
		return nil
	}
	out := &Bag{
		names:  make([]string, len(b.names)),
		values: make(map[string]any, len(b.values)),
	}
	copy(out.names, b.names)
	for k, v := range b.values {
		if g, ok := v.([]Entry); ok {
			v = cloneEntries(g)
		}
		out.values[k] = v
	}
	return out
}

func cloneEntries(g []Entry) []Entry {
	out := make([]Entry, len(g))
	for i, e := range g {
		out[i] = Entry{Key: e.Key, Fields: e.Fields.Clone()}
	}
	return out
}

// Equal reports whether both bags hold the same names and values. Entry keys
// are ignored since they only live for one session.
func (b *Bag) Equal(o *Bag) bool {
	if b == nil || o == nil {
		return b == o
	}
	if len(b.names) != len(o.names) {
		return false
	}
	for i, name := range b.names {
		if o.names[i] != name {
			return false
		}
		if !valueEqual(b.values[name], o.values[name]) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	ga, aok := a.([]Entry)
	gb, bok := b.([]Entry)
	if aok || bok {
		if !aok || !bok || len(ga) != len(gb) {
			return false
		}
		for i := range ga {
			if !ga[i].Fields.Equal(gb[i].Fields) {
				return false
			}
		}
		return true
	}
	return a == b
}

// Values returns a plain nested copy of the bag suitable for submission:
// groups become []map[string]any and entry keys are dropped.
func (b *Bag) Values() map[string]any {
	out := make(map[string]any, len(b.values))
	for _, name := range b.names {
		v := b.values[name]
		if g, ok := v.([]Entry); ok {
			items := make([]map[string]any, len(g))
			for i, e := range g {
				items[i] = e.Fields.Values()
			}
			v = items
		}
		out[name] = v
	}
	return out
}

// MarshalJSON writes the bag as an object in declaration order. Group
// entries are written as {"key": ..., "values": {...}}.
func (b *Bag) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range b.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		var raw []byte
		if g, ok := b.values[name].([]Entry); ok {
			raw, err = marshalEntries(g)
		} else {
			raw, err = json.Marshal(b.values[name])
		}
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", name, err)
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalEntries(g []Entry) ([]byte, error) {
	type entryJSON struct {
		Key    string `json:"key"`
		Values *Bag   `json:"values"`
	}
	items := make([]entryJSON, len(g))
	for i, e := range g {
		items[i] = entryJSON{Key: e.Key, Values: e.Fields}
	}
	return json.Marshal(items)
}

// newEntryKey issues the session-local key of a group entry.
func newEntryKey() string {
	return uuid.NewString()
}

// SplitEntryPath breaks "group.index.field" into its parts. ok is false when
// name is not an entry path.
func SplitEntryPath(name string) (group string, index int, field string, ok bool) {
	parts := strings.Split(name, ".")
	for i := 1; i+1 < len(parts); i++ {
		idx, err := strconv.Atoi(parts[i])
		if err != nil || idx < 0 {
			continue
		}
		return strings.Join(parts[:i], "."), idx, strings.Join(parts[i+1:], "."), true
	}
	return "", 0, "", false
}

// EntryPath is the inverse of SplitEntryPath.
func EntryPath(group string, index int, field string) string {
	return group + "." + strconv.Itoa(index) + "." + field
}
