package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrKind         = errors.New("value does not match field kind")
	ErrEntryIndex   = errors.New("group entry index out of range")
	ErrMinEntries   = errors.New("group would drop below its minimum entries")
	ErrMaxEntries   = errors.New("group is full")
)

// FieldSpec declares one field of a flow.
type FieldSpec struct {
	Name    string
	Label   string
	Kind    Kind
	Default any
	Mask    Mask
	Rule    Rule

	// Watch lists the fields Rule reads besides its own value. A change to
	// any of them revalidates this field once it has been touched.
	Watch []string

	// Secret fields are never written to drafts and skip markup cleaning.
	Secret bool

	// Group only.
	Item       []FieldSpec
	MinEntries int
	MaxEntries int // zero is unbounded
}

func (f FieldSpec) zero() any {
	switch f.Kind {
	case KindText:
		if s, ok := f.Default.(string); ok {
			return f.Mask.Apply(s)
		}
		return ""
	case KindBool:
		v, _ := f.Default.(bool)
		return v
	case KindNumber:
		switch d := f.Default.(type) {
		case float64:
			return d
		case int:
			return float64(d)
		}
		return nil
	case KindGroup:
		return f.defaultEntries()
	}
	return nil
}

func (f FieldSpec) defaultEntries() []Entry {
	item := f.itemSchema()
	var seeds []map[string]any
	if d, ok := f.Default.([]map[string]any); ok {
		seeds = d
	}
	n := len(seeds)
	if n < f.MinEntries {
		n = f.MinEntries
	}
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		fields := NewBag(item)
		if i < len(seeds) {
			for k, v := range seeds[i] {
				if cv, err := item.Coerce(k, v); err == nil {
					fields.Set(k, cv)
				}
			}
		}
		entries = append(entries, Entry{Key: newEntryKey(), Fields: fields})
	}
	return entries
}

func (f FieldSpec) itemSchema() *Schema {
	s, err := NewSchema(f.Item...)
	if err != nil {
		panic(fmt.Sprintf("form: group %s: %v", f.Name, err))
	}
	return s
}

// Schema is the ordered set of fields a flow owns.
type Schema struct {
	fields []FieldSpec
	index  map[string]int
	items  map[string]*Schema
}

// NewSchema checks names are unique and non-empty.
func NewSchema(fields ...FieldSpec) (*Schema, error) {
	s := &Schema{
		fields: fields,
		index:  make(map[string]int, len(fields)),
		items:  make(map[string]*Schema),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		s.index[f.Name] = i
		if f.Kind == KindGroup {
			item, err := NewSchema(f.Item...)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", f.Name, err)
			}
			s.items[f.Name] = item
		}
	}
	for _, f := range fields {
		for _, w := range f.Watch {
			if _, ok := s.index[w]; !ok {
				return nil, fmt.Errorf("field %s watches undeclared field %q", f.Name, w)
			}
		}
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(fields ...FieldSpec) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic("form: " + err.Error())
	}
	return s
}

func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

func (s *Schema) Field(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// Item returns the schema of a group's entries.
func (s *Schema) Item(group string) (*Schema, bool) {
	item, ok := s.items[group]
	return item, ok
}

// Dependents returns the fields whose rules watch name.
func (s *Schema) Dependents(name string) []string {
	var out []string
	for _, f := range s.fields {
		for _, w := range f.Watch {
			if w == name {
				out = append(out, f.Name)
			}
		}
	}
	return out
}

// NewEntry returns a default-initialized entry for group.
func (s *Schema) NewEntry(group string) (Entry, error) {
	item, ok := s.items[group]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s is not a group", ErrUnknownField, group)
	}
	return Entry{Key: newEntryKey(), Fields: NewBag(item)}, nil
}

// Coerce converts raw input into the value kind of field name. Text is
// cleaned of markup and masked; numbers accept JSON numbers or numeric
// strings, with "" meaning unset.
func (s *Schema) Coerce(name string, raw any) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	switch f.Kind {
	case KindText:
		var str string
		switch v := raw.(type) {
		case string:
			str = v
		case nil:
			str = ""
		case float64:
			str = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			str = v.String()
		default:
			return nil, fmt.Errorf("%w: %s wants text, got %T", ErrKind, name, raw)
		}
		if !f.Secret {
			str = CleanText(str)
		}
		return f.Mask.Apply(str), nil
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s wants bool", ErrKind, name)
			}
			return b, nil
		}
		return nil, fmt.Errorf("%w: %s wants bool, got %T", ErrKind, name, raw)
	case KindNumber:
		switch v := raw.(type) {
		case nil:
			return nil, nil
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: %s wants a number", ErrKind, name)
			}
			return n, nil
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return nil, nil
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s wants a number", ErrKind, name)
			}
			return n, nil
		}
		return nil, fmt.Errorf("%w: %s wants a number, got %T", ErrKind, name, raw)
	}
	return nil, fmt.Errorf("%w: %s is a group; edit its entries", ErrKind, name)
}

// Validate runs the rule of a top-level or entry field against bag and
// returns "" when it passes. Entry fields ("group.0.field") are checked
// against their entry, so item rules see sibling values.
func (s *Schema) Validate(name string, bag *Bag) string {
	if group, idx, field, ok := SplitEntryPath(name); ok {
		item, ok := s.items[group]
		if !ok {
			return ""
		}
		entries := bag.Group(group)
		if idx >= len(entries) {
			return ""
		}
		return item.Validate(field, entries[idx].Fields)
	}
	f, ok := s.Field(name)
	if !ok {
		panic(fmt.Sprintf("form: validate undeclared field %q", name))
	}
	if !bag.Has(name) {
		panic(fmt.Sprintf("form: bag has no entry for declared field %q", name))
	}
	if f.Rule == nil {
		return ""
	}
	return f.Rule(bag.Get(name), bag)
}

// ValidateFields validates names (and, for groups, every entry field) and
// returns only the failures.
func (s *Schema) ValidateFields(names []string, bag *Bag) Errors {
	errs := Errors{}
	for _, name := range names {
		if msg := s.Validate(name, bag); msg != "" {
			errs[name] = msg
		}
		item, ok := s.items[name]
		if !ok {
			continue
		}
		for i, e := range bag.Group(name) {
			for sub, msg := range item.ValidateFields(item.Names(), e.Fields) {
				errs[EntryPath(name, i, sub)] = msg
			}
		}
	}
	return errs
}

// ValidateAll validates every declared field.
func (s *Schema) ValidateAll(bag *Bag) Errors {
	return s.ValidateFields(s.Names(), bag)
}
