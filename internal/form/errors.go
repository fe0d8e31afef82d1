package form

import (
	"sort"
	"strings"
)

// Errors maps a field name to its current validation message. A missing
// key or an empty message means the field passes. Entry fields use
// "group.index.field" keys.
type Errors map[string]string

func (e Errors) Clone() Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Empty reports whether no field carries a message.
func (e Errors) Empty() bool {
	for _, msg := range e {
		if msg != "" {
			return false
		}
	}
	return true
}

// Any reports whether any of names, or an entry field below them, fails.
func (e Errors) Any(names []string) bool {
	for k, msg := range e {
		if msg != "" && owned(k, names) {
			return true
		}
	}
	return false
}

// Replace drops the messages owned by names and merges fresh in their place.
func (e Errors) Replace(names []string, fresh Errors) {
	for k := range e {
		if owned(k, names) {
			delete(e, k)
		}
	}
	for k, msg := range fresh {
		if msg != "" {
			e[k] = msg
		}
	}
}

// Keys returns the failing field names, sorted.
func (e Errors) Keys() []string {
	keys := make([]string, 0, len(e))
	for k, msg := range e {
		if msg != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func owned(key string, names []string) bool {
	for _, n := range names {
		if key == n || strings.HasPrefix(key, n+".") {
			return true
		}
	}
	return false
}
