package wizard

import "github.com/healthfirst/portal/internal/form"

// FieldInfo describes a field for clients and the flows export.
type FieldInfo struct {
	Name       string      `json:"name" yaml:"name"`
	Label      string      `json:"label,omitempty" yaml:"label,omitempty"`
	Kind       form.Kind   `json:"kind" yaml:"kind"`
	Mask       form.Mask   `json:"mask,omitempty" yaml:"mask,omitempty"`
	Secret     bool        `json:"secret,omitempty" yaml:"secret,omitempty"`
	MinEntries int         `json:"min_entries,omitempty" yaml:"min_entries,omitempty"`
	MaxEntries int         `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	Item       []FieldInfo `json:"item,omitempty" yaml:"item,omitempty"`
}

// FlowInfo is the public step definition table of a flow.
type FlowInfo struct {
	Name     string      `json:"name" yaml:"name"`
	Title    string      `json:"title" yaml:"title"`
	DraftKey string      `json:"draft_key" yaml:"draft_key"`
	Roles    []string    `json:"roles,omitempty" yaml:"roles,omitempty"`
	Steps    []Step      `json:"steps" yaml:"steps"`
	Fields   []FieldInfo `json:"fields" yaml:"fields"`
}

// Describe returns the public description of f.
func Describe(f *Flow) FlowInfo {
	return FlowInfo{
		Name:     f.Name,
		Title:    f.Title,
		DraftKey: f.DraftKey,
		Roles:    f.Roles,
		Steps:    f.Steps,
		Fields:   describeFields(f.Schema.Fields()),
	}
}

func describeFields(specs []form.FieldSpec) []FieldInfo {
	out := make([]FieldInfo, len(specs))
	for i, s := range specs {
		out[i] = FieldInfo{
			Name:       s.Name,
			Label:      s.Label,
			Kind:       s.Kind,
			Mask:       s.Mask,
			Secret:     s.Secret,
			MinEntries: s.MinEntries,
			MaxEntries: s.MaxEntries,
		}
		if s.Kind == form.KindGroup {
			out[i].Item = describeFields(s.Item)
		}
	}
	return out
}
