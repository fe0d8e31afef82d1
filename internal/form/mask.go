package form

import "strings"

// Mask is a progressive input format recomputed from the raw digits on
// every keystroke, so an already-masked value is never masked twice.
type Mask int

const (
	MaskNone Mask = iota
	MaskPhone
	MaskSSN
)

func (m Mask) Apply(s string) string {
	switch m {
	case MaskPhone:
		return FormatPhone(s)
	case MaskSSN:
		return FormatSSN(s)
	}
	return s
}

func (m Mask) String() string {
	switch m {
	case MaskPhone:
		return "phone"
	case MaskSSN:
		return "ssn"
	}
	return "none"
}

func (m Mask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Digits strips every non-digit character from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone renders up to ten digits as (XXX) XXX-XXXX. Shorter input is
// formatted as far as it goes: "555", "(555) 12", "(555) 123-4".
func FormatPhone(s string) string {
	d := Digits(s)
	if len(d) > 10 {
		d = d[:10]
	}
	switch {
	case len(d) <= 3:
		return d
	case len(d) <= 6:
		return "(" + d[:3] + ") " + d[3:]
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}

// FormatSSN renders up to nine digits as XXX-XX-XXXX.
func FormatSSN(s string) string {
	d := Digits(s)
	if len(d) > 9 {
		d = d[:9]
	}
	switch {
	case len(d) <= 3:
		return d
	case len(d) <= 5:
		return d[:3] + "-" + d[3:]
	}
	return d[:3] + "-" + d[3:5] + "-" + d[5:]
}
