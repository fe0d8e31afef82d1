package form

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Rule checks one value. bag is the whole bag the value lives in (the
// entry bag for group items) and lets a rule compare against siblings.
// It returns "" when the value passes.
type Rule func(v any, bag *Bag) string

// Common field shapes.
var (
	phonePattern   = regexp.MustCompile(`^\+?1?\s*\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}$`)
	zipPattern     = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	licensePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,15}$`)
	ssnPattern     = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	timePattern    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	looseEmail     = regexp.MustCompile(`^\S+@\S+$`)
	strictEmail    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	hasLower   = regexp.MustCompile(`[a-z]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasDigit   = regexp.MustCompile(`\d`)
	hasSpecial = regexp.MustCompile(`[!@#$%^&*]`)
)

// Chain runs rules in order and returns the first failure.
func Chain(rules ...Rule) Rule {
	return func(v any, bag *Bag) string {
		for _, r := range rules {
			if msg := r(v, bag); msg != "" {
				return msg
			}
		}
		return ""
	}
}

// Optional runs rules only when the value is present.
func Optional(rules ...Rule) Rule {
	chained := Chain(rules...)
	return func(v any, bag *Bag) string {
		if isEmpty(v) {
			return ""
		}
		return chained(v, bag)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case []Entry:
		return len(t) == 0
	}
	return false
}

// Required fails on empty text, an unset number, an unchecked box or an
// empty group.
func Required(msg string) Rule {
	return func(v any, _ *Bag) string {
		if isEmpty(v) {
			return msg
		}
		return ""
	}
}

func text(v any) string {
	s, _ := v.(string)
	return s
}

// MinLen and MaxLen count runes.
func MinLen(n int, msg string) Rule {
	return func(v any, _ *Bag) string {
		if utf8.RuneCountInString(text(v)) < n {
			return msg
		}
		return ""
	}
}

func MaxLen(n int, msg string) Rule {
	return func(v any, _ *Bag) string {
		if utf8.RuneCountInString(text(v)) > n {
			return msg
		}
		return ""
	}
}

// Range checks a number lies in [min, max]. Unset numbers pass; pair with
// Required when the field must be present.
func Range(min, max float64, msg string) Rule {
	return func(v any, _ *Bag) string {
		n, ok := v.(float64)
		if !ok {
			return ""
		}
		if n < min || n > max {
			return msg
		}
		return ""
	}
}

// Pattern matches the text value against re.
func Pattern(re *regexp.Regexp, msg string) Rule {
	return func(v any, _ *Bag) string {
		if !re.MatchString(text(v)) {
			return msg
		}
		return ""
	}
}

// Email accepts local@domain with no whitespace.
func Email(msg string) Rule { return Pattern(looseEmail, msg) }

// StrictEmail additionally wants a dot in the domain.
func StrictEmail(msg string) Rule { return Pattern(strictEmail, msg) }

// Phone ignores whitespace and accepts US numbers with optional +1,
// parentheses and separators.
func Phone(msg string) Rule {
	return func(v any, _ *Bag) string {
		if !phonePattern.MatchString(strings.Join(strings.Fields(text(v)), "")) {
			return msg
		}
		return ""
	}
}

func ZIP(msg string) Rule     { return Pattern(zipPattern, msg) }
func License(msg string) Rule { return Pattern(licensePattern, msg) }
func SSN(msg string) Rule     { return Pattern(ssnPattern, msg) }
func TimeOfDay(msg string) Rule {
	return Pattern(timePattern, msg)
}

// NonNegative parses a decimal amount held as text.
func NonNegative(msg string) Rule {
	return func(v any, _ *Bag) string {
		n, err := strconv.ParseFloat(strings.TrimSpace(text(v)), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return msg
		}
		return ""
	}
}

// Matches is the confirmation rule: the value must equal field other.
func Matches(other, msg string) Rule {
	return func(v any, bag *Bag) string {
		if bag == nil || v != bag.Get(other) {
			return msg
		}
		return ""
	}
}

// RequiredWith fails on a blank value while any of the named siblings is
// filled in.
func RequiredWith(msg string, siblings ...string) Rule {
	return func(v any, bag *Bag) string {
		if !isEmpty(v) || bag == nil {
			return ""
		}
		for _, name := range siblings {
			if !isEmpty(bag.Get(name)) {
				return msg
			}
		}
		return ""
	}
}

// Before checks an HH:MM value is earlier than field other. It passes
// while either side is blank.
func Before(other, msg string) Rule {
	return func(v any, bag *Bag) string {
		from, till := text(v), bag.Text(other)
		if from == "" || till == "" {
			return ""
		}
		if !timePattern.MatchString(from) || !timePattern.MatchString(till) {
			return ""
		}
		if from >= till {
			return msg
		}
		return ""
	}
}

// Date wants a YYYY-MM-DD value.
func Date(msg string) Rule {
	return func(v any, _ *Bag) string {
		if _, err := time.Parse(DateLayout, text(v)); err != nil {
			return msg
		}
		return ""
	}
}

// DateTime wants an RFC 3339 timestamp or a local "YYYY-MM-DDTHH:MM".
func DateTime(msg string) Rule {
	return func(v any, _ *Bag) string {
		s := text(v)
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return ""
		}
		if _, err := time.Parse("2006-01-02T15:04", s); err == nil {
			return ""
		}
		return msg
	}
}

// Past fails for dates after now().
func Past(now func() time.Time, msg string) Rule {
	return func(v any, _ *Bag) string {
		d, err := time.Parse(DateLayout, text(v))
		if err != nil {
			return ""
		}
		if d.After(now()) {
			return msg
		}
		return ""
	}
}

// MinAge fails when the birth date is fewer than years ago.
func MinAge(years int, now func() time.Time, msg string) Rule {
	return func(v any, _ *Bag) string {
		age, err := AgeOn(text(v), now())
		if err != nil {
			return ""
		}
		if age < years {
			return msg
		}
		return ""
	}
}

// OneOf restricts a text value to a fixed option list.
func OneOf(options []string, msg string) Rule {
	set := make(map[string]struct{}, len(options))
	for _, o := range options {
		set[o] = struct{}{}
	}
	return func(v any, _ *Bag) string {
		if _, ok := set[text(v)]; !ok {
			return msg
		}
		return ""
	}
}

// Password enforces the portal password policy, reporting the first unmet
// requirement.
func Password() Rule {
	return func(v any, _ *Bag) string {
		p := text(v)
		switch {
		case p == "":
			return "Password is required"
		case len(p) < 8:
			return "Password must be at least 8 characters"
		case !hasLower.MatchString(p):
			return "Password must contain at least one lowercase letter"
		case !hasUpper.MatchString(p):
			return "Password must contain at least one uppercase letter"
		case !hasDigit.MatchString(p):
			return "Password must contain at least one number"
		case !hasSpecial.MatchString(p):
			return "Password must contain at least one special character"
		}
		return ""
	}
}

// PasswordStrength scores p from 0 to 100 for strength meters.
func PasswordStrength(p string) int {
	score := 0
	if len(p) >= 8 {
		score += 25
	}
	for _, re := range []*regexp.Regexp{hasLower, hasUpper, hasDigit, hasSpecial} {
		if re.MatchString(p) {
			score += 25
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// StrengthLabel names a PasswordStrength score.
func StrengthLabel(score int) string {
	switch {
	case score < 50:
		return "Weak"
	case score < 75:
		return "Fair"
	}
	return "Strong"
}
