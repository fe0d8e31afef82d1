package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SlotDuration is the length of one bookable appointment.
const SlotDuration = 30 * time.Minute

const localDateTime = "2006-01-02T15:04"

// DayHours is a weekly opening window, "HH:MM" to "HH:MM".
type DayHours struct {
	Day  string `json:"day"`
	From string `json:"from_time"`
	Till string `json:"till_time"`
}

// BlockedPeriod closes part of a date. Blank times block the whole day.
type BlockedPeriod struct {
	Date string `json:"date"`
	From string `json:"from_time,omitempty"`
	Till string `json:"till_time,omitempty"`
}

// Availability is a provider's weekly schedule. The newest one submitted for
// a provider is the one in force.
type Availability struct {
	ID        uuid.UUID       `json:"id"`
	Provider  string          `json:"provider"`
	TimeZone  string          `json:"time_zone"`
	Days      []DayHours      `json:"days"`
	Blocked   []BlockedPeriod `json:"blocked,omitempty"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// Location returns the fixed-offset zone named by TimeZone.
func (a *Availability) Location() *time.Location {
	return ZoneFor(a.TimeZone)
}

// Covers reports whether a slot starting at t lies inside the weekly hours
// and outside every blocked period.
func (a *Availability) Covers(t time.Time) bool {
	local := t.In(a.Location())
	start := local.Format("15:04")
	end := local.Add(SlotDuration).Format("15:04")
	if end < start {
		return false
	}
	open := false
	for _, d := range a.Days {
		if d.Day == local.Weekday().String() && d.From <= start && end <= d.Till {
			open = true
			break
		}
	}
	if !open {
		return false
	}
	date := local.Format("2006-01-02")
	for _, b := range a.Blocked {
		if b.Date != date {
			continue
		}
		if b.From == "" || b.Till == "" {
			return false
		}
		if start < b.Till && b.From < end {
			return false
		}
	}
	return true
}

// Slots lists the start times of every slot on date (YYYY-MM-DD, in the
// provider's zone) that Covers accepts.
func (a *Availability) Slots(date string) ([]time.Time, error) {
	loc := a.Location()
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	var out []time.Time
	for t := day; t.Before(day.Add(24 * time.Hour)); t = t.Add(SlotDuration) {
		if a.Covers(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ZoneFor turns a "UTC-05:00 Eastern Time" label into a fixed zone. Unknown
// labels fall back to UTC.
func ZoneFor(label string) *time.Location {
	if len(label) < 9 || !strings.HasPrefix(label, "UTC") {
		return time.UTC
	}
	sign := 1
	switch label[3] {
	case '-':
		sign = -1
	case '+':
	default:
		return time.UTC
	}
	hours, err1 := strconv.Atoi(label[4:6])
	minutes, err2 := strconv.Atoi(label[7:9])
	if err1 != nil || err2 != nil || label[6] != ':' {
		return time.UTC
	}
	return time.FixedZone(label[:9], sign*(hours*3600+minutes*60))
}

// ParseDateTime accepts RFC 3339 or a local "YYYY-MM-DDTHH:MM" read in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localDateTime, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date-time %q: %w", s, err)
	}
	return t, nil
}

// Appointment is a booked visit.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PatientName     string    `json:"patient_name"`
	Mode            string    `json:"appointment_mode"`
	Provider        string    `json:"provider"`
	Type            string    `json:"appointment_type"`
	Reason          string    `json:"reason_for_visit,omitempty"`
	EstimatedAmount *float64  `json:"estimated_amount,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// End is when the appointment's slot closes.
func (a *Appointment) End() time.Time { return a.ScheduledAt.Add(SlotDuration) }

// Overlaps reports whether two appointments share any of their slots.
func (a *Appointment) Overlaps(other *Appointment) bool {
	return a.Provider == other.Provider && a.ScheduledAt.Before(other.End()) && other.ScheduledAt.Before(a.End())
}

type values map[string]any

func (v values) str(key string) string {
	s, _ := v[key].(string)
	return strings.TrimSpace(s)
}

func (v values) entries(key string) []values {
	raw, _ := v[key].([]map[string]any)
	out := make([]values, len(raw))
	for i, e := range raw {
		out[i] = values(e)
	}
	return out
}

// AvailabilityFromValues builds an availability from the
// provider-availability values. Blank blocked-day rows are dropped.
func AvailabilityFromValues(raw map[string]any) *Availability {
	v := values(raw)
	a := &Availability{
		Provider: v.str("provider"),
		TimeZone: v.str("timeZone"),
	}
	for _, e := range v.entries("dayAvailabilities") {
		a.Days = append(a.Days, DayHours{Day: e.str("day"), From: e.str("fromTime"), Till: e.str("tillTime")})
	}
	for _, e := range v.entries("blockedDays") {
		if e.str("date") == "" {
			continue
		}
		a.Blocked = append(a.Blocked, BlockedPeriod{Date: e.str("date"), From: e.str("fromTime"), Till: e.str("tillTime")})
	}
	return a
}

// AppointmentFromValues builds an appointment from the appointment values.
// A local date-time is read in loc.
func AppointmentFromValues(raw map[string]any, loc *time.Location) (*Appointment, error) {
	v := values(raw)
	at, err := ParseDateTime(v.str("dateTime"), loc)
	if err != nil {
		return nil, err
	}
	a := &Appointment{
		PatientName: v.str("patientName"),
		Mode:        v.str("appointmentMode"),
		Provider:    v.str("provider"),
		Type:        v.str("appointmentType"),
		Reason:      v.str("reasonForVisit"),
		ScheduledAt: at.UTC(),
	}
	if s := v.str("estimatedAmount"); s != "" {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse estimated amount: %w", err)
		}
		a.EstimatedAmount = &n
	}
	return a, nil
}
