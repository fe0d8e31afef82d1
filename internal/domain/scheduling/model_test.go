package scheduling

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var eastern = time.FixedZone("UTC-05:00", -5*3600)

func weekdayAvailability() *Availability {
	a := &Availability{Provider: "John Doe", TimeZone: "UTC-05:00 Eastern Time (US & Canada)"}
	for _, day := range DaysOfWeek[:5] {
		a.Days = append(a.Days, DayHours{Day: day, From: "09:00", Till: "17:00"})
	}
	return a
}

func TestZoneFor(t *testing.T) {
	tests := []struct {
		label  string
		offset int
	}{
		{"UTC-05:00 Eastern Time (US & Canada)", -5 * 3600},
		{"UTC+05:30 India Standard Time", 5*3600 + 30*60},
		{"UTC+00:00 Greenwich Mean Time", 0},
		{"", 0},
		{"Eastern", 0},
		{"UTC*05:00", 0},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, ZoneFor(tt.label)).Zone()
			if offset != tt.offset {
				t.Errorf("expected offset %d, got %d", tt.offset, offset)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	local, err := ParseDateTime("2024-06-17T10:00", eastern)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 6, 17, 15, 0, 0, 0, time.UTC); !local.Equal(want) {
		t.Errorf("local: expected %v, got %v", want, local)
	}

	abs, err := ParseDateTime("2024-06-17T10:00:00Z", eastern)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 6, 17, 10, 0, 0, 0, time.UTC); !abs.Equal(want) {
		t.Errorf("rfc3339: expected %v, got %v", want, abs)
	}

	if _, err := ParseDateTime("next monday", eastern); err == nil {
		t.Error("expected an error for garbage")
	}
}

func TestAvailability_Covers(t *testing.T) {
	a := weekdayAvailability()
	a.Blocked = []BlockedPeriod{
		{Date: "2024-06-18"},
		{Date: "2024-06-19", From: "12:00", Till: "13:00"},
	}
	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, 6, day, hour, minute, 0, 0, eastern)
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday open", at(17, 9, 0), true},
		{"last slot", at(17, 16, 30), true},
		{"slot runs past close", at(17, 16, 45), false},
		{"before open", at(17, 8, 30), false},
		{"saturday", at(15, 10, 0), false},
		{"whole day blocked", at(18, 10, 0), false},
		{"before lunch block", at(19, 11, 30), true},
		{"inside lunch block", at(19, 12, 0), false},
		{"straddles block", at(19, 11, 45), false},
		{"after lunch block", at(19, 13, 0), true},
		{"utc instant in zone", time.Date(2024, 6, 17, 14, 0, 0, 0, time.UTC), true},
		{"utc instant before open", time.Date(2024, 6, 17, 13, 0, 0, 0, time.UTC), false},
		{"crosses midnight", at(17, 23, 45), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Covers(tt.t); got != tt.want {
				t.Errorf("Covers(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestAvailability_Slots(t *testing.T) {
	a := weekdayAvailability()
	a.Days[0] = DayHours{Day: "Monday", From: "09:00", Till: "11:00"}
	a.Blocked = []BlockedPeriod{{Date: "2024-06-17", From: "10:00", Till: "10:30"}}

	slots, err := a.Slots("2024-06-17")
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2024, 6, 17, 9, 0, 0, 0, eastern),
		time.Date(2024, 6, 17, 9, 30, 0, 0, eastern),
		time.Date(2024, 6, 17, 10, 30, 0, 0, eastern),
	}
	if diff := cmp.Diff(want, slots, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}

	if slots, _ := a.Slots("2024-06-15"); len(slots) != 0 {
		t.Errorf("saturday: expected no slots, got %v", slots)
	}
	if _, err := a.Slots("17/06/2024"); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func TestAppointment_Overlaps(t *testing.T) {
	base := time.Date(2024, 6, 17, 14, 0, 0, 0, time.UTC)
	a := &Appointment{Provider: "John Doe", ScheduledAt: base}

	tests := []struct {
		name  string
		other *Appointment
		want  bool
	}{
		{"same start", &Appointment{Provider: "John Doe", ScheduledAt: base}, true},
		{"inside", &Appointment{Provider: "John Doe", ScheduledAt: base.Add(15 * time.Minute)}, true},
		{"back to back", &Appointment{Provider: "John Doe", ScheduledAt: base.Add(SlotDuration)}, false},
		{"ends at start", &Appointment{Provider: "John Doe", ScheduledAt: base.Add(-SlotDuration)}, false},
		{"other provider", &Appointment{Provider: "Jane Smith", ScheduledAt: base}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Overlaps(tt.other); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if got := tt.other.Overlaps(a); got != tt.want {
				t.Errorf("not symmetric: got %v", got)
			}
		})
	}
}

func TestAvailabilityFromValues(t *testing.T) {
	got := AvailabilityFromValues(map[string]any{
		"provider": "Jane Smith",
		"timeZone": TimeZones[0],
		"dayAvailabilities": []map[string]any{
			{"day": "Monday", "fromTime": "08:00", "tillTime": "12:00"},
		},
		"blockedDays": []map[string]any{
			{"date": "2024-12-25", "fromTime": "", "tillTime": ""},
			{"date": "", "fromTime": "", "tillTime": ""},
			{"date": " 2024-12-31 ", "fromTime": "12:00", "tillTime": "18:00"},
		},
	})
	want := &Availability{
		Provider: "Jane Smith",
		TimeZone: TimeZones[0],
		Days:     []DayHours{{Day: "Monday", From: "08:00", Till: "12:00"}},
		Blocked: []BlockedPeriod{
			{Date: "2024-12-25"},
			{Date: "2024-12-31", From: "12:00", Till: "18:00"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("availability mismatch (-want +got):\n%s", diff)
	}
}

func TestAppointmentFromValues(t *testing.T) {
	raw := map[string]any{
		"patientName":     "Ann Lee",
		"appointmentMode": "video-call",
		"provider":        "John Doe",
		"estimatedAmount": "75.5",
		"reasonForVisit":  "Follow-up on labs",
		"appointmentType": "Follow-up",
		"dateTime":        "2024-06-17T10:00",
	}
	got, err := AppointmentFromValues(raw, eastern)
	if err != nil {
		t.Fatal(err)
	}
	amount := 75.5
	want := &Appointment{
		PatientName:     "Ann Lee",
		Mode:            "video-call",
		Provider:        "John Doe",
		Type:            "Follow-up",
		Reason:          "Follow-up on labs",
		EstimatedAmount: &amount,
		ScheduledAt:     time.Date(2024, 6, 17, 15, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("appointment mismatch (-want +got):\n%s", diff)
	}

	raw["estimatedAmount"] = ""
	if got, err := AppointmentFromValues(raw, eastern); err != nil || got.EstimatedAmount != nil {
		t.Errorf("blank amount: got %v, %v", got, err)
	}

	raw["dateTime"] = "soon"
	if _, err := AppointmentFromValues(raw, eastern); err == nil {
		t.Error("expected an error for a bad date-time")
	}
}
