package scheduling

import (
	"time"

	"github.com/healthfirst/portal/internal/form"
	"github.com/healthfirst/portal/internal/platform/auth"
	"github.com/healthfirst/portal/internal/wizard"
)

const (
	FlowAvailability = "provider-availability"
	FlowAppointment  = "appointment"
)

var (
	DaysOfWeek = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

	TimeZones = []string{
		"UTC-08:00 Pacific Time (US & Canada)",
		"UTC-07:00 Mountain Time (US & Canada)",
		"UTC-06:00 Central Time (US & Canada)",
		"UTC-05:00 Eastern Time (US & Canada)",
		"UTC+00:00 Greenwich Mean Time",
		"UTC+01:00 Central European Time",
		"UTC+05:30 India Standard Time",
		"UTC+08:00 China Standard Time",
	}

	Providers = []string{"John Doe", "Jane Smith", "Dr. Michael Johnson", "Dr. Sarah Williams", "Dr. Robert Brown"}

	AppointmentModes = []string{"in-person", "video-call", "home"}

	AppointmentTypes = []string{
		"General Checkup", "Follow-up", "Consultation",
		"Emergency", "Routine Visit", "Specialist Consultation",
	}
)

// future fails for local date-times that are not after now().
func future(now func() time.Time, msg string) form.Rule {
	return func(v any, _ *form.Bag) string {
		s, _ := v.(string)
		t, err := ParseDateTime(s, time.UTC)
		if err != nil {
			return ""
		}
		if !t.After(now()) {
			return msg
		}
		return ""
	}
}

func weekSeeds() []map[string]any {
	seeds := make([]map[string]any, len(DaysOfWeek))
	for i, day := range DaysOfWeek {
		seeds[i] = map[string]any{"day": day, "fromTime": "09:00", "tillTime": "18:00"}
	}
	return seeds
}

// AvailabilityFlow is the single-page weekly availability editor.
func AvailabilityFlow() *wizard.Flow {
	schema := form.MustSchema(
		form.FieldSpec{Name: "provider", Kind: form.KindText, Default: Providers[0],
			Rule: form.Chain(form.Required("Provider is required"), form.OneOf(Providers, "Unknown provider"))},
		form.FieldSpec{Name: "timeZone", Kind: form.KindText,
			Rule: form.Chain(form.Required("Time zone is required"), form.OneOf(TimeZones, "Invalid time zone"))},
		form.FieldSpec{
			Name:    "dayAvailabilities",
			Kind:    form.KindGroup,
			Default: weekSeeds(),
			Item: []form.FieldSpec{
				{Name: "day", Kind: form.KindText, Default: "Monday",
					Rule: form.Chain(form.Required("Day is required"), form.OneOf(DaysOfWeek, "Invalid day"))},
				{Name: "fromTime", Kind: form.KindText, Default: "09:00", Watch: []string{"tillTime"}, Rule: form.Chain(
					form.Required("Start time is required"),
					form.TimeOfDay("Invalid time"),
					form.Before("tillTime", "Start time must be before end time"),
				)},
				{Name: "tillTime", Kind: form.KindText, Default: "18:00",
					Rule: form.Chain(form.Required("End time is required"), form.TimeOfDay("Invalid time"))},
			},
		},
		form.FieldSpec{
			Name:    "blockedDays",
			Kind:    form.KindGroup,
			Default: []map[string]any{{}, {}},
			Item: []form.FieldSpec{
				{Name: "date", Kind: form.KindText, Rule: form.Chain(
					form.RequiredWith("Date is required", "fromTime", "tillTime"),
					form.Optional(form.Date("Invalid date")),
				)},
				{Name: "fromTime", Kind: form.KindText, Watch: []string{"tillTime"}, Rule: form.Optional(
					form.TimeOfDay("Invalid time"),
					form.Before("tillTime", "Start time must be before end time"),
				)},
				{Name: "tillTime", Kind: form.KindText, Rule: form.Optional(form.TimeOfDay("Invalid time"))},
			},
		},
	)
	return wizard.MustFlow(wizard.Flow{
		Name:     FlowAvailability,
		Title:    "Provider Availability",
		DraftKey: "providerAvailabilityDraft",
		Schema:   schema,
		Steps: []wizard.Step{
			{Label: "Availability", Fields: []string{"provider", "timeZone", "dayAvailabilities", "blockedDays"}},
		},
		Roles: []string{auth.RoleProvider},
	})
}

// AppointmentFlow is the single-page booking form.
func AppointmentFlow(now func() time.Time) *wizard.Flow {
	schema := form.MustSchema(
		form.FieldSpec{Name: "patientName", Kind: form.KindText, Rule: form.Chain(
			form.Required("Patient name is required"),
			form.MaxLen(100, "Patient name must be less than 100 characters"),
		)},
		form.FieldSpec{Name: "appointmentMode", Kind: form.KindText, Default: "in-person",
			Rule: form.Chain(form.Required("Appointment mode is required"), form.OneOf(AppointmentModes, "Invalid appointment mode"))},
		form.FieldSpec{Name: "provider", Kind: form.KindText,
			Rule: form.Chain(form.Required("Provider is required"), form.OneOf(Providers, "Unknown provider"))},
		form.FieldSpec{Name: "estimatedAmount", Kind: form.KindText,
			Rule: form.Optional(form.NonNegative("Please enter a valid amount"))},
		form.FieldSpec{Name: "reasonForVisit", Kind: form.KindText,
			Rule: form.Optional(form.MaxLen(500, "Reason must be less than 500 characters"))},
		form.FieldSpec{Name: "appointmentType", Kind: form.KindText,
			Rule: form.Chain(form.Required("Appointment type is required"), form.OneOf(AppointmentTypes, "Invalid appointment type"))},
		form.FieldSpec{Name: "dateTime", Kind: form.KindText, Rule: form.Chain(
			form.Required("Date and time is required"),
			form.DateTime("Invalid date and time"),
			future(now, "Appointment must be in the future"),
		)},
	)
	return wizard.MustFlow(wizard.Flow{
		Name:     FlowAppointment,
		Title:    "Appointment",
		DraftKey: "appointmentDraft",
		Schema:   schema,
		Steps: []wizard.Step{
			{Label: "Appointment", Fields: schema.Names()},
		},
		Roles: []string{auth.RoleProvider},
	})
}
