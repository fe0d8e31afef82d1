package registration

import (
	"time"

	"github.com/healthfirst/portal/internal/form"
	"github.com/healthfirst/portal/internal/wizard"
)

const (
	FlowPatient  = "patient-registration"
	FlowProvider = "provider-registration"

	// MinPatientAge is the youngest a patient may register on their own.
	MinPatientAge = 13
)

// Option lists offered by the registration forms.
var (
	Genders          = []string{"male", "female", "other", "prefer-not-to-say"}
	Languages        = []string{"English", "Spanish", "French", "German", "Chinese", "Other"}
	MaritalStatuses  = []string{"single", "married", "divorced", "widowed", "separated"}
	ContactMethods   = []string{"phone", "email", "text"}
	InsuredRelations = []string{"self", "spouse", "parent", "child", "other"}
	ContactRelations = []string{"spouse", "parent", "child", "sibling", "friend", "other"}
)

func text(name string, rule form.Rule) form.FieldSpec {
	return form.FieldSpec{Name: name, Kind: form.KindText, Rule: rule}
}

func addressFields(prefix string, required bool) []form.FieldSpec {
	wrap := func(msg string, rules ...form.Rule) form.Rule {
		if required {
			return form.Chain(append([]form.Rule{form.Required(msg)}, rules...)...)
		}
		return form.Optional(rules...)
	}
	return []form.FieldSpec{
		text(prefix+".street", wrap("Street address is required", form.MaxLen(200, "Street address must be less than 200 characters"))),
		text(prefix+".city", wrap("City is required", form.MaxLen(100, "City must be less than 100 characters"))),
		text(prefix+".state", wrap("State is required", form.MaxLen(50, "State must be less than 50 characters"))),
		text(prefix+".zipCode", wrap("ZIP code is required", form.ZIP("Invalid ZIP code format"))),
	}
}

func insuranceFields(prefix string) []form.FieldSpec {
	return []form.FieldSpec{
		text(prefix+".provider", form.Optional(form.MaxLen(100, "Insurance provider must be less than 100 characters"))),
		text(prefix+".policyNumber", form.Optional(form.MaxLen(50, "Policy number must be less than 50 characters"))),
		text(prefix+".groupNumber", form.Optional(form.MaxLen(50, "Group number must be less than 50 characters"))),
		text(prefix+".subscriberName", form.Optional(form.MaxLen(100, "Subscriber name must be less than 100 characters"))),
		{Name: prefix + ".relationship", Kind: form.KindText, Default: "self",
			Rule: form.Optional(form.OneOf(InsuredRelations, "Invalid relationship"))},
	}
}

func names(fields []form.FieldSpec) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// PatientFlow is the six-step patient self-registration wizard. now feeds
// the date-of-birth rules and the derived age.
func PatientFlow(now func() time.Time) *wizard.Flow {
	demographics := []form.FieldSpec{
		text("firstName", form.Chain(
			form.Required("First name is required"),
			form.MinLen(2, "First name must be at least 2 characters"),
			form.MaxLen(50, "First name must be less than 50 characters"),
		)),
		text("middleInitial", form.Optional(form.MaxLen(1, "Middle initial must be a single letter"))),
		text("lastName", form.Chain(
			form.Required("Last name is required"),
			form.MinLen(2, "Last name must be at least 2 characters"),
			form.MaxLen(50, "Last name must be less than 50 characters"),
		)),
		text("dateOfBirth", form.Chain(
			form.Required("Date of birth is required"),
			form.Date("Invalid date of birth"),
			form.Past(now, "Date of birth must be in the past"),
			form.MinAge(MinPatientAge, now, "Must be at least 13 years old"),
		)),
		text("gender", form.Chain(form.Required("Gender is required"), form.OneOf(Genders, "Invalid gender value"))),
		{Name: "ssn", Kind: form.KindText, Mask: form.MaskSSN, Rule: form.Optional(form.SSN("Invalid SSN format"))},
		{Name: "preferredLanguage", Kind: form.KindText, Default: "English",
			Rule: form.Optional(form.OneOf(Languages, "Invalid language"))},
		text("maritalStatus", form.Optional(form.OneOf(MaritalStatuses, "Invalid marital status"))),
	}

	contact := addressFields("homeAddress", true)
	contact = append(contact, addressFields("mailingAddress", false)...)
	contact = append(contact,
		form.FieldSpec{Name: "sameAsHome", Kind: form.KindBool},
		form.FieldSpec{Name: "primaryPhone", Kind: form.KindText, Mask: form.MaskPhone,
			Rule: form.Chain(form.Required("Primary phone is required"), form.Phone("Invalid phone number format"))},
		form.FieldSpec{Name: "secondaryPhone", Kind: form.KindText, Mask: form.MaskPhone,
			Rule: form.Optional(form.Phone("Invalid phone number format"))},
		text("email", form.Optional(form.Email("Invalid email format"))),
		form.FieldSpec{Name: "preferredContactMethod", Kind: form.KindText, Default: "phone",
			Rule: form.Optional(form.OneOf(ContactMethods, "Invalid contact method"))},
	)

	insurance := insuranceFields("primaryInsurance")
	insurance = append(insurance, form.FieldSpec{Name: "hasSecondaryInsurance", Kind: form.KindBool})
	insurance = append(insurance, insuranceFields("secondaryInsurance")...)

	emergency := []form.FieldSpec{
		{
			Name:       "emergencyContacts",
			Kind:       form.KindGroup,
			MinEntries: 2,
			MaxEntries: 3,
			Item: []form.FieldSpec{
				text("name", form.Optional(form.MaxLen(100, "Name must be less than 100 characters"))),
				text("relationship", form.Optional(form.OneOf(ContactRelations, "Invalid relationship"))),
				{Name: "phone", Kind: form.KindText, Mask: form.MaskPhone, Rule: form.Optional(form.Phone("Invalid phone number format"))},
			},
		},
		text("medicalPowerOfAttorney.name", form.Optional(form.MaxLen(100, "Name must be less than 100 characters"))),
		text("medicalPowerOfAttorney.relationship", nil),
		{Name: "medicalPowerOfAttorney.phone", Kind: form.KindText, Mask: form.MaskPhone,
			Rule: form.Optional(form.Phone("Invalid phone number format"))},
	}

	medical := []form.FieldSpec{
		text("currentMedications", nil),
		text("allergies", nil),
		text("primaryCarePhysician", form.Optional(form.MaxLen(100, "Physician name must be less than 100 characters"))),
		text("reasonForVisit", form.Required("Reason for visit is required")),
	}

	consent := []form.FieldSpec{
		text("referralSource", nil),
		{Name: "consentTreatment", Kind: form.KindBool, Rule: form.Required("Consent to treatment is required")},
		{Name: "consentPrivacy", Kind: form.KindBool, Rule: form.Required("Acknowledgment of privacy practices is required")},
		{Name: "consentBilling", Kind: form.KindBool, Rule: form.Required("Financial responsibility agreement is required")},
		text("electronicSignature", form.Required("Electronic signature is required")),
		text("providerNotes", nil),
		// A portal account is only opened for patients with an email.
		{Name: "password", Kind: form.KindText, Secret: true, Watch: []string{"email"},
			Rule: form.Chain(
				form.RequiredWith("A password is required when an email is given", "email"),
				form.Optional(form.Password()),
			)},
		{Name: "confirmPassword", Kind: form.KindText, Secret: true, Watch: []string{"password"},
			Rule: form.Chain(
				form.RequiredWith("Please confirm your password", "password"),
				form.Matches("password", "Passwords do not match"),
			)},
	}

	var all []form.FieldSpec
	for _, group := range [][]form.FieldSpec{demographics, contact, insurance, emergency, medical, consent} {
		all = append(all, group...)
	}

	return wizard.MustFlow(wizard.Flow{
		Name:     FlowPatient,
		Title:    "Patient Registration",
		DraftKey: "patientRegistrationDraft",
		Schema:   form.MustSchema(all...),
		Steps: []wizard.Step{
			{Label: "Demographics", Fields: names(demographics)},
			{Label: "Contact", Fields: names(contact)},
			{Label: "Insurance", Fields: names(insurance)},
			{Label: "Emergency", Fields: names(emergency)},
			{Label: "Medical", Fields: names(medical)},
			{Label: "Consent", Fields: names(consent)},
		},
		Derive: derivePatient,
	})
}

func derivePatient(bag *form.Bag, now time.Time) map[string]any {
	out := map[string]any{}
	if age, err := form.AgeOn(bag.Text("dateOfBirth"), now); err == nil {
		out["age"] = age
	}
	out["passwordStrength"] = passwordStrength(bag.Text("password"))
	return out
}

func passwordStrength(p string) map[string]any {
	score := form.PasswordStrength(p)
	return map[string]any{"score": score, "label": form.StrengthLabel(score)}
}

// ProviderFlow is the four-step clinician sign-up wizard.
func ProviderFlow() *wizard.Flow {
	personal := []form.FieldSpec{
		text("firstName", form.Chain(
			form.Required("First name is required"),
			form.MinLen(2, "First name must be at least 2 characters"),
			form.MaxLen(50, "First name must be less than 50 characters"),
		)),
		text("lastName", form.Chain(
			form.Required("Last name is required"),
			form.MinLen(2, "Last name must be at least 2 characters"),
			form.MaxLen(50, "Last name must be less than 50 characters"),
		)),
		text("email", form.Chain(form.Required("Email is required"), form.StrictEmail("Invalid email format"))),
		{Name: "phone", Kind: form.KindText, Mask: form.MaskPhone,
			Rule: form.Chain(form.Required("Phone number is required"), form.Phone("Invalid phone number format"))},
	}
	professional := []form.FieldSpec{
		text("specialization", form.Chain(
			form.Required("Specialization is required"),
			form.MinLen(3, "Specialization must be at least 3 characters"),
			form.MaxLen(100, "Specialization must be less than 100 characters"),
		)),
		text("medicalLicense", form.Chain(
			form.Required("Medical license number is required"),
			form.License("License must be 6-15 alphanumeric characters"),
		)),
		{Name: "yearsOfExperience", Kind: form.KindNumber, Rule: form.Chain(
			form.Required("Years of experience is required"),
			form.Range(0, 50, "Years of experience must be between 0 and 50"),
		)},
	}
	address := []form.FieldSpec{
		text("streetAddress", form.Chain(form.Required("Street address is required"), form.MaxLen(200, "Street address must be less than 200 characters"))),
		text("city", form.Chain(form.Required("City is required"), form.MaxLen(100, "City must be less than 100 characters"))),
		text("state", form.Chain(form.Required("State is required"), form.MaxLen(50, "State must be less than 50 characters"))),
		text("zipCode", form.Chain(form.Required("ZIP code is required"), form.ZIP("Invalid ZIP code format"))),
	}
	security := []form.FieldSpec{
		{Name: "password", Kind: form.KindText, Secret: true, Rule: form.Password()},
		{Name: "confirmPassword", Kind: form.KindText, Secret: true, Watch: []string{"password"},
			Rule: form.Chain(form.Required("Please confirm your password"), form.Matches("password", "Passwords do not match"))},
	}

	var all []form.FieldSpec
	for _, group := range [][]form.FieldSpec{personal, professional, address, security} {
		all = append(all, group...)
	}

	return wizard.MustFlow(wizard.Flow{
		Name:     FlowProvider,
		Title:    "Provider Registration",
		DraftKey: "providerRegistrationDraft",
		Schema:   form.MustSchema(all...),
		Steps: []wizard.Step{
			{Label: "Personal Info", Fields: names(personal)},
			{Label: "Professional", Fields: names(professional)},
			{Label: "Address", Fields: names(address)},
			{Label: "Security", Fields: names(security)},
		},
		Derive: func(bag *form.Bag, _ time.Time) map[string]any {
			return map[string]any{"passwordStrength": passwordStrength(bag.Text("password"))}
		},
	})
}
