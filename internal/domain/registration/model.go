package registration

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthfirst/portal/internal/form"
)

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZIPCode string `json:"zip_code,omitempty"`
}

// IsZero reports whether no address line was filled in.
func (a Address) IsZero() bool { return a == Address{} }

type Insurance struct {
	Provider       string `json:"provider"`
	PolicyNumber   string `json:"policy_number,omitempty"`
	GroupNumber    string `json:"group_number,omitempty"`
	SubscriberName string `json:"subscriber_name,omitempty"`
	Relationship   string `json:"relationship,omitempty"`
}

type Contact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

type Consents struct {
	Treatment bool `json:"treatment"`
	Privacy   bool `json:"privacy"`
	Billing   bool `json:"billing"`
}

// Patient is a completed patient registration. Only the last four digits of
// the SSN are kept.
type Patient struct {
	ID                     string     `json:"id"`
	FirstName              string     `json:"first_name"`
	MiddleInitial          string     `json:"middle_initial,omitempty"`
	LastName               string     `json:"last_name"`
	DateOfBirth            string     `json:"date_of_birth"`
	Gender                 string     `json:"gender"`
	SSNLast4               string     `json:"ssn_last4,omitempty"`
	PreferredLanguage      string     `json:"preferred_language,omitempty"`
	MaritalStatus          string     `json:"marital_status,omitempty"`
	HomeAddress            Address    `json:"home_address"`
	MailingAddress         Address    `json:"mailing_address"`
	PrimaryPhone           string     `json:"primary_phone"`
	SecondaryPhone         string     `json:"secondary_phone,omitempty"`
	Email                  string     `json:"email,omitempty"`
	PreferredContactMethod string     `json:"preferred_contact_method,omitempty"`
	PrimaryInsurance       *Insurance `json:"primary_insurance,omitempty"`
	SecondaryInsurance     *Insurance `json:"secondary_insurance,omitempty"`
	EmergencyContacts      []Contact  `json:"emergency_contacts,omitempty"`
	PowerOfAttorney        *Contact   `json:"medical_power_of_attorney,omitempty"`
	CurrentMedications     string     `json:"current_medications,omitempty"`
	Allergies              string     `json:"allergies,omitempty"`
	PrimaryCarePhysician   string     `json:"primary_care_physician,omitempty"`
	ReasonForVisit         string     `json:"reason_for_visit"`
	ReferralSource         string     `json:"referral_source,omitempty"`
	Consents               Consents   `json:"consents"`
	ElectronicSignature    string     `json:"electronic_signature"`
	ProviderNotes          string     `json:"provider_notes,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// FullName joins first and last name.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
)

// Provider is a clinician account awaiting license verification.
type Provider struct {
	ID                 uuid.UUID `json:"id"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Specialization     string    `json:"specialization"`
	LicenseNumber      string    `json:"license_number"`
	YearsOfExperience  int       `json:"years_of_experience"`
	Address            Address   `json:"address"`
	VerificationStatus string    `json:"verification_status"`
	CreatedAt          time.Time `json:"created_at"`
}

func (p *Provider) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// values reads the plain map a submitted wizard hands over.
type values map[string]any

func (v values) str(key string) string {
	s, _ := v[key].(string)
	return strings.TrimSpace(s)
}

func (v values) flag(key string) bool {
	b, _ := v[key].(bool)
	return b
}

func (v values) number(key string) (float64, bool) {
	n, ok := v[key].(float64)
	return n, ok
}

func (v values) entries(key string) []values {
	raw, _ := v[key].([]map[string]any)
	out := make([]values, len(raw))
	for i, e := range raw {
		out[i] = values(e)
	}
	return out
}

func (v values) address(prefix string) Address {
	return Address{
		Street:  v.str(prefix + ".street"),
		City:    v.str(prefix + ".city"),
		State:   v.str(prefix + ".state"),
		ZIPCode: v.str(prefix + ".zipCode"),
	}
}

func (v values) insurance(prefix string) *Insurance {
	ins := Insurance{
		Provider:       v.str(prefix + ".provider"),
		PolicyNumber:   v.str(prefix + ".policyNumber"),
		GroupNumber:    v.str(prefix + ".groupNumber"),
		SubscriberName: v.str(prefix + ".subscriberName"),
		Relationship:   v.str(prefix + ".relationship"),
	}
	if ins.Provider == "" && ins.PolicyNumber == "" {
		return nil
	}
	return &ins
}

// PatientFromValues builds a patient from the patient-registration values.
// Blank emergency contact rows are dropped and a mailing address marked
// "same as home" copies the home address.
func PatientFromValues(raw map[string]any) *Patient {
	v := values(raw)
	p := &Patient{
		FirstName:              v.str("firstName"),
		MiddleInitial:          strings.ToUpper(v.str("middleInitial")),
		LastName:               v.str("lastName"),
		DateOfBirth:            v.str("dateOfBirth"),
		Gender:                 v.str("gender"),
		PreferredLanguage:      v.str("preferredLanguage"),
		MaritalStatus:          v.str("maritalStatus"),
		HomeAddress:            v.address("homeAddress"),
		MailingAddress:         v.address("mailingAddress"),
		PrimaryPhone:           v.str("primaryPhone"),
		SecondaryPhone:         v.str("secondaryPhone"),
		Email:                  strings.ToLower(v.str("email")),
		PreferredContactMethod: v.str("preferredContactMethod"),
		PrimaryInsurance:       v.insurance("primaryInsurance"),
		CurrentMedications:     v.str("currentMedications"),
		Allergies:              v.str("allergies"),
		PrimaryCarePhysician:   v.str("primaryCarePhysician"),
		ReasonForVisit:         v.str("reasonForVisit"),
		ReferralSource:         v.str("referralSource"),
		Consents: Consents{
			Treatment: v.flag("consentTreatment"),
			Privacy:   v.flag("consentPrivacy"),
			Billing:   v.flag("consentBilling"),
		},
		ElectronicSignature: v.str("electronicSignature"),
		ProviderNotes:       v.str("providerNotes"),
	}
	if ssn := form.Digits(v.str("ssn")); len(ssn) == 9 {
		p.SSNLast4 = ssn[5:]
	}
	if v.flag("sameAsHome") || p.MailingAddress.IsZero() {
		p.MailingAddress = p.HomeAddress
	}
	if v.flag("hasSecondaryInsurance") {
		p.SecondaryInsurance = v.insurance("secondaryInsurance")
	}
	for _, e := range v.entries("emergencyContacts") {
		c := Contact{Name: e.str("name"), Relationship: e.str("relationship"), Phone: e.str("phone")}
		if c.Name == "" && c.Phone == "" {
			continue
		}
		p.EmergencyContacts = append(p.EmergencyContacts, c)
	}
	if name := v.str("medicalPowerOfAttorney.name"); name != "" {
		p.PowerOfAttorney = &Contact{
			Name:         name,
			Relationship: v.str("medicalPowerOfAttorney.relationship"),
			Phone:        v.str("medicalPowerOfAttorney.phone"),
		}
	}
	return p
}

// ProviderFromValues builds a provider from the provider-registration values.
func ProviderFromValues(raw map[string]any) *Provider {
	v := values(raw)
	years, _ := v.number("yearsOfExperience")
	return &Provider{
		FirstName:         v.str("firstName"),
		LastName:          v.str("lastName"),
		Email:             strings.ToLower(v.str("email")),
		Phone:             v.str("phone"),
		Specialization:    v.str("specialization"),
		LicenseNumber:     strings.ToUpper(v.str("medicalLicense")),
		YearsOfExperience: int(years),
		Address: Address{
			Street:  v.str("streetAddress"),
			City:    v.str("city"),
			State:   v.str("state"),
			ZIPCode: v.str("zipCode"),
		},
		VerificationStatus: VerificationPending,
	}
}

// Password returns the chosen password of a submitted registration.
func Password(raw map[string]any) string {
	s, _ := raw["password"].(string)
	return s
}
