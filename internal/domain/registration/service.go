package registration

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/form"
	"github.com/healthfirst/portal/internal/platform/auth"
	"github.com/healthfirst/portal/internal/platform/notification"
	"github.com/healthfirst/portal/internal/wizard"
)

// idAttempts bounds retries when a generated patient id is already taken.
const idAttempts = 5

// Accounts makes a completed registration able to sign in.
// *auth.Identity satisfies it.
type Accounts interface {
	HashPassword(p string) ([]byte, error)
	AddAccount(u auth.User, hash []byte) error
}

type Config struct {
	// Latency delays every submission, simulating a slow back office.
	Latency time.Duration
	Now     func() time.Time

	// PatientID issues candidate patient ids. Defaults to NewPatientID.
	PatientID func() string
}

// Service receives completed registration wizards.
type Service struct {
	patients  PatientRepository
	providers ProviderRepository
	accounts  Accounts
	mailer    *notification.Mailer
	logger    zerolog.Logger

	latency   time.Duration
	now       func() time.Time
	patientID func() string
}

func NewService(patients PatientRepository, providers ProviderRepository, accounts Accounts,
	mailer *notification.Mailer, logger zerolog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PatientID == nil {
		cfg.PatientID = NewPatientID
	}
	return &Service{
		patients:  patients,
		providers: providers,
		accounts:  accounts,
		mailer:    mailer,
		logger:    logger.With().Str("component", "registration").Logger(),
		latency:   cfg.Latency,
		now:       cfg.Now,
		patientID: cfg.PatientID,
	}
}

// NewPatientID returns "P" followed by six digits.
func NewPatientID() string {
	return "P" + strconv.Itoa(100000+rand.IntN(900000))
}

// Submit implements wizard.Submitter for both registration flows.
func (s *Service) Submit(ctx context.Context, flow string, values map[string]any) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	switch flow {
	case FlowPatient:
		p, err := s.RegisterPatient(ctx, PatientFromValues(values), Password(values))
		if err != nil {
			return "", err
		}
		return p.ID, nil
	case FlowProvider:
		p, err := s.RegisterProvider(ctx, ProviderFromValues(values), Password(values))
		if err != nil {
			return "", err
		}
		return p.ID.String(), nil
	}
	return "", fmt.Errorf("registration: unsupported flow %q", flow)
}

func (s *Service) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -- Patient --

// RegisterPatient stores p under a fresh id and, when it carries an email,
// opens a patient account with password. Without an email password is
// ignored.
func (s *Service) RegisterPatient(ctx context.Context, p *Patient, password string) (*Patient, error) {
	if p.FirstName == "" || p.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", wizard.ErrRejected)
	}
	age, err := form.AgeOn(p.DateOfBirth, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date of birth", wizard.ErrRejected)
	}
	if age < MinPatientAge {
		return nil, fmt.Errorf("%w: must be at least %d years old", wizard.ErrRejected, MinPatientAge)
	}

	var hash []byte
	if p.Email != "" {
		if password == "" {
			return nil, fmt.Errorf("%w: a password is required when an email is given", wizard.ErrRejected)
		}
		if hash, err = s.accounts.HashPassword(password); err != nil {
			return nil, err
		}
	}

	p.CreatedAt = s.now().UTC()
	for attempt := 0; ; attempt++ {
		p.ID = s.patientID()
		err = s.patients.Create(ctx, p)
		if !errors.Is(err, errIDTaken) || attempt+1 >= idAttempts {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if p.Email != "" {
		u := auth.User{ID: p.ID, Email: p.Email, Name: p.FullName(), Role: auth.RolePatient}
		if err := s.addAccount(ctx, u, hash, func(ctx context.Context) error { return s.patients.Delete(ctx, p.ID) }); err != nil {
			return nil, err
		}
		s.sendTemplate(ctx, "patient-registered", map[string]string{
			"first_name": p.FirstName,
			"patient_id": p.ID,
		}, p.Email)
	}

	s.logger.Info().Str("patient_id", p.ID).Msg("patient registered")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Provider --

// RegisterProvider stores p pending verification and opens a provider
// account with password.
func (s *Service) RegisterProvider(ctx context.Context, p *Provider, password string) (*Provider, error) {
	if p.Email == "" || p.LicenseNumber == "" {
		return nil, fmt.Errorf("%w: email and license number are required", wizard.ErrRejected)
	}
	hash, err := s.accounts.HashPassword(password)
	if err != nil {
		return nil, err
	}

	p.ID = uuid.New()
	p.VerificationStatus = VerificationPending
	p.CreatedAt = s.now().UTC()
	if err := s.providers.Create(ctx, p); err != nil {
		return nil, err
	}

	u := auth.User{ID: p.ID.String(), Email: p.Email, Name: p.FullName(), Role: auth.RoleProvider}
	if err := s.addAccount(ctx, u, hash, func(ctx context.Context) error { return s.providers.Delete(ctx, p.ID) }); err != nil {
		return nil, err
	}
	s.sendTemplate(ctx, "provider-registered", map[string]string{
		"last_name": p.LastName,
		"email":     p.Email,
	}, p.Email)

	s.logger.Info().Str("provider_id", p.ID.String()).Msg("provider registered")
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, limit, offset int) ([]*Provider, int, error) {
	return s.providers.List(ctx, limit, offset)
}

// addAccount opens the sign-in account for a stored registration and
// removes the registration again when the email already has an account.
func (s *Service) addAccount(ctx context.Context, u auth.User, hash []byte, undo func(context.Context) error) error {
	err := s.accounts.AddAccount(u, hash)
	if err == nil {
		return nil
	}
	if uerr := undo(ctx); uerr != nil {
		s.logger.Error().Err(uerr).Str("id", u.ID).Msg("remove registration after failed account creation")
	}
	if errors.Is(err, auth.ErrAccountExists) {
		return ErrEmailTaken
	}
	return fmt.Errorf("create account: %w", err)
}

func (s *Service) sendTemplate(ctx context.Context, id string, data map[string]string, to string) {
	if s.mailer == nil {
		return
	}
	if _, err := s.mailer.SendTemplate(ctx, id, data, to); err != nil {
		s.logger.Warn().Err(err).Str("template", id).Msg("send welcome email")
	}
}

var _ wizard.Submitter = (*Service)(nil)
