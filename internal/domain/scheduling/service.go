package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/platform/auth"
	"github.com/healthfirst/portal/internal/platform/notification"
	"github.com/healthfirst/portal/internal/wizard"
)

type Config struct {
	// Latency delays every submission.
	Latency time.Duration
	Now     func() time.Time
}

// Service receives completed availability and appointment wizards.
type Service struct {
	availability AvailabilityRepository
	appointments AppointmentRepository
	mailer       *notification.Mailer
	logger       zerolog.Logger
	latency      time.Duration
	now          func() time.Time
}

func NewService(avail AvailabilityRepository, appts AppointmentRepository, mailer *notification.Mailer,
	logger zerolog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		availability: avail,
		appointments: appts,
		mailer:       mailer,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		latency:      cfg.Latency,
		now:          cfg.Now,
	}
}

// Submit implements wizard.Submitter for the scheduling flows. The signed-in
// user is recorded as the author.
func (s *Service) Submit(ctx context.Context, flow string, values map[string]any) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	switch flow {
	case FlowAvailability:
		a, err := s.SetAvailability(ctx, AvailabilityFromValues(values))
		if err != nil {
			return "", err
		}
		return a.ID.String(), nil
	case FlowAppointment:
		loc := time.UTC
		provider, _ := values["provider"].(string)
		if avail, err := s.availability.Latest(ctx, provider); err == nil {
			loc = avail.Location()
		}
		appt, err := AppointmentFromValues(values, loc)
		if err != nil {
			return "", fmt.Errorf("%w: %w", wizard.ErrRejected, err)
		}
		if appt, err = s.Book(ctx, appt); err != nil {
			return "", err
		}
		return appt.ID.String(), nil
	}
	return "", fmt.Errorf("scheduling: unsupported flow %q", flow)
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

// -- Availability --

// SetAvailability stores a as the provider's schedule in force.
func (s *Service) SetAvailability(ctx context.Context, a *Availability) (*Availability, error) {
	if a.Provider == "" || a.TimeZone == "" {
		return nil, fmt.Errorf("%w: provider and time zone are required", wizard.ErrRejected)
	}
	for _, d := range a.Days {
		if d.From >= d.Till {
			return nil, fmt.Errorf("%w (%s)", ErrInvalidTimeRange, d.Day)
		}
	}
	for _, b := range a.Blocked {
		if b.From != "" && b.Till != "" && b.From >= b.Till {
			return nil, fmt.Errorf("%w (%s)", ErrInvalidTimeRange, b.Date)
		}
	}
	a.ID = uuid.New()
	a.CreatedBy = auth.UserIDFromContext(ctx)
	a.CreatedAt = s.now().UTC()
	if err := s.availability.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().Str("availability_id", a.ID.String()).Str("provider", a.Provider).Msg("availability saved")
	return a, nil
}

func (s *Service) CurrentAvailability(ctx context.Context, provider string) (*Availability, error) {
	return s.availability.Latest(ctx, provider)
}

func (s *Service) ListAvailability(ctx context.Context, provider string, limit, offset int) ([]*Availability, int, error) {
	return s.availability.List(ctx, provider, limit, offset)
}

// OpenSlots returns the unbooked slots of provider on date.
func (s *Service) OpenSlots(ctx context.Context, provider, date string) ([]time.Time, error) {
	avail, err := s.availability.Latest(ctx, provider)
	if err != nil {
		return nil, err
	}
	slots, err := avail.Slots(date)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return slots, nil
	}

	booked, err := s.appointments.Between(ctx, provider, slots[0], slots[len(slots)-1].Add(SlotDuration))
	if err != nil {
		return nil, err
	}
	open := make([]time.Time, 0, len(slots))
	for _, t := range slots {
		candidate := &Appointment{Provider: provider, ScheduledAt: t}
		free := true
		for _, b := range booked {
			if candidate.Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			open = append(open, t)
		}
	}
	return open, nil
}

// -- Appointment --

// Book stores appt when it falls inside the provider's hours and does not
// overlap another booking. Providers without a published schedule accept
// any time.
func (s *Service) Book(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if !appt.ScheduledAt.After(s.now()) {
		return nil, fmt.Errorf("%w: appointment must be in the future", wizard.ErrRejected)
	}
	avail, err := s.availability.Latest(ctx, appt.Provider)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	case !avail.Covers(appt.ScheduledAt):
		return nil, ErrOutsideHours
	}

	appt.ID = uuid.New()
	appt.CreatedBy = auth.UserIDFromContext(ctx)
	appt.CreatedAt = s.now().UTC()
	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, err
	}

	if to := auth.EmailFromContext(ctx); to != "" && s.mailer != nil {
		loc := time.UTC
		if avail != nil {
			loc = avail.Location()
		}
		_, err := s.mailer.SendTemplate(ctx, "appointment-booked", map[string]string{
			"patient_name": appt.PatientName,
			"mode":         appt.Mode,
			"provider":     appt.Provider,
			"date_time":    appt.ScheduledAt.In(loc).Format("Mon Jan 2 2006 15:04 MST"),
		}, to)
		if err != nil {
			s.logger.Warn().Err(err).Msg("send booking confirmation")
		}
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("provider", appt.Provider).
		Time("scheduled_at", appt.ScheduledAt).
		Msg("appointment booked")
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, provider string, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, provider, limit, offset)
}

var _ wizard.Submitter = (*Service)(nil)
