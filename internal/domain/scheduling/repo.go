package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthfirst/portal/internal/wizard"
	"github.com/healthfirst/portal/pkg/pagination"
)

var (
	ErrNotFound = errors.New("not found")

	ErrSlotTaken        = fmt.Errorf("%w: the provider already has an appointment at that time", wizard.ErrRejected)
	ErrOutsideHours     = fmt.Errorf("%w: the provider is not available at that time", wizard.ErrRejected)
	ErrInvalidTimeRange = fmt.Errorf("%w: start time must be before end time", wizard.ErrRejected)
)

type AvailabilityRepository interface {
	Create(ctx context.Context, a *Availability) error
	// Latest returns the availability in force for provider.
	Latest(ctx context.Context, provider string) (*Availability, error)
	List(ctx context.Context, provider string, limit, offset int) ([]*Availability, int, error)
}

type AppointmentRepository interface {
	// Create fails with ErrSlotTaken when the provider is already booked
	// during the new appointment's slot.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, provider string, limit, offset int) ([]*Appointment, int, error)
	// Between returns provider's appointments whose slot overlaps [from, till).
	Between(ctx context.Context, provider string, from, till time.Time) ([]*Appointment, error)
}

// -- In-memory repositories --

type availabilityRepoMemory struct {
	mu    sync.RWMutex
	items []*Availability
}

func NewAvailabilityRepoMemory() AvailabilityRepository {
	return &availabilityRepoMemory{}
}

func (r *availabilityRepoMemory) Create(_ context.Context, a *Availability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *a
	r.items = append(r.items, &stored)
	return nil
}

func (r *availabilityRepoMemory) Latest(_ context.Context, provider string) (*Availability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Provider == provider {
			out := *r.items[i]
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// List returns the newest first. An empty provider lists every provider.
func (r *availabilityRepoMemory) List(_ context.Context, provider string, limit, offset int) ([]*Availability, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Availability
	for i := len(r.items) - 1; i >= 0; i-- {
		if provider == "" || r.items[i].Provider == provider {
			cp := *r.items[i]
			all = append(all, &cp)
		}
	}
	return pagination.Slice(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

type appointmentRepoMemory struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Appointment
	order []uuid.UUID
}

func NewAppointmentRepoMemory() AppointmentRepository {
	return &appointmentRepoMemory{byID: make(map[uuid.UUID]*Appointment)}
}

func (r *appointmentRepoMemory) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.byID {
		if a.Overlaps(other) {
			return ErrSlotTaken
		}
	}
	stored := *a
	r.byID[a.ID] = &stored
	r.order = append(r.order, a.ID)
	return nil
}

func (r *appointmentRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

// List returns appointments in schedule order.
func (r *appointmentRepoMemory) List(_ context.Context, provider string, limit, offset int) ([]*Appointment, int, error) {
	r.mu.RLock()
	var all []*Appointment
	for _, id := range r.order {
		a := r.byID[id]
		if provider == "" || a.Provider == provider {
			cp := *a
			all = append(all, &cp)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].ScheduledAt.Before(all[j].ScheduledAt) })
	return pagination.Slice(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

func (r *appointmentRepoMemory) Between(_ context.Context, provider string, from, till time.Time) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, id := range r.order {
		a := r.byID[id]
		if a.Provider == provider && a.ScheduledAt.Before(till) && a.End().After(from) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}
