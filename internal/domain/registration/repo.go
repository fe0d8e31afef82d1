package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/healthfirst/portal/internal/form"
	"github.com/healthfirst/portal/internal/wizard"
	"github.com/healthfirst/portal/pkg/pagination"
)

var (
	ErrNotFound = errors.New("registration not found")

	// ErrConflict wraps wizard.ErrRejected: the user has to change the
	// submitted data before trying again.
	ErrConflict     = fmt.Errorf("%w: duplicate registration", wizard.ErrRejected)
	ErrEmailTaken   = fmt.Errorf("%w: email is already registered", ErrConflict)
	ErrPhoneTaken   = fmt.Errorf("%w: phone number is already registered", ErrConflict)
	ErrLicenseTaken = fmt.Errorf("%w: license number is already registered", ErrConflict)

	// errIDTaken reports a generated id colliding with a stored one.
	errIDTaken = errors.New("id already in use")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Provider, int, error)
}

// phoneKey is the uniqueness key of a phone number: its digits.
func phoneKey(phone string) string {
	return form.Digits(phone)
}

// -- In-memory repositories --

type patientRepoMemory struct {
	mu      sync.RWMutex
	byID    map[string]*Patient
	emails  map[string]string
	phones  map[string]string
	ordered []string
}

// NewPatientRepoMemory keeps patients for the life of the process.
func NewPatientRepoMemory() PatientRepository {
	return &patientRepoMemory{
		byID:   make(map[string]*Patient),
		emails: make(map[string]string),
		phones: make(map[string]string),
	}
}

func (r *patientRepoMemory) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; ok {
		return errIDTaken
	}
	if _, ok := r.emails[p.Email]; ok && p.Email != "" {
		return ErrEmailTaken
	}
	phone := phoneKey(p.PrimaryPhone)
	if _, ok := r.phones[phone]; ok {
		return ErrPhoneTaken
	}
	stored := *p
	r.byID[p.ID] = &stored
	if p.Email != "" {
		r.emails[p.Email] = p.ID
	}
	r.phones[phone] = p.ID
	r.ordered = append(r.ordered, p.ID)
	return nil
}

func (r *patientRepoMemory) GetByID(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *patientRepoMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.emails, p.Email)
	delete(r.phones, phoneKey(p.PrimaryPhone))
	for i, oid := range r.ordered {
		if oid == id {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// List returns patients newest first.
func (r *patientRepoMemory) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.ordered)
	var out []*Patient
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		p := *r.byID[r.ordered[i]]
		out = append(out, &p)
	}
	return out, total, nil
}

type providerRepoMemory struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*Provider
	emails   map[string]uuid.UUID
	phones   map[string]uuid.UUID
	licenses map[string]uuid.UUID
}

func NewProviderRepoMemory() ProviderRepository {
	return &providerRepoMemory{
		byID:     make(map[uuid.UUID]*Provider),
		emails:   make(map[string]uuid.UUID),
		phones:   make(map[string]uuid.UUID),
		licenses: make(map[string]uuid.UUID),
	}
}

func (r *providerRepoMemory) Create(_ context.Context, p *Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; ok {
		return errIDTaken
	}
	if _, ok := r.emails[p.Email]; ok {
		return ErrEmailTaken
	}
	phone := phoneKey(p.Phone)
	if _, ok := r.phones[phone]; ok {
		return ErrPhoneTaken
	}
	if _, ok := r.licenses[p.LicenseNumber]; ok {
		return ErrLicenseTaken
	}
	stored := *p
	r.byID[p.ID] = &stored
	r.emails[p.Email] = p.ID
	r.phones[phone] = p.ID
	r.licenses[p.LicenseNumber] = p.ID
	return nil
}

func (r *providerRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *providerRepoMemory) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.emails, p.Email)
	delete(r.phones, phoneKey(p.Phone))
	delete(r.licenses, p.LicenseNumber)
	return nil
}

// List returns providers newest first.
func (r *providerRepoMemory) List(_ context.Context, limit, offset int) ([]*Provider, int, error) {
	r.mu.RLock()
	all := make([]*Provider, 0, len(r.byID))
	for _, p := range r.byID {
		cp := *p
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return pagination.Slice(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}
