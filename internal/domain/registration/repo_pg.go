package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthfirst/portal/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// nullable maps "" to SQL NULL so optional unique columns do not collide.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, first_name, middle_name, last_name, date_of_birth, gender, email, phone, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.FirstName, nullable(p.MiddleInitial), p.LastName, p.DateOfBirth, p.Gender,
		nullable(p.Email), phoneKey(p.PrimaryPhone), record, p.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "patients_pkey"):
		return errIDTaken
	case db.IsUniqueViolation(err, "patients_email_key"):
		return ErrEmailTaken
	case db.IsUniqueViolation(err, "patients_phone_key"):
		return ErrPhoneTaken
	}
	return fmt.Errorf("patient create: %w", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	var record []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT record FROM patients WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient get: %w", err)
	}
	var p Patient
	if err := json.Unmarshal(record, &p); err != nil {
		return nil, fmt.Errorf("patient decode: %w", err)
	}
	return &p, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT record FROM patients ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	items, err := scanRecords[Patient](rows)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	return items, total, nil
}

// -- Provider Repository --

type providerRepoPG struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

func (r *providerRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("provider create: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO providers (id, first_name, last_name, email, phone, specialization, license_number,
			years_of_experience, record, verification_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.FirstName, p.LastName, p.Email, phoneKey(p.Phone), p.Specialization, p.LicenseNumber,
		p.YearsOfExperience, record, p.VerificationStatus, p.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "providers_pkey"):
		return errIDTaken
	case db.IsUniqueViolation(err, "providers_email_key"):
		return ErrEmailTaken
	case db.IsUniqueViolation(err, "providers_phone_key"):
		return ErrPhoneTaken
	case db.IsUniqueViolation(err, "providers_license_key"):
		return ErrLicenseTaken
	}
	return fmt.Errorf("provider create: %w", err)
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var (
		record []byte
		status string
	)
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT record, verification_status FROM providers WHERE id = $1`, id).Scan(&record, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("provider get: %w", err)
	}
	var p Provider
	if err := json.Unmarshal(record, &p); err != nil {
		return nil, fmt.Errorf("provider decode: %w", err)
	}
	p.VerificationStatus = status
	return &p, nil
}

func (r *providerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("provider delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *providerRepoPG) List(ctx context.Context, limit, offset int) ([]*Provider, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM providers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("provider count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT record FROM providers ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("provider list: %w", err)
	}
	items, err := scanRecords[Provider](rows)
	if err != nil {
		return nil, 0, fmt.Errorf("provider list: %w", err)
	}
	return items, total, nil
}

// scanRecords decodes a single JSONB column per row.
func scanRecords[T any](rows pgx.Rows) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		item := new(T)
		if err := json.Unmarshal(record, item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
