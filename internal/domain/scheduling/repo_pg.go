package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthfirst/portal/internal/platform/db"
)

// -- Availability Repository --

type availabilityRepoPG struct {
	pool *pgxpool.Pool
}

func NewAvailabilityRepo(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *availabilityRepoPG) Create(ctx context.Context, a *Availability) error {
	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("availability create: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO availability (id, provider, time_zone, record, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Provider, a.TimeZone, record, a.CreatedBy, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("availability create: %w", err)
	}
	return nil
}

func (r *availabilityRepoPG) Latest(ctx context.Context, provider string) (*Availability, error) {
	var record []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT record FROM availability WHERE provider = $1
		ORDER BY created_at DESC LIMIT 1`, provider).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("availability latest: %w", err)
	}
	var a Availability
	if err := json.Unmarshal(record, &a); err != nil {
		return nil, fmt.Errorf("availability decode: %w", err)
	}
	return &a, nil
}

func (r *availabilityRepoPG) List(ctx context.Context, provider string, limit, offset int) ([]*Availability, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM availability WHERE $1::text = '' OR provider = $1`, provider).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("availability count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT record FROM availability WHERE $1::text = '' OR provider = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, provider, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("availability list: %w", err)
	}
	items, err := scanRecords[Availability](rows)
	if err != nil {
		return nil, 0, fmt.Errorf("availability list: %w", err)
	}
	return items, total, nil
}

// -- Appointment Repository --

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// Create holds a per-provider advisory lock for the overlap check and the
// insert.
func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("appointment create: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, a.Provider); err != nil {
			return fmt.Errorf("appointment lock: %w", err)
		}
		var taken bool
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE provider = $1 AND scheduled_at < $3 AND scheduled_at + $4 * INTERVAL '1 second' > $2
			)`, a.Provider, a.ScheduledAt, a.End(), SlotDuration.Seconds()).Scan(&taken)
		if err != nil {
			return fmt.Errorf("appointment overlap: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO appointments (id, patient_name, provider, appointment_mode, scheduled_at, record, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.PatientName, a.Provider, a.Mode, a.ScheduledAt, record, a.CreatedBy, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("appointment create: %w", err)
		}
		return nil
	})
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var record []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT record FROM appointments WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointment get: %w", err)
	}
	var a Appointment
	if err := json.Unmarshal(record, &a); err != nil {
		return nil, fmt.Errorf("appointment decode: %w", err)
	}
	return &a, nil
}

func (r *appointmentRepoPG) List(ctx context.Context, provider string, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE $1::text = '' OR provider = $1`, provider).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointment count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT record FROM appointments WHERE $1::text = '' OR provider = $1
		ORDER BY scheduled_at, id LIMIT $2 OFFSET $3`, provider, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("appointment list: %w", err)
	}
	items, err := scanRecords[Appointment](rows)
	if err != nil {
		return nil, 0, fmt.Errorf("appointment list: %w", err)
	}
	return items, total, nil
}

func (r *appointmentRepoPG) Between(ctx context.Context, provider string, from, till time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT record FROM appointments
		WHERE provider = $1 AND scheduled_at < $3 AND scheduled_at + $4 * INTERVAL '1 second' > $2
		ORDER BY scheduled_at, id`, provider, from, till, SlotDuration.Seconds())
	if err != nil {
		return nil, fmt.Errorf("appointment between: %w", err)
	}
	items, err := scanRecords[Appointment](rows)
	if err != nil {
		return nil, fmt.Errorf("appointment between: %w", err)
	}
	return items, nil
}

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
