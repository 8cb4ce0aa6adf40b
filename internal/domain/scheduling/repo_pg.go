package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zack-y11/clinica-dental-system/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, patient_id, doctor_id, scheduled_at, reason, status, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Reason,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (patient_id, doctor_id, scheduled_at, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		a.PatientID, a.DoctorID, a.ScheduledAt, a.Reason, a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepoPG) UpdateDetails(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET patient_id=$2, doctor_id=$3, scheduled_at=$4, reason=$5,
			updated_at=NOW()
		WHERE id = $1
		RETURNING status, created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.Reason,
	).Scan(&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAppointmentNotFound
	}
	return err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error) {
	q := r.conn(ctx)
	a, err := r.scanAppointment(q.QueryRow(ctx, `
		UPDATE appointment SET status=$3, updated_at=NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols, id, from, to))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var current Status
	err = q.QueryRow(ctx, `SELECT status FROM appointment WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, &TransitionError{From: current, To: to}
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(*f.Status))
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND scheduled_at >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND scheduled_at < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where + ` ORDER BY scheduled_at ASC, id ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) DoctorHasAppointment(ctx context.Context, doctorID int64, from, to time.Time, excludeID *int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1
			  AND status <> 'cancelled'
			  AND scheduled_at >= $2 AND scheduled_at <= $3
			  AND ($4::bigint IS NULL OR id <> $4)
		)`, doctorID, from, to, excludeID).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) PatientHasAppointment(ctx context.Context, patientID int64, from, to time.Time, excludeID *int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE patient_id = $1
			  AND status <> 'cancelled'
			  AND scheduled_at >= $2 AND scheduled_at < $3
			  AND ($4::bigint IS NULL OR id <> $4)
		)`, patientID, from, to, excludeID).Scan(&exists)
	return exists, err
}

// WithDoctorLock serializes writers for one doctor with a transaction-scoped
// advisory lock. Called with a transaction already in ctx, it takes the lock
// inside that transaction and leaves commit to the owner.
func (r *appointmentRepoPG) WithDoctorLock(ctx context.Context, doctorID int64, fn func(ctx context.Context) error) error {
	if tx := db.TxFromContext(ctx); tx != nil {
		if err := lockDoctor(ctx, tx, doctorID); err != nil {
			return err
		}
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDoctor(ctx, tx, doctorID); err != nil {
		return err
	}
	if err := fn(db.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeError("commit transaction", err)
	}
	return nil
}

func lockDoctor(ctx context.Context, tx pgx.Tx, doctorID int64) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"appointment:doctor:"+strconv.FormatInt(doctorID, 10))
	if err != nil {
		return storeError("acquire doctor lock", err)
	}
	return nil
}
