package panicalert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(_ context.Context) queryable { return r.pool }

const alertCols = `id, nurse_id, nurse_name, level, status, latitude, longitude, address, message,
	resolved_at, resolved_by, created_at, updated_at`

func (r *repoPG) scanAlert(row pgx.Row) (*PanicAlert, error) {
	var a PanicAlert
	err := row.Scan(&a.ID, &a.NurseID, &a.NurseName, &a.Level, &a.Status, &a.Latitude, &a.Longitude,
		&a.Address, &a.Message, &a.ResolvedAt, &a.ResolvedBy, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *PanicAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO panic_alert (id, nurse_id, nurse_name, level, status, latitude, longitude, address, message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.NurseID, a.NurseName, a.Level, a.Status, a.Latitude, a.Longitude, a.Address, a.Message)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*PanicAlert, error) {
	return r.scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM panic_alert WHERE id = $1`, id))
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, from, to Status, resolvedBy *string, at time.Time) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	if to.Terminal() {
		tag, err = r.conn(ctx).Exec(ctx, `
			UPDATE panic_alert SET status=$3, resolved_at=$4, resolved_by=$5, updated_at=NOW()
			WHERE id = $1 AND status = $2 AND resolved_at IS NULL`,
			id, from, to, at, resolvedBy)
	} else {
		tag, err = r.conn(ctx).Exec(ctx, `
			UPDATE panic_alert SET status=$3, updated_at=NOW()
			WHERE id = $1 AND status = $2`,
			id, from, to)
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) AppendTimeline(ctx context.Context, e *TimelineEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO panic_timeline (id, alert_id, status, changed_at, changed_by, note)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.AlertID, e.Status, e.ChangedAt, e.ChangedBy, e.Note)
	return err
}

func (r *repoPG) Timeline(ctx context.Context, alertID uuid.UUID) ([]*TimelineEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, alert_id, status, changed_at, changed_by, note
		FROM panic_timeline WHERE alert_id = $1 ORDER BY changed_at`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.ID, &e.AlertID, &e.Status, &e.ChangedAt, &e.ChangedBy, &e.Note); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

func (r *repoPG) List(ctx context.Context, status *Status, limit, offset int) ([]*PanicAlert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM panic_alert WHERE ($1::text IS NULL OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM panic_alert
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY (level = 'emergency') DESC, created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*PanicAlert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
