package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homecare/homecare/internal/platform/geo"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(_ context.Context) queryable { return r.pool }

const requestCols = `id, patient_id, nurse_id, nurse_name, service_name, service_category,
	service_price, address, latitude, longitude, status, note,
	rating, review, rated_at, accepted_at, completed_at, cancelled_at, cancel_reason,
	created_at, updated_at`

func (r *repoPG) scanRequest(row pgx.Row) (*ServiceRequest, error) {
	var sr ServiceRequest
	err := row.Scan(&sr.ID, &sr.PatientID, &sr.NurseID, &sr.NurseName, &sr.Service.Name, &sr.Service.Category,
		&sr.Service.Price, &sr.Address, &sr.Latitude, &sr.Longitude, &sr.Status, &sr.Note,
		&sr.Rating, &sr.Review, &sr.RatedAt, &sr.AcceptedAt, &sr.CompletedAt, &sr.CancelledAt, &sr.CancelReason,
		&sr.CreatedAt, &sr.UpdatedAt)
	return &sr, err
}

func (r *repoPG) Create(ctx context.Context, sr *ServiceRequest) error {
	if sr.ID == uuid.Nil {
		sr.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_request (id, patient_id, service_name, service_category, service_price,
			address, latitude, longitude, status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sr.ID, sr.PatientID, sr.Service.Name, sr.Service.Category, sr.Service.Price,
		sr.Address, sr.Latitude, sr.Longitude, sr.Status, sr.Note)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM service_request WHERE id = $1`, id))
}

// Accept is the accept-race resolution point: the WHERE clause makes the
// pending check and the nurse assignment one atomic statement, so of two
// concurrent acceptors exactly one sees a row updated.
func (r *repoPG) Accept(ctx context.Context, requestID, nurseID uuid.UUID, nurseName string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_request
		SET nurse_id=$2, nurse_name=$3, status=$4, accepted_at=$5, updated_at=NOW()
		WHERE id = $1 AND status = $6 AND nurse_id IS NULL`,
		requestID, nurseID, nurseName, StatusAccepted, at, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Transition(ctx context.Context, requestID uuid.UUID, from, to Status, at time.Time, cancelReason *string) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	switch to {
	case StatusCompleted:
		tag, err = r.conn(ctx).Exec(ctx, `
			UPDATE service_request SET status=$3, completed_at=$4, updated_at=NOW()
			WHERE id = $1 AND status = $2`,
			requestID, from, to, at)
	case StatusCancelled:
		tag, err = r.conn(ctx).Exec(ctx, `
			UPDATE service_request SET status=$3, cancelled_at=$4, cancel_reason=$5, updated_at=NOW()
			WHERE id = $1 AND status = $2`,
			requestID, from, to, at, cancelReason)
	default:
		tag, err = r.conn(ctx).Exec(ctx, `
			UPDATE service_request SET status=$3, updated_at=NOW()
			WHERE id = $1 AND status = $2`,
			requestID, from, to)
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SetRating(ctx context.Context, requestID uuid.UUID, rating int, review *string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_request SET rating=$2, review=$3, rated_at=$4, updated_at=NOW()
		WHERE id = $1 AND status = $5 AND rating IS NULL`,
		requestID, rating, review, at, StatusCompleted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) AppendHistory(ctx context.Context, h *StatusChange) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO request_status_history (id, request_id, status, changed_at, changed_by, note)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		h.ID, h.RequestID, h.Status, h.ChangedAt, h.ChangedBy, h.Note)
	return err
}

func (r *repoPG) History(ctx context.Context, requestID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, request_id, status, changed_at, changed_by, note
		FROM request_status_history WHERE request_id = $1 ORDER BY changed_at`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusChange
	for rows.Next() {
		var h StatusChange
		if err := rows.Scan(&h.ID, &h.RequestID, &h.Status, &h.ChangedAt, &h.ChangedBy, &h.Note); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

func (r *repoPG) listBy(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_request WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+requestCols+` FROM service_request WHERE `+column+` = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ServiceRequest
	for rows.Next() {
		sr, err := r.scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sr)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error) {
	return r.listBy(ctx, "patient_id", patientID, limit, offset)
}

func (r *repoPG) ListByNurse(ctx context.Context, nurseID uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error) {
	return r.listBy(ctx, "nurse_id", nurseID, limit, offset)
}

const findPendingNearbySQL = `
	SELECT * FROM (
		SELECT ` + requestCols + `,
			(6371 * acos(least(1.0,
				cos(radians($1)) * cos(radians(latitude)) *
				cos(radians(longitude) - radians($2)) +
				sin(radians($1)) * sin(radians(latitude))
			))) AS distance_km
		FROM service_request
		WHERE status = 'pending' AND nurse_id IS NULL
	) candidates
	WHERE distance_km <= $3
	ORDER BY distance_km ASC
	LIMIT $4`

func (r *repoPG) FindPendingNearby(ctx context.Context, origin geo.Point, radiusKm float64, limit int) ([]*PendingNearby, error) {
	rows, err := r.conn(ctx).Query(ctx, findPendingNearbySQL,
		origin.Latitude, origin.Longitude, radiusKm, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PendingNearby
	for rows.Next() {
		var p PendingNearby
		if err := rows.Scan(&p.ID, &p.PatientID, &p.NurseID, &p.NurseName, &p.Service.Name, &p.Service.Category,
			&p.Service.Price, &p.Address, &p.Latitude, &p.Longitude, &p.Status, &p.Note,
			&p.Rating, &p.Review, &p.RatedAt, &p.AcceptedAt, &p.CompletedAt, &p.CancelledAt, &p.CancelReason,
			&p.CreatedAt, &p.UpdatedAt, &p.DistanceKm); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}
