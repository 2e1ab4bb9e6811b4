package nurse

import (
	"context"

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

const nurseCols = `id, display_name, avatar, phone, categories, hourly_price,
	available, verified, latitude, longitude, rating_avg, rating_count,
	created_at, updated_at`

func (r *repoPG) scanNurse(row pgx.Row) (*Nurse, error) {
	var n Nurse
	err := row.Scan(&n.ID, &n.DisplayName, &n.Avatar, &n.Phone, &n.Categories, &n.HourlyPrice,
		&n.Available, &n.Verified, &n.Latitude, &n.Longitude, &n.RatingAvg, &n.RatingCount,
		&n.CreatedAt, &n.UpdatedAt)
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *Nurse) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO nurse (id, display_name, avatar, phone, categories, hourly_price,
			available, verified, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.DisplayName, n.Avatar, n.Phone, n.Categories, n.HourlyPrice,
		n.Available, n.Verified, n.Latitude, n.Longitude)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Nurse, error) {
	return r.scanNurse(r.conn(ctx).QueryRow(ctx, `SELECT `+nurseCols+` FROM nurse WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, n *Nurse) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE nurse SET display_name=$2, avatar=$3, phone=$4, categories=$5,
			hourly_price=$6, verified=$7, updated_at=NOW()
		WHERE id = $1`,
		n.ID, n.DisplayName, n.Avatar, n.Phone, n.Categories,
		n.HourlyPrice, n.Verified)
	return err
}

func (r *repoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE nurse SET available=$2, updated_at=NOW() WHERE id = $1`, id, available)
	return err
}

func (r *repoPG) UpdateLocation(ctx context.Context, id uuid.UUID, p geo.Point) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE nurse SET latitude=$2, longitude=$3, updated_at=NOW() WHERE id = $1`,
		id, p.Latitude, p.Longitude)
	return err
}

func (r *repoPG) ApplyRating(ctx context.Context, id uuid.UUID, rating int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE nurse SET
			rating_avg = (rating_avg * rating_count + $2) / (rating_count + 1),
			rating_count = rating_count + 1,
			updated_at = NOW()
		WHERE id = $1`, id, float64(rating))
	return err
}

// findNearbySQL computes the haversine distance in SQL and filters on it in
// an outer query so the alias can be used in WHERE and ORDER BY.
const findNearbySQL = `
	SELECT * FROM (
		SELECT ` + nurseCols + `,
			(6371 * acos(least(1.0,
				cos(radians($1)) * cos(radians(latitude)) *
				cos(radians(longitude) - radians($2)) +
				sin(radians($1)) * sin(radians(latitude))
			))) AS distance_km
		FROM nurse
		WHERE available = TRUE
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		  AND ($4 = '' OR $4 = ANY(categories))
		  AND ($5::float8 IS NULL OR hourly_price <= $5)
		  AND ($6::float8 IS NULL OR rating_avg >= $6)
	) candidates
	WHERE distance_km <= $3
	ORDER BY distance_km ASC
	LIMIT $7`

func (r *repoPG) FindNearby(ctx context.Context, origin geo.Point, radiusKm float64, f SearchFilters, limit int) ([]*NearbyNurse, error) {
	rows, err := r.conn(ctx).Query(ctx, findNearbySQL,
		origin.Latitude, origin.Longitude, radiusKm,
		f.Category, f.MaxPrice, f.MinRating, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*NearbyNurse
	for rows.Next() {
		var n NearbyNurse
		if err := rows.Scan(&n.ID, &n.DisplayName, &n.Avatar, &n.Phone, &n.Categories, &n.HourlyPrice,
			&n.Available, &n.Verified, &n.Latitude, &n.Longitude, &n.RatingAvg, &n.RatingCount,
			&n.CreatedAt, &n.UpdatedAt, &n.DistanceKm); err != nil {
			return nil, err
		}
		items = append(items, &n)
	}
	return items, rows.Err()
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Nurse, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM nurse`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+nurseCols+` FROM nurse ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Nurse
	for rows.Next() {
		n, err := r.scanNurse(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}
