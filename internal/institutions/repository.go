package institutions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/edulist/backend/internal/models"
)

// ErrNotFound is returned when the user owns no institution.
var ErrNotFound = errors.New("institution not found")

const courseColumns = `id, institution_id, name, price_of_course::text, status, subscription_start_date, subscription_end_date, created_at, updated_at`

// Repository handles institution and course persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an institutions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an institution. owner_id is unique, so a second institution
// for the same user fails with a unique violation.
func (r *Repository) Create(ctx context.Context, inst *models.Institution) error {
	const q = `INSERT INTO institutions (id, owner_id, name, email)
		VALUES (gen_random_uuid(), $1, $2, NULLIF($3, ''))
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, inst.OwnerID, inst.Name, inst.Email).
		Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
}

// GetByOwner returns the institution owned by userID.
func (r *Repository) GetByOwner(ctx context.Context, userID uuid.UUID) (*models.Institution, error) {
	const q = `SELECT id, owner_id, name, COALESCE(email, ''), created_at, updated_at FROM institutions WHERE owner_id = $1`
	var inst models.Institution
	err := r.pool.QueryRow(ctx, q, userID).Scan(&inst.ID, &inst.OwnerID, &inst.Name, &inst.Email, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *Repository) queryCourses(ctx context.Context, q string, args ...any) ([]models.Course, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Course
	for rows.Next() {
		var c models.Course
		var price string
		if err := rows.Scan(&c.ID, &c.InstitutionID, &c.Name, &price, &c.Status,
			&c.SubscriptionStartDate, &c.SubscriptionEndDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.PriceOfCourse, err = decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// ListCourses returns every course of the institution, oldest first.
func (r *Repository) ListCourses(ctx context.Context, institutionID uuid.UUID) ([]models.Course, error) {
	return r.queryCourses(ctx, `SELECT `+courseColumns+` FROM courses WHERE institution_id = $1 ORDER BY created_at, id`, institutionID)
}

// ListInactiveCourses returns the institution's Inactive courses, oldest first.
func (r *Repository) ListInactiveCourses(ctx context.Context, institutionID uuid.UUID) ([]models.Course, error) {
	return r.queryCourses(ctx, `SELECT `+courseColumns+` FROM courses WHERE institution_id = $1 AND status = $2 ORDER BY created_at, id`,
		institutionID, string(models.CourseStatusInactive))
}

// CreateCourse inserts an Inactive course.
func (r *Repository) CreateCourse(ctx context.Context, c *models.Course) error {
	const q = `INSERT INTO courses (id, institution_id, name, price_of_course, status)
		VALUES (gen_random_uuid(), $1, $2, $3::numeric, $4)
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, c.InstitutionID, c.Name, c.PriceOfCourse.String(), string(models.CourseStatusInactive)).
		Scan(&c.ID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
}
