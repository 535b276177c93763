package schedules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolhub/schoolhub/internal/authz"
	"github.com/schoolhub/schoolhub/internal/shared"
)

// Repository provides PostgreSQL backed persistence for schedules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const scheduleColumns = `s.id, s.school_id, s.class_id, s.subject_id, s.teacher_id, s.weekday, s.period, COALESCE(s.room, ''), s.created_at`

// Get fetches a single schedule row.
func (r *Repository) Get(ctx context.Context, id int64) (Schedule, error) {
	var sched Schedule
	err := r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules s WHERE s.id = $1`, id,
	).Scan(&sched.ID, &sched.SchoolID, &sched.ClassID, &sched.SubjectID, &sched.TeacherID,
		&sched.Weekday, &sched.Period, &sched.Room, &sched.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schedule{}, shared.ErrNotFound
		}
		return Schedule{}, err
	}
	return sched, nil
}

// List returns schedule rows inside the visibility filter.
func (r *Repository) List(ctx context.Context, vis authz.Visibility, filters ListFilters, limit, offset int) ([]Schedule, error) {
	where, args := visibilityClause(vis, filters)
	if where == "" {
		return nil, nil
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT `+scheduleColumns+` FROM schedules s
		 WHERE %s
		 ORDER BY s.weekday, s.period, s.id
		 LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var sched Schedule
		if err := rows.Scan(&sched.ID, &sched.SchoolID, &sched.ClassID, &sched.SubjectID, &sched.TeacherID,
			&sched.Weekday, &sched.Period, &sched.Room, &sched.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of schedule rows inside the filter.
func (r *Repository) Count(ctx context.Context, vis authz.Visibility, filters ListFilters) (int, error) {
	where, args := visibilityClause(vis, filters)
	if where == "" {
		return 0, nil
	}
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schedules s WHERE `+where, args...).Scan(&total)
	return total, err
}

func visibilityClause(vis authz.Visibility, filters ListFilters) (string, []any) {
	var conds []string
	var args []any

	switch vis.Kind {
	case authz.VisibilityNone:
		return "", nil
	case authz.VisibilityAll:
		// no scope condition
	case authz.VisibilityIDs:
		args = append(args, vis.IDs)
		switch vis.Field {
		case authz.ScopeFieldID:
			conds = append(conds, fmt.Sprintf("s.id = ANY($%d)", len(args)))
		case authz.ScopeFieldClass:
			conds = append(conds, fmt.Sprintf("s.class_id = ANY($%d)", len(args)))
		case authz.ScopeFieldSchool:
			conds = append(conds, fmt.Sprintf("s.school_id = ANY($%d)", len(args)))
		default:
			return "", nil
		}
	}

	if filters.ClassID != nil {
		args = append(args, *filters.ClassID)
		conds = append(conds, fmt.Sprintf("s.class_id = $%d", len(args)))
	}
	if filters.Weekday != nil {
		args = append(args, *filters.Weekday)
		conds = append(conds, fmt.Sprintf("s.weekday = $%d", len(args)))
	}
	if len(conds) == 0 {
		conds = append(conds, "TRUE")
	}
	return strings.Join(conds, " AND "), args
}
