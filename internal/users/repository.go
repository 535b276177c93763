package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolhub/schoolhub/internal/authz"
)

// Repository provides PostgreSQL backed persistence for the directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// List returns directory entries inside the visibility filter.
func (r *Repository) List(ctx context.Context, vis authz.Visibility, filters ListFilters, limit, offset int) ([]User, error) {
	where, args := visibilityClause(vis, filters)
	if where == "" {
		return nil, nil
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT u.id, u.email, u.full_name, COALESCE(u.role, ''), u.school_id, u.is_active, u.created_at
		 FROM users u
		 WHERE %s
		 ORDER BY u.full_name, u.id
		 LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.PrimaryRole, &u.SchoolID, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of directory entries inside the filter.
func (r *Repository) Count(ctx context.Context, vis authz.Visibility, filters ListFilters) (int, error) {
	where, args := visibilityClause(vis, filters)
	if where == "" {
		return 0, nil
	}
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u WHERE `+where, args...).Scan(&total)
	return total, err
}

// visibilityClause renders the decision filter plus caller filters as SQL.
// An empty clause means nothing is visible and no query should run.
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
			conds = append(conds, fmt.Sprintf("u.id = ANY($%d)", len(args)))
		case authz.ScopeFieldSchool:
			conds = append(conds, fmt.Sprintf("u.school_id = ANY($%d)", len(args)))
		case authz.ScopeFieldClass:
			conds = append(conds, fmt.Sprintf(
				"u.id IN (SELECT student_id FROM class_enrollments WHERE class_id = ANY($%d))", len(args)))
		default:
			return "", nil
		}
	}

	if search := strings.TrimSpace(filters.Search); search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, fmt.Sprintf("(u.full_name ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) == 0 {
		conds = append(conds, "TRUE")
	}
	return strings.Join(conds, " AND "), args
}
