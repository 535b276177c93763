package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolhub/schoolhub/internal/platform/db"
	"github.com/schoolhub/schoolhub/internal/shared"
)

// Repository provides PostgreSQL backed persistence for grants and the
// per-user active role, plus the link-table lookups behind derived scopes.
// It satisfies both GrantStore and DerivationSource.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ GrantStore       = (*Repository)(nil)
	_ DerivationSource = (*Repository)(nil)
)

// UserRole loads the persisted role snapshot for one user.
func (r *Repository) UserRole(ctx context.Context, userID int64) (UserRoleState, error) {
	var (
		primaryRole  *string
		activeRole   *string
		schoolID     *int64
		activeSchool *int64
		activeClass  *int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT role, school_id, active_role, active_school_id, active_class_id FROM users WHERE id = $1`,
		userID,
	).Scan(&primaryRole, &schoolID, &activeRole, &activeSchool, &activeClass)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRoleState{}, shared.ErrNotFound
		}
		return UserRoleState{}, err
	}
	state := UserRoleState{
		PrimarySchoolID: schoolID,
		ActiveSchoolID:  activeSchool,
		ActiveClassID:   activeClass,
	}
	if primaryRole != nil {
		state.PrimaryRole = Role(*primaryRole)
	}
	if activeRole != nil {
		state.ActiveRole = Role(*activeRole)
	}
	return state, nil
}

// Grants returns the user's grants in insertion order.
func (r *Repository) Grants(ctx context.Context, userID int64) ([]RoleGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, role, school_id, class_id, created_at
		 FROM role_grants WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []RoleGrant
	for rows.Next() {
		var g RoleGrant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Role, &g.SchoolID, &g.ClassID, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// InsertGrant stores a grant. A unique-violation on the
// (user, role, school, class) index resolves to the existing row, making
// creation idempotent.
func (r *Repository) InsertGrant(ctx context.Context, grant RoleGrant) (RoleGrant, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO role_grants (user_id, role, school_id, class_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		grant.UserID, grant.Role, grant.SchoolID, grant.ClassID,
	).Scan(&grant.ID, &grant.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return r.findGrant(ctx, grant)
		}
		return RoleGrant{}, err
	}
	return grant, nil
}

func (r *Repository) findGrant(ctx context.Context, grant RoleGrant) (RoleGrant, error) {
	err := r.pool.QueryRow(ctx,
		`SELECT id, created_at FROM role_grants
		 WHERE user_id = $1 AND role = $2
		   AND school_id IS NOT DISTINCT FROM $3
		   AND class_id IS NOT DISTINCT FROM $4`,
		grant.UserID, grant.Role, grant.SchoolID, grant.ClassID,
	).Scan(&grant.ID, &grant.CreatedAt)
	if err != nil {
		return RoleGrant{}, err
	}
	return grant, nil
}

// DeleteGrant removes a grant belonging to the user. Returns false when no
// row was deleted.
func (r *Repository) DeleteGrant(ctx context.Context, userID, grantID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM role_grants WHERE id = $1 AND user_id = $2`,
		grantID, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveActiveRole persists a repaired active role.
func (r *Repository) SaveActiveRole(ctx context.Context, userID int64, role Role, schoolID, classID *int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET active_role = $2, active_school_id = $3, active_class_id = $4, updated_at = NOW()
		 WHERE id = $1`,
		userID, role, schoolID, classID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SwitchActiveRole applies the role change and its audit entry in a single
// transaction.
func (r *Repository) SwitchActiveRole(ctx context.Context, userID int64, role Role, schoolID, classID *int64, log shared.AuditLog) error {
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return fmt.Errorf("authz: marshal audit meta: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET active_role = $2, active_school_id = $3, active_class_id = $4, updated_at = NOW()
			 WHERE id = $1`,
			userID, role, schoolID, classID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())`,
			log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON,
		)
		return err
	})
}

// TeacherClassIDs returns the distinct classes on the teacher's schedule.
func (r *Repository) TeacherClassIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	return r.queryIDs(ctx,
		`SELECT DISTINCT class_id FROM schedules WHERE teacher_id = $1 ORDER BY class_id`,
		teacherID,
	)
}

// TeacherSubjectIDs returns the subjects assigned to the teacher.
func (r *Repository) TeacherSubjectIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	return r.queryIDs(ctx,
		`SELECT subject_id FROM teacher_subjects WHERE teacher_id = $1 ORDER BY subject_id`,
		teacherID,
	)
}

// StudentClassIDs returns the classes the student is enrolled in.
func (r *Repository) StudentClassIDs(ctx context.Context, studentID int64) ([]int64, error) {
	return r.queryIDs(ctx,
		`SELECT class_id FROM class_enrollments WHERE student_id = $1 ORDER BY class_id`,
		studentID,
	)
}

// ParentChildIDs returns the students linked to the parent.
func (r *Repository) ParentChildIDs(ctx context.Context, parentID int64) ([]int64, error) {
	return r.queryIDs(ctx,
		`SELECT student_id FROM parent_links WHERE parent_id = $1 ORDER BY student_id`,
		parentID,
	)
}

func (r *Repository) queryIDs(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
