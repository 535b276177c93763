package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GrantIntegrityScanner reports drift between stored role state and the
// grant tables. It never mutates anything: active-role repair stays in the
// request-time resolver, this job only surfaces rows the resolver will end
// up repairing.
type GrantIntegrityScanner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewGrantIntegrityScanner constructs a scanner.
func NewGrantIntegrityScanner(pool *pgxpool.Pool, logger *slog.Logger) *GrantIntegrityScanner {
	return &GrantIntegrityScanner{pool: pool, logger: logger}
}

// Handle processes TaskGrantIntegrityScan tasks.
func (s *GrantIntegrityScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GrantIntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	orphanedGrants, err := s.countOrphanedGrants(ctx)
	if err != nil {
		return err
	}
	staleActive, err := s.countStaleActiveRoles(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("grant integrity scan finished",
		slog.Time("requested_at", payload.RequestedAt),
		slog.Int("orphaned_grants", orphanedGrants),
		slog.Int("stale_active_roles", staleActive),
	)
	if orphanedGrants > 0 {
		s.logger.Warn("grants reference deleted schools or classes", slog.Int("count", orphanedGrants))
	}
	return nil
}

// countOrphanedGrants finds grants whose bound school or class no longer
// exists.
func (s *GrantIntegrityScanner) countOrphanedGrants(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM role_grants g
		 WHERE (g.school_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM schools sc WHERE sc.id = g.school_id))
		    OR (g.class_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM classes c WHERE c.id = g.class_id))`,
	).Scan(&count)
	return count, err
}

// countStaleActiveRoles finds users whose stored active role matches
// neither their primary role nor any remaining grant.
func (s *GrantIntegrityScanner) countStaleActiveRoles(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users u
		 WHERE u.active_role IS NOT NULL
		   AND u.active_role IS DISTINCT FROM u.role
		   AND NOT EXISTS (
		       SELECT 1 FROM role_grants g
		       WHERE g.user_id = u.id
		         AND g.role = u.active_role
		         AND g.school_id IS NOT DISTINCT FROM u.active_school_id
		         AND g.class_id IS NOT DISTINCT FROM u.active_class_id)`,
	).Scan(&count)
	return count, err
}
