package schedules

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/schoolhub/schoolhub/internal/authz"
	"github.com/schoolhub/schoolhub/internal/shared"
)

// Decider is the slice of the authorization core this service consumes.
type Decider interface {
	Decide(ctx context.Context, p authz.Principal, verb authz.Verb, q authz.ResourceQuery) (authz.ScopeDecision, error)
}

// Store defines the schedule reads the service needs.
type Store interface {
	Get(ctx context.Context, id int64) (Schedule, error)
	List(ctx context.Context, vis authz.Visibility, filters ListFilters, limit, offset int) ([]Schedule, error)
	Count(ctx context.Context, vis authz.Visibility, filters ListFilters) (int, error)
}

// Result bundles a schedule page with pagination metadata.
type Result struct {
	Schedules  []Schedule
	Pagination shared.Pagination
}

// Service serves scoped schedule reads.
type Service struct {
	repo    Store
	decider Decider
}

// NewService constructs a Service.
func NewService(repo Store, decider Decider) *Service {
	return &Service{repo: repo, decider: decider}
}

// List returns the schedule rows the principal's active role may see,
// with the decision filter applied at the query.
func (s *Service) List(ctx context.Context, principal authz.Principal, filters ListFilters) (Result, error) {
	dec, err := s.decider.Decide(ctx, principal, authz.VerbList, authz.ResourceQuery{Resource: authz.ResourceSchedules})
	if err != nil {
		return Result{}, err
	}
	if !dec.Allowed {
		return Result{}, authz.ErrRoleNotPermitted
	}

	perPage := filters.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	var (
		list  []Schedule
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.repo.List(gctx, dec.Visible, filters, perPage, (page-1)*perPage)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, dec.Visible, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{Schedules: list, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// Get fetches one schedule if it falls inside the principal's scope. A row
// outside scope surfaces as authz.ErrOutOfScope; handlers map it to the
// same response as a missing row.
func (s *Service) Get(ctx context.Context, principal authz.Principal, id int64) (Schedule, error) {
	sched, err := s.repo.Get(ctx, id)
	if err != nil {
		return Schedule{}, err
	}
	query := authz.ResourceQuery{
		Resource:    authz.ResourceSchedules,
		RequestedID: &id,
		ClassID:     &sched.ClassID,
		SchoolID:    &sched.SchoolID,
	}
	dec, err := s.decider.Decide(ctx, principal, authz.VerbView, query)
	if err != nil {
		return Schedule{}, err
	}
	if !dec.Allowed {
		if dec.Reason == authz.ReasonRoleNotPermitted {
			return Schedule{}, authz.ErrRoleNotPermitted
		}
		return Schedule{}, authz.ErrOutOfScope
	}
	return sched, nil
}
