package users

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/schoolhub/schoolhub/internal/authz"
	"github.com/schoolhub/schoolhub/internal/shared"
)

// Decider is the slice of the authorization core this service consumes.
type Decider interface {
	Decide(ctx context.Context, p authz.Principal, verb authz.Verb, q authz.ResourceQuery) (authz.ScopeDecision, error)
}

// Store defines the directory reads the service needs.
type Store interface {
	List(ctx context.Context, vis authz.Visibility, filters ListFilters, limit, offset int) ([]User, error)
	Count(ctx context.Context, vis authz.Visibility, filters ListFilters) (int, error)
}

// Result bundles a directory page with pagination metadata.
type Result struct {
	Users      []User
	Pagination shared.Pagination
}

// Service serves the scoped user directory.
type Service struct {
	repo    Store
	decider Decider
	titler  cases.Caser
}

// NewService constructs a Service.
func NewService(repo Store, decider Decider) *Service {
	return &Service{
		repo:    repo,
		decider: decider,
		titler:  cases.Title(language.Und),
	}
}

// List returns the directory entries the principal's active role may see.
func (s *Service) List(ctx context.Context, principal authz.Principal, filters ListFilters) (Result, error) {
	dec, err := s.decider.Decide(ctx, principal, authz.VerbList, authz.ResourceQuery{Resource: authz.ResourceUsers})
	if err != nil {
		return Result{}, err
	}
	if !dec.Allowed {
		return Result{}, authz.ErrRoleNotPermitted
	}

	perPage := filters.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	total, err := s.repo.Count(ctx, dec.Visible, filters)
	if err != nil {
		return Result{}, err
	}
	list, err := s.repo.List(ctx, dec.Visible, filters, perPage, (page-1)*perPage)
	if err != nil {
		return Result{}, err
	}
	for i := range list {
		list[i].DisplayName = s.displayName(list[i].FullName)
	}
	return Result{Users: list, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// displayName normalises imported names: rosters frequently arrive fully
// upper- or lower-cased.
func (s *Service) displayName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return full
	}
	if full == strings.ToUpper(full) || full == strings.ToLower(full) {
		return s.titler.String(strings.ToLower(full))
	}
	return full
}
