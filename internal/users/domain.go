package users

import "time"

// User is a directory entry: any person known to a school, whether they
// log in as staff, student, or parent.
type User struct {
	ID          int64
	Email       string
	FullName    string
	DisplayName string
	PrimaryRole string
	SchoolID    *int64
	IsActive    bool
	CreatedAt   time.Time
}

// ListFilters captures the caller-controlled slice of the directory.
// The scope filter itself always comes from an access decision, never
// from the request.
type ListFilters struct {
	Search  string
	Page    int
	PerPage int
}
