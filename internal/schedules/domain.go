package schedules

import "time"

// Schedule is one recurring lesson slot: a subject taught to a class by a
// teacher at a fixed weekday and period.
type Schedule struct {
	ID        int64
	SchoolID  int64
	ClassID   int64
	SubjectID int64
	TeacherID int64
	Weekday   int
	Period    int
	Room      string
	CreatedAt time.Time
}

// ListFilters narrows a listing inside the authorized scope.
type ListFilters struct {
	ClassID *int64
	Weekday *int
	Page    int
	PerPage int
}
