package users

import "time"

// User represents a user account for management. RoleName is populated
// from the joined role row and is empty when the user has no binding.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	RoleID    *int64
	RoleName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
