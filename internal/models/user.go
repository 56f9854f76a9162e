package models

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User is the API view of an account: identity from the provider merged with
// the profile row.
type User struct {
	ID        string    `json:"id"` // uuid
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	Language  string    `json:"language"`
}

func (u User) Role() UserRole {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

type UserList struct {
	Users   []User `json:"users"`
	Total   int64  `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

type UserStats struct {
	TotalUsers        int64 `json:"totalUsers"`
	NewUsersThisWeek  int64 `json:"newUsersThisWeek"`
	NewUsersThisMonth int64 `json:"newUsersThisMonth,omitempty"`
	ActiveUsersToday  int64 `json:"activeUsersToday"`
}
