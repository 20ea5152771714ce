package domain

import "time"

type UserID string

type UserRole string

const (
	RoleBroadcaster UserRole = "broadcaster"
	RoleViewer      UserRole = "viewer"
)

type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
