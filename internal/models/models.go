package models

import "time"

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// User is the identity record the auth core resolves by username.
// Accounts are never removed; Deleted marks a locked account.
type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null"     json:"username"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null"                 json:"role"`
	Deleted      bool      `gorm:"not null"                 json:"deleted"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) Active() bool { return !u.Deleted }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
