package users

import (
	"strings"
	"time"

	"github.com/willsmith28/Cookbook/internal/auth"
)

// User is a local account that can author recipes.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190"`
	Username     string    `gorm:"column:username;size:150;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:72;not null"`
	IsStaff      bool      `gorm:"column:is_staff;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// Models lists the tables owned by the users package.
func Models() []interface{} {
	return []interface{}{&User{}}
}

// Identity converts the account into the claims carried by a session token.
func (u User) Identity() auth.Identity {
	var roles []string
	if u.IsStaff {
		roles = append(roles, auth.RoleStaff)
	}
	return auth.Identity{UserID: u.ID, Username: u.Username, Roles: roles}
}

// UserView is the public representation of an account.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
}

// View renders the account without its credentials.
func (u User) View() UserView {
	return UserView{ID: u.ID, Username: u.Username, IsStaff: u.IsStaff}
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
