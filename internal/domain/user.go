package domain

import (
	"time"
)

// User is the durable identity record. PasswordHash never leaves the
// repository/service boundary; every externally visible shape is a UserView.
type User struct {
	ID           string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserView is the public projection of a User: everything except the
// password hash. It is what the identity cache stores and what handlers
// return.
type UserView struct {
	ID        string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View strips the password hash from a User.
func (u *User) View() UserView {
	return UserView{
		ID:        u.ID,
		UserName:  u.UserName,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
