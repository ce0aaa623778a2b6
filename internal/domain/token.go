package domain

import (
	"time"
)

// Token is a bearer session credential. A token is valid for authentication
// exactly as long as its row exists in the store; deletion is the only
// revocation mechanism.
type Token struct {
	Value     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
