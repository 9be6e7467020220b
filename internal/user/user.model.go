package user

import (
	"fmt"
	"time"
)

// StartingCoins is the balance every account is created with.
const StartingCoins = 10

type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePlayer, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Role             Role      `json:"role"`
	Coins            int       `json:"coins"`
	IsVerified       bool      `json:"is_verified"`
	VerificationCode *string   `json:"-"`
	Secret2FA        *string   `json:"-"`
	Enabled2FA       bool      `json:"enabled_2fa"`
	OwnedItems       []string  `json:"owned_items"`
	CreatedAt        time.Time `json:"created_at"`
}

// Owns reports whether the cosmetic item is already unlocked.
func (u *User) Owns(itemID string) bool {
	for _, id := range u.OwnedItems {
		if id == itemID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no pointers or slices with u.
func (u *User) Clone() *User {
	c := *u
	if u.VerificationCode != nil {
		code := *u.VerificationCode
		c.VerificationCode = &code
	}
	if u.Secret2FA != nil {
		secret := *u.Secret2FA
		c.Secret2FA = &secret
	}
	c.OwnedItems = append([]string(nil), u.OwnedItems...)
	return &c
}
