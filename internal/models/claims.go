package models

import "github.com/golang-jwt/jwt/v5"

// UserClaims is the authenticated principal supplied by the external identity
// system. The core trusts these claims; it does not implement login.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID uint   `json:"user_id"`
	Phone  string `json:"phone"`
	Role   Role   `json:"role"`
}
