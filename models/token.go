package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, JWT payload'ı.
// Kullanıcı kimliği user_id claim'inde, son kullanma exp claim'inde taşınır.
// models paketinde durur çünkü services, ws ve CLI hepsi kullanır.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}
