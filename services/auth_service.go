// Package services, business logic katmanını barındırır.
//
// Handler (WebSocket/CLI) ile Repository (DB) arasında oturur.
// Service ASLA websocket bağlantısı bilmez, ASLA doğrudan SQL çalıştırmaz.
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
)

const tokenIssuer = "parley"

// AuthService, bağlantı kurulurken credential'ı kullanıcı kimliğine çevirir.
// Saf doğrulamadır; DB'ye gitmez ve yan etkisi yoktur.
type AuthService interface {
	// Authenticate, imzayı ve süreyi kontrol eder. Hata her zaman *pkg.AuthError'dır.
	Authenticate(token string) (*models.TokenClaims, error)
	// IssueToken, CLI ve testler için imzalı token üretir.
	IssueToken(userID, username string, ttl time.Duration) (string, error)
}

type authService struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewAuthService, constructor.
func NewAuthService(jwtSecret string) AuthService {
	return newAuthService(jwtSecret, time.Now)
}

func newAuthService(jwtSecret string, now func() time.Time) *authService {
	return &authService{jwtSecret: []byte(jwtSecret), now: now}
}

func (s *authService) Authenticate(tokenString string) (*models.TokenClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, &pkg.AuthError{Reason: pkg.AuthMissing}
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, &pkg.AuthError{Reason: authReason(err), Err: err}
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, &pkg.AuthError{Reason: pkg.AuthMalformed, Err: errors.New("invalid token claims")}
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, &pkg.AuthError{Reason: pkg.AuthMalformed, Err: errors.New("user_id claim is empty")}
	}

	return claims, nil
}

// authReason, jwt hata zincirini AuthError türlerine eşler.
func authReason(err error) pkg.AuthReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return pkg.AuthExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return pkg.AuthInvalidSignature
	default:
		// ErrTokenMalformed, eksik zorunlu claim, nbf/iat ihlalleri
		return pkg.AuthMalformed
	}
}

func (s *authService) IssueToken(userID, username string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", pkg.ErrBadRequest)
	}

	now := s.now()
	claims := &models.TokenClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
