package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tendant/wirekit/internal/domain"
	apperrors "github.com/tendant/wirekit/internal/errors"
)

// SessionClaims are the claims carried by a session cookie.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// tokenSigner issues and verifies HS256 session tokens.
type tokenSigner struct {
	secret []byte
	now    func() time.Time
}

func (t *tokenSigner) issue(user *domain.User, ttl time.Duration) (string, error) {
	now := t.now()
	claims := SessionClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// verify returns the user a token was issued to. Failures carry
// CodeTokenExpired or CodeTokenInvalid.
func (t *tokenSigner) verify(tokenString string) (*domain.User, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrap(err, apperrors.CodeTokenExpired, "session token expired")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeTokenInvalid, "session token invalid")
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperrors.New(apperrors.CodeTokenInvalid, "session token has no subject")
	}
	return &domain.User{ID: claims.Subject, Username: claims.Username}, nil
}
