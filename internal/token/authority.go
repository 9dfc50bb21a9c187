package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Pair is an access/refresh token pair. Tokens are immutable once issued;
// validity is purely signature plus expiry, there is no revocation list.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authority issues and validates signed bearer tokens. Access and refresh
// tokens are signed with independent secrets so compromise of one does not
// compromise the other.
type Authority struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewAuthority(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Authority {
	return &Authority{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// Issue creates a fresh token pair for subjectID. It has no side effects
// beyond signing; a new pair supersedes but does not invalidate older ones.
func (a *Authority) Issue(subjectID string) (*Pair, error) {
	access, err := a.sign(subjectID, typeAccess, a.accessSecret, a.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := a.sign(subjectID, typeRefresh, a.refreshSecret, a.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(a.accessTTL.Seconds()),
	}, nil
}

// ValidateAccess returns the subject of a valid access token.
// Returns TOKEN_EXPIRED for tokens past expiry and TOKEN_MALFORMED for
// anything with a bad signature, shape, or token type.
func (a *Authority) ValidateAccess(tokenString string) (string, error) {
	return a.validate(tokenString, typeAccess, a.accessSecret)
}

// ValidateRefresh returns the subject of a valid refresh token.
func (a *Authority) ValidateRefresh(tokenString string) (string, error) {
	return a.validate(tokenString, typeRefresh, a.refreshSecret)
}

// Rotate validates refreshToken and re-issues a new access token.
// Policy: the presented refresh token is echoed back unchanged rather than
// rotated, so it stays valid until its natural expiry.
func (a *Authority) Rotate(refreshToken string) (*Pair, error) {
	subjectID, err := a.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	access, err := a.sign(subjectID, typeAccess, a.accessSecret, a.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int(a.accessTTL.Seconds()),
	}, nil
}

func (a *Authority) sign(subjectID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func (a *Authority) validate(tokenString, wantType string, secret []byte) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperrors.TokenExpired()
		}
		return "", apperrors.TokenMalformed(err.Error())
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", apperrors.TokenMalformed("invalid claims")
	}

	if claims.TokenType != wantType {
		return "", apperrors.TokenMalformed(fmt.Sprintf("expected %s token, got %s", wantType, claims.TokenType))
	}

	if claims.Subject == "" {
		return "", apperrors.TokenMalformed("missing subject")
	}

	return claims.Subject, nil
}
