package service

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenSession = "session"
	TokenVerify  = "verify"
	TokenAdmin   = "admin"
)

type tokenClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens signs and parses the HS256 tokens used for user sessions, admin
// sessions and email verification links.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, sessionTTL time.Duration) *Tokens {
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: sessionTTL, now: time.Now}
}

func (t *Tokens) TTL() time.Duration { return t.ttl }

func (t *Tokens) Issue(typ string, subject uint, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = t.ttl
	}
	now := t.now()
	claims := tokenClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(subject), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates token and returns its subject, requiring the given type.
func (t *Tokens) Parse(token, typ string) (uint, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return 0, ErrInvalidToken
	}
	if claims.Type != typ {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}
