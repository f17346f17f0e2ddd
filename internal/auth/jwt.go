// Package auth verifies connection credentials and internal service keys.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/PaulBabatuyi/inboxd/internal/normalize"
)

// JWTManager signs and validates the bearer tokens presented on connect.
// It holds one or more HMAC keys addressed by key id so keys can rotate:
// new tokens use the active key, older tokens verify with whichever key
// their kid header names.
type JWTManager struct {
	keys      map[string][]byte
	activeKid string
	duration  time.Duration
}

// Claims is the JWT payload; the user id is the identity bound to a connection.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// NewJWTManager returns a manager with a single secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return NewJWTManagerFromKeys(map[string]string{"": secretKey}, "", duration)
}

// NewJWTManagerFromKeys returns a manager with several kid:secret keys.
// If activeKid is not among the keys, the lexically first kid is used.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	m := &JWTManager{keys: make(map[string][]byte, len(keys)), activeKid: activeKid, duration: duration}
	first := ""
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
		if first == "" || kid < first {
			first = kid
		}
	}
	if _, ok := m.keys[activeKid]; !ok {
		m.activeKid = first
	}
	return m
}

// GenerateToken issues a signed token for userID.
func (m *JWTManager) GenerateToken(userID string) (string, time.Time, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := time.Now()
	expiresAt := now.Add(m.duration)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	signed, err := token.SignedString(m.keys[m.activeKid])
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyToken parses a token, checks signature and expiry and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// only HMAC; rejects alg=none and asymmetric confusion
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		key, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims.UserID = normalize.UserID(claims.UserID)
	if claims.UserID == "" {
		claims.UserID = normalize.UserID(claims.Subject)
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}

// HashServiceKey returns a bcrypt hash of an internal API key, suitable
// for SERVICE_KEY_HASH.
func HashServiceKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("service key is empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckServiceKey compares a presented key against a bcrypt hash.
func CheckServiceKey(hash, key string) error {
	if hash == "" {
		return errors.New("no service key configured")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}
