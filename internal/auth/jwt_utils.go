package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid access key")
)

// Claims defines what is inside the dashboard token (the "ID card")
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and checks dashboard tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a signed JWT for a user
func (i *Issuer) GenerateToken(userID, role string) (string, error) {
	now := i.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// ValidateToken checks if a token is fake or expired
func (i *Issuer) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// KeyVerifier checks the shared sync key, either against the plain key or
// a bcrypt hash of it.
type KeyVerifier struct {
	plain []byte
	hash  []byte
}

func NewKeyVerifier(plain, hash string) *KeyVerifier {
	v := &KeyVerifier{}
	if plain != "" {
		v.plain = []byte(plain)
	}
	if hash != "" {
		v.hash = []byte(hash)
	}
	return v
}

// Configured reports whether any key was set.
func (v *KeyVerifier) Configured() bool { return v.plain != nil || v.hash != nil }

func (v *KeyVerifier) Verify(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if v.plain != nil && subtle.ConstantTimeCompare(v.plain, []byte(key)) == 1 {
		return nil
	}
	if v.hash != nil && bcrypt.CompareHashAndPassword(v.hash, []byte(key)) == nil {
		return nil
	}
	return ErrInvalidKey
}

// HashKey produces the value for SYNC_API_KEY_HASH.
func HashKey(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
