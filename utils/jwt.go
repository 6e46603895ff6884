package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the kind of principal a token was issued to.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleDriver   Role = "driver"
)

var ErrUnknownRole = errors.New("unknown token role")

type Claims struct {
	Role Role `json:"role"`
	jwt.StandardClaims
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	ID   primitive.ObjectID
	Role Role
}

// TokenManager signs and verifies HS256 tokens, one secret per role so a
// customer token can never pass as a driver or admin token.
type TokenManager struct {
	secrets map[Role][]byte
	ttl     time.Duration
	now     func() time.Time
}

func NewTokenManager(customerSecret, adminSecret, driverSecret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secrets: map[Role][]byte{
			RoleCustomer: []byte(customerSecret),
			RoleAdmin:    []byte(adminSecret),
			RoleDriver:   []byte(driverSecret),
		},
		ttl: ttl,
		now: time.Now,
	}
}

func (m *TokenManager) GenerateJWT(role Role, subject primitive.ObjectID) (string, error) {
	secret, ok := m.secrets[role]
	if !ok {
		return "", ErrUnknownRole
	}

	now := m.now()
	claims := &Claims{
		Role: role,
		StandardClaims: jwt.StandardClaims{
			Subject:   subject.Hex(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(m.ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateJWT verifies tokenString against the secret of the expected role.
func (m *TokenManager) ValidateJWT(role Role, tokenString string) (*Principal, error) {
	secret, ok := m.secrets[role]
	if !ok {
		return nil, ErrUnknownRole
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Role != role {
		return nil, fmt.Errorf("token role %q, want %q", claims.Role, role)
	}

	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	return &Principal{ID: id, Role: role}, nil
}
