package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the acting user. The subject is the user id.
type Claims struct {
	Role     string `json:"role"`
	ClinicID string `json:"clinic_id"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 token for actor valid for ttl from now.
func Issue(secret string, actor appointment.Actor, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	claims := Claims{
		Role:     string(actor.Role),
		ClinicID: actor.ClinicID.String(),
		Email:    actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenString and resolves it to an Actor.
func Parse(secret, tokenString string) (appointment.Actor, error) {
	if secret == "" {
		return appointment.Actor{}, ErrInvalidToken
	}

	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return appointment.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	clinicID, err := uuid.Parse(claims.ClinicID)
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("%w: bad clinic_id", ErrInvalidToken)
	}
	role := appointment.Role(claims.Role)
	if !role.Valid() {
		return appointment.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return appointment.Actor{
		UserID:   userID,
		Role:     role,
		ClinicID: clinicID,
		Email:    claims.Email,
	}, nil
}
