package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const manageTokenIssuer = "bnb-manage"

// ManageClaims lets the holder of a confirmation email see and cancel one booking.
type ManageClaims struct {
	BookingID string `json:"booking_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// ManageTokens signs and checks HS256 manage-booking links.
type ManageTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManageTokens needs a secret of at least 32 bytes.
func NewManageTokens(secret string, ttl time.Duration) (*ManageTokens, error) {
	if len(secret) < 32 {
		return nil, errors.New("manage token secret must be at least 32 bytes")
	}
	return &ManageTokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (m *ManageTokens) Sign(bookingID, email string) (string, error) {
	now := m.now()
	claims := ManageClaims{
		BookingID: bookingID,
		Email:     strings.ToLower(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    manageTokenIssuer,
			Subject:   bookingID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign manage token: %w", err)
	}
	return signed, nil
}

func (m *ManageTokens) Parse(tokenString string) (*ManageClaims, error) {
	claims := &ManageClaims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Issuer != manageTokenIssuer || claims.BookingID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
