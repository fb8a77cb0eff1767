package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// ClientTokenTTL bounds how long a browser can keep using the same client id.
const ClientTokenTTL = 30 * 24 * time.Hour

// ClientTokens signs and validates the bearer tokens that identify a client shell.
type ClientTokens struct {
	secret []byte
	now    func() time.Time
}

func NewClientTokens(secret string) (*ClientTokens, error) {
	if secret == "" {
		return nil, errors.New("client token secret is empty")
	}
	return &ClientTokens{secret: []byte(secret), now: time.Now}, nil
}

// Generate creates a signed HS256 token whose subject is the client id.
func (t *ClientTokens) Generate(clientID string) (string, error) {
	now := t.now()
	claims := jwt.StandardClaims{
		Subject:   clientID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ClientTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ClientID validates tokenString and returns the client id it was issued for.
func (t *ClientTokens) ClientID(tokenString string) (string, error) {
	var claims jwt.StandardClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		// Ensure that the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
