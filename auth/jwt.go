package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
)

// Claims carries the verified identity. Subject is the numeric user id.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewJWTAuthenticator(secret, issuer string, ttl time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

func (a *JWTAuthenticator) Authenticate(tokenString string) (domain.Principal, error) {
	if tokenString == "" {
		return domain.Principal{}, &domain.AuthenticationError{Err: errors.New("missing token")}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Principal{}, &domain.AuthenticationError{Err: err}
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.Principal{}, &domain.AuthenticationError{Err: fmt.Errorf("invalid subject %q", claims.Subject)}
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Principal{}, &domain.AuthenticationError{Err: err}
	}

	return domain.Principal{
		Identity: domain.Identity{Role: role, UserID: userID},
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}

// Issue signs a token for p that expires after the authenticator's TTL.
func (a *JWTAuthenticator) Issue(p domain.Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:     string(p.Role),
		Username: p.Username,
		Email:    p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
