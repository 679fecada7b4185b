package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sagarc03/strongbox"
)

// ErrInvalidToken is returned for any bearer token that fails verification.
var ErrInvalidToken = fmt.Errorf("invalid token: %w", strongbox.ErrUnauthorized)

// JWTAuthenticator verifies HS256 bearer tokens issued elsewhere. The caller
// is the "username" claim, falling back to "sub".
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

type JWTOption func(*jwtOptions)

type jwtOptions struct {
	issuer string
	now    func() time.Time
	leeway time.Duration
}

// WithIssuer requires the "iss" claim to equal issuer.
func WithIssuer(issuer string) JWTOption {
	return func(o *jwtOptions) { o.issuer = issuer }
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(o *jwtOptions) { o.leeway = d }
}

func WithTimeFunc(now func() time.Time) JWTOption {
	return func(o *jwtOptions) { o.now = now }
}

func NewJWTAuthenticator(secret string, opts ...JWTOption) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("new jwt authenticator: %w: secret cannot be empty", strongbox.ErrInvalidInput)
	}

	o := jwtOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}
	if o.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(o.leeway))
	}

	return &JWTAuthenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// Authenticate verifies the token and returns the caller identity.
func (a *JWTAuthenticator) Authenticate(tokenString string) (strongbox.Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return strongbox.Identity{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	parsed, err := a.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return strongbox.Identity{}, fmt.Errorf("token expired: %w", ErrInvalidToken)
		}
		return strongbox.Identity{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return strongbox.Identity{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	if username == "" {
		username = sub
	}
	if username == "" {
		return strongbox.Identity{}, fmt.Errorf("no subject: %w", ErrInvalidToken)
	}
	if sub == "" {
		sub = username
	}

	return strongbox.Identity{ID: sub, Username: username}, nil
}
