// Package session encodes token sets into signed, time-bounded artifacts and
// persists them in either the artifact itself (cookie store) or DynamoDB.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// DefaultMaxAge is the session horizon, independent of the access token expiry.
const DefaultMaxAge = 30 * 24 * time.Hour

// MinSecretLength is the shortest signing secret NewCodec accepts.
const MinSecretLength = 16

const (
	kindTokens    = "tokens"
	kindReference = "ref"
)

var (
	// ErrNoSession is returned when there is no usable session. It never says why.
	ErrNoSession = errors.New("session: no session")

	// ErrWeakSecret is returned by NewCodec for secrets shorter than MinSecretLength.
	ErrWeakSecret = errors.New("session: signing secret too short")
)

type tokenClaims struct {
	Kind         string `json:"kind"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	TokenExpiry  int64  `json:"expiresAt,omitempty"` // unix milliseconds
	jwt.RegisteredClaims
}

// Codec signs and verifies session artifacts with a process-wide HMAC secret.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithMaxAge overrides the session horizon.
func WithMaxAge(d time.Duration) CodecOption {
	return func(c *Codec) { c.maxAge = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a Codec signing with secret. The secret is copied.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	c := &Codec{
		secret: []byte(secret),
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MaxAge reports the session horizon the codec stamps into artifacts.
func (c *Codec) MaxAge() time.Duration {
	return c.maxAge
}

// Encode serializes ts into an HS256-signed artifact expiring after MaxAge.
func (c *Codec) Encode(ts model.TokenSet) (string, error) {
	claims := tokenClaims{
		Kind:             kindTokens,
		AccessToken:      ts.AccessToken,
		RefreshToken:     ts.RefreshToken,
		TokenType:        ts.TokenType,
		Scope:            ts.Scope,
		IDToken:          ts.IDToken,
		TokenExpiry:      ts.ExpiresAt.UnixMilli(),
		RegisteredClaims: c.registered(""),
	}
	return c.sign(claims)
}

// Decode verifies an artifact produced by Encode. Any structural, signature,
// algorithm or expiry failure yields (nil, false).
func (c *Codec) Decode(value string) (*model.TokenSet, bool) {
	claims, ok := c.verify(value, kindTokens)
	if !ok || claims.AccessToken == "" {
		return nil, false
	}
	return &model.TokenSet{
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		TokenType:    claims.TokenType,
		Scope:        claims.Scope,
		IDToken:      claims.IDToken,
		ExpiresAt:    time.UnixMilli(claims.TokenExpiry),
	}, true
}

// EncodeReference signs an opaque server-side session id.
func (c *Codec) EncodeReference(id string) (string, error) {
	return c.sign(tokenClaims{
		Kind:             kindReference,
		RegisteredClaims: c.registered(id),
	})
}

// DecodeReference verifies a reference produced by EncodeReference.
func (c *Codec) DecodeReference(value string) (string, bool) {
	claims, ok := c.verify(value, kindReference)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func (c *Codec) registered(subject string) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
	}
}

func (c *Codec) sign(claims tokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *Codec) verify(value, kind string) (*tokenClaims, bool) {
	if value == "" {
		return nil, false
	}
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(value, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid || claims.Kind != kind {
		return nil, false
	}
	return claims, true
}
