// Package auth issues short-lived signed tickets that authenticate clients
// which cannot attach a session header, such as browser EventSource streams.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const generatedSecretLen = 32

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errInvalidTicketTTL     = errors.New("ticket ttl must be positive")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// TicketIssuerConfig configures the stream ticket issuer.
type TicketIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TicketTTL     time.Duration
	Clock         func() time.Time
}

// TicketIssuer signs and validates HS256 tickets bound to a user.
type TicketIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// Ticket is a signed credential and its lifetime in seconds.
type Ticket struct {
	Value     string `json:"ticket"`
	ExpiresIn int64  `json:"expiresIn"`
}

// NewTicketIssuer validates the configuration and returns a TicketIssuer.
func NewTicketIssuer(cfg TicketIssuerConfig) (*TicketIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errMissingAudience
	}
	if cfg.TicketTTL <= 0 {
		return nil, errInvalidTicketTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketIssuer{
		signingSecret: cfg.SigningSecret,
		issuer:        issuer,
		audience:      audience,
		ttl:           cfg.TicketTTL,
		clock:         clock,
	}, nil
}

// GenerateSecret returns a random signing secret for processes started
// without a configured one. Tickets signed with it die with the process.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, generatedSecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// Issue signs a ticket for userID.
func (i *TicketIssuer) Issue(userID string) (Ticket, error) {
	if strings.TrimSpace(userID) == "" {
		return Ticket{}, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	registered := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    i.issuer,
		Audience:  []string{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Value: signed, ExpiresIn: int64(expiresAt.Sub(now).Seconds())}, nil
}

// Validate checks the signature, issuer, audience and expiry of value and
// returns the user it was issued for. Expired tickets wrap jwt.ErrTokenExpired.
func (i *TicketIssuer) Validate(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubjectClaim
	}
	return claims.Subject, nil
}
