package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T, secret string, clock func() time.Time) *TicketIssuer {
	t.Helper()
	issuer, err := NewTicketIssuer(TicketIssuerConfig{
		SigningSecret: []byte(secret),
		Issuer:        "studyflow-api",
		Audience:      "studyflow-stream",
		TicketTTL:     time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTicketIssuerIssuesSignedTickets(t *testing.T) {
	issuer := newTestIssuer(t, "super-secret", nil)

	ticket, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if ticket.ExpiresIn != 60 {
		t.Fatalf("unexpected expiry seconds %d", ticket.ExpiresIn)
	}

	parser := jwt.Parser{}
	claims := &jwt.RegisteredClaims{}
	_, err = parser.ParseWithClaims(ticket.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated ticket: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "studyflow-api" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "studyflow-stream" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTicketIssuerValidatesIssuedTickets(t *testing.T) {
	issuer := newTestIssuer(t, "another-secret", nil)

	ticket, err := issuer.Issue("user-321")
	if err != nil {
		t.Fatalf("unexpected error issuing ticket: %v", err)
	}
	subject, err := issuer.Validate(ticket.Value)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if subject != "user-321" {
		t.Fatalf("unexpected subject %s", subject)
	}

	if _, err := issuer.Validate("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed ticket")
	}
}

func TestTicketIssuerRejectsForeignSignatures(t *testing.T) {
	issuer := newTestIssuer(t, "secret-a", nil)
	other := newTestIssuer(t, "secret-b", nil)

	ticket, err := other.Issue("user-1")
	if err != nil {
		t.Fatalf("unexpected error issuing ticket: %v", err)
	}
	if _, err := issuer.Validate(ticket.Value); err == nil {
		t.Fatalf("expected ticket signed with another secret to be rejected")
	}
}

func TestTicketIssuerRejectsExpiredTickets(t *testing.T) {
	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, "secret", func() time.Time { return now })

	ticket, err := issuer.Issue("user-1")
	if err != nil {
		t.Fatalf("unexpected error issuing ticket: %v", err)
	}

	now = now.Add(2 * time.Minute)
	_, err = issuer.Validate(ticket.Value)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired ticket error, got %v", err)
	}
}

func TestTicketIssuerRejectsEmptySubject(t *testing.T) {
	issuer := newTestIssuer(t, "secret", nil)
	if _, err := issuer.Issue("  "); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestNewTicketIssuerValidatesConfig(t *testing.T) {
	testCases := []struct {
		name   string
		config TicketIssuerConfig
	}{
		{
			name:   "missing secret",
			config: TicketIssuerConfig{Issuer: "studyflow-api", Audience: "studyflow-stream", TicketTTL: time.Minute},
		},
		{
			name:   "missing issuer",
			config: TicketIssuerConfig{SigningSecret: []byte("secret"), Audience: "studyflow-stream", TicketTTL: time.Minute},
		},
		{
			name:   "blank audience",
			config: TicketIssuerConfig{SigningSecret: []byte("secret"), Issuer: "studyflow-api", Audience: " ", TicketTTL: time.Minute},
		},
		{
			name:   "non-positive ttl",
			config: TicketIssuerConfig{SigningSecret: []byte("secret"), Issuer: "studyflow-api", Audience: "studyflow-stream"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewTicketIssuer(testCase.config); err == nil {
				t.Fatalf("expected constructor error")
			}
		})
	}
}

func TestGenerateSecretReturnsDistinctValues(t *testing.T) {
	first, err := GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	second, err := GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if len(first) != generatedSecretLen || string(first) == string(second) {
		t.Fatalf("expected distinct %d-byte secrets", generatedSecretLen)
	}
}
