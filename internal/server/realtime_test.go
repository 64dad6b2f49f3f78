package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/sessions"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newStreamTestHandler(t *testing.T, clock func() time.Time) (*httpHandler, *auth.TicketIssuer, *observer.ObservedLogs) {
	t.Helper()
	issuer, err := auth.NewTicketIssuer(auth.TicketIssuerConfig{
		SigningSecret: []byte("stream-secret"),
		Issuer:        "studyflow-api",
		Audience:      "studyflow-stream",
		TicketTTL:     time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("construct ticket issuer: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionStore{sessions: map[string]sessions.Session{
			"valid-token": {Token: "valid-token", UserID: "user-7"},
		}},
		tickets:    issuer,
		cookieName: defaultCookieName,
		logger:     zap.New(core),
	}
	return handler, issuer, logs
}

func TestAuthorizeStreamAcceptsTicket(t *testing.T) {
	handler, issuer, _ := newStreamTestHandler(t, nil)
	ticket, err := issuer.Issue("user-42")
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	ctx, recorder := newAuthTestContext(t, func(request *http.Request) {
		request.URL.RawQuery = "ticket=" + ticket.Value
	})

	handler.authorizeStream(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected the request to proceed, got status %d", recorder.Code)
	}
	if actor := actorFrom(ctx); actor.UserID != "user-42" || actor.SessionID != "" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthorizeStreamLogsExpiredTicketAtInfoLevel(t *testing.T) {
	now := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
	handler, issuer, logs := newStreamTestHandler(t, func() time.Time { return now })
	ticket, err := issuer.Issue("user-42")
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	now = now.Add(5 * time.Minute)
	ctx, recorder := newAuthTestContext(t, func(request *http.Request) {
		request.URL.RawQuery = "ticket=" + ticket.Value
	})

	handler.authorizeStream(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if logs.FilterLevelExact(zapcore.InfoLevel).Len() != 1 || logs.FilterLevelExact(zapcore.WarnLevel).Len() != 0 {
		t.Fatalf("expected a single info entry, got %+v", logs.All())
	}
}

func TestAuthorizeStreamLogsForgedTicketAtWarnLevel(t *testing.T) {
	handler, _, logs := newStreamTestHandler(t, nil)
	ctx, recorder := newAuthTestContext(t, func(request *http.Request) {
		request.URL.RawQuery = "ticket=forged.ticket.value"
	})

	handler.authorizeStream(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.FilterMessage("ticket validation failed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %+v", logs.All())
	}
}

func TestAuthorizeStreamFallsBackToSessionToken(t *testing.T) {
	handler, _, _ := newStreamTestHandler(t, nil)
	ctx, _ := newAuthTestContext(t, func(request *http.Request) {
		request.Header.Set("Authorization", "Bearer valid-token")
	})

	handler.authorizeStream(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected the session token to be accepted")
	}
	if actor := actorFrom(ctx); actor.UserID != "user-7" || actor.SessionID != "valid-token" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}
