package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RoyPeng126/ai-companion-sub000/internal/config"
	"github.com/RoyPeng126/ai-companion-sub000/internal/store"
)

func TestHealthOK(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}
	if body["service"] != "ai-companion-api" {
		t.Fatalf("expected service=ai-companion-api, got %v", body["service"])
	}
}

func TestHealthReportsDatabaseOutage(t *testing.T) {
	env := newTestEnv(t, withPinger(failingPinger{}))
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeJSONMap(t, rec); body["database"] != "unavailable" {
		t.Fatalf("expected database=unavailable, got %v", body)
	}
}

func TestProtectedEndpointRejectsMissingBearerToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/reminders", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Bearer token required" {
		t.Fatalf("expected Bearer token required, got %q", detail)
	}
}

func TestProtectedEndpointRejectsMalformedToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/reminders", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Invalid bearer token" {
		t.Fatalf("expected invalid bearer token detail, got %q", detail)
	}
}

func TestProtectedEndpointRejectsTokenWithoutSub(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/reminders", signToken(t, "", map[string]any{"role": "elder"}), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rec.Code, rec.Body.String())
	}
	if detail := responseDetail(t, rec); detail != "Token subject missing" {
		t.Fatalf("expected token subject missing detail, got %q", detail)
	}
}

func TestProtectedEndpointRejectsWrongAlgorithm(t *testing.T) {
	env := newTestEnv(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": testID(), "role": "elder"})
	signed, err := token.SignedString([]byte(baseTestConfig.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec := env.do(t, http.MethodGet, "/api/reminders", signed, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedEndpointChecksAudienceAndIssuer(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *config.Config) {
		cfg.JWTAudience = "companion-app"
		cfg.JWTIssuer = "companion-auth"
	}))
	wrongAudience := signToken(t, testID(), map[string]any{"role": "elder", "aud": "other", "iss": "companion-auth"})
	rec := env.do(t, http.MethodGet, "/api/reminders", wrongAudience, nil)
	if detail := responseDetail(t, rec); detail != "Invalid token audience" {
		t.Fatalf("expected audience rejection, got %d %q", rec.Code, detail)
	}

	wrongIssuer := signToken(t, testID(), map[string]any{"role": "elder", "aud": "companion-app", "iss": "other"})
	rec = env.do(t, http.MethodGet, "/api/reminders", wrongIssuer, nil)
	if detail := responseDetail(t, rec); detail != "Invalid token issuer" {
		t.Fatalf("expected issuer rejection, got %d %q", rec.Code, detail)
	}

	good := signToken(t, testID(), map[string]any{"role": "elder", "aud": []string{"companion-app"}, "iss": "companion-auth"})
	rec = env.do(t, http.MethodGet, "/api/reminders", good, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAuthAcceptsCookieToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/reminders", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: elderToken(t, testID())})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cookie auth to pass, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAuthLooksUpRoleWhenTokenOmitsIt(t *testing.T) {
	env := newTestEnv(t)
	userID := testID()
	env.users.users[userID] = store.User{ID: userID, Name: "陳爺爺", Role: "elder"}

	resp := decodeChat(t, env.do(t, http.MethodPost, "/api/chat", signToken(t, userID, nil), map[string]any{
		"message": "提醒我晚上8點吃藥",
	}))
	if resp.Intent != "create_reminder" {
		t.Fatalf("expected elder role from directory, got intent %q", resp.Intent)
	}

	rec := env.do(t, http.MethodGet, "/api/reminders", signToken(t, testID(), nil), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "User not found" {
		t.Fatalf("expected User not found, got %q", detail)
	}

	env.users.err = errors.New("db down")
	rec = env.do(t, http.MethodGet, "/api/reminders", signToken(t, userID, nil), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when lookup fails, got %d", rec.Code)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *config.Config) {
		cfg.RateLimitPerMinute = 1
		cfg.RateLimitBurst = 1
	}))
	first := elderToken(t, testID())
	if rec := env.do(t, http.MethodGet, "/api/reminders", first, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/reminders", first, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/reminders", elderToken(t, testID()), nil); rec.Code != http.StatusOK {
		t.Fatalf("expected another user to pass, got %d", rec.Code)
	}
}
