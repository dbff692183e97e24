package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/gamefusion/promptlog/internal/config"
	"github.com/gamefusion/promptlog/internal/response"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer s3cret", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"lowercase scheme", "bearer s3cret", http.StatusUnauthorized},
		{"token prefix only", "Bearer s3cre", http.StatusUnauthorized},
		{"trailing space", "Bearer s3cret ", http.StatusUnauthorized},
		{"no scheme", "s3cret", http.StatusUnauthorized},
	}
	e := echo.New()
	h := RequireBearerToken("s3cret", zerolog.Nop())(okHandler)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/prompt-history", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			if err := h(e.NewContext(req, rec)); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized {
				if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Unauthorized"}` {
					t.Errorf("body = %s", got)
				}
			}
		})
	}
}

func TestRequireBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.AuthConfig{BasicUser: "andreas@gamefusion.biz", BasicPasswordHash: string(hash)}

	e := echo.New()
	e.HTTPErrorHandler = response.HTTPErrorHandler(zerolog.Nop())
	e.GET("/stats", okHandler, RequireBasicAuth(cfg))
	e.GET("/closed", okHandler, RequireBasicAuth(config.AuthConfig{}))

	tests := []struct {
		name       string
		path       string
		user, pass string
		want       int
	}{
		{"valid", "/stats", "andreas@gamefusion.biz", "password", http.StatusOK},
		{"wrong password", "/stats", "andreas@gamefusion.biz", "nope", http.StatusUnauthorized},
		{"wrong user", "/stats", "someone", "password", http.StatusUnauthorized},
		{"no credentials", "/stats", "", "", http.StatusUnauthorized},
		{"unconfigured", "/closed", "andreas@gamefusion.biz", "password", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.user != "" {
				req.SetBasicAuth(tc.user, tc.pass)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
