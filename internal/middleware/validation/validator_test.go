package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{
		MaxFieldLength: 16,
		Fields: map[string][]string{
			"/generate-strategy": {"domain"},
			"/ad-copy":           {"product", "company", "description"},
		},
	}))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }
	app.Post("/api/v1/generate-strategy", ok)
	app.Post("/api/v1/ad-copy", ok)
	app.Post("/api/v1/analyze-campaign", ok)
	return app
}

func do(t *testing.T, app *fiber.App, path, contentType, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	app := newApp()

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"valid domain", "/api/v1/generate-strategy", "application/json", `{"domain":"electronics"}`, fiber.StatusNoContent},
		{"domain too long", "/api/v1/generate-strategy", "application/json", `{"domain":"consumer electronics and more"}`, fiber.StatusBadRequest},
		{"script in ad field", "/api/v1/ad-copy", "application/json", `{"product":"<script>x"}`, fiber.StatusBadRequest},
		{"non-object body passes through", "/api/v1/generate-strategy", "application/json", `oops`, fiber.StatusNoContent},
		{"array body on unchecked route", "/api/v1/analyze-campaign", "application/json", `[{"adId":"a1"}]`, fiber.StatusNoContent},
		{"unsupported content type", "/api/v1/ad-copy", "text/xml", `<a/>`, fiber.StatusUnsupportedMediaType},
		{"missing content type", "/api/v1/generate-strategy", "", `{"domain":"tv"}`, fiber.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, app, tt.path, tt.contentType, tt.body))
		})
	}
}
