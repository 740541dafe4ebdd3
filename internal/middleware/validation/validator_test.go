package validation

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{}))
	app.Post("/api/v1/network/query", QueryFilters(Config{}), func(c *fiber.Ctx) error {
		f, ok := Filters(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(f)
	})
	app.Post("/other", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app
}

func post(t *testing.T, app *fiber.App, path, contentType, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestQueryFilters_Sanitizes(t *testing.T) {
	status, body := post(t, newApp(), "/api/v1/network/query", "application/json",
		`{"company":"  Ac\u0000me ","role":"cto"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"company":"Acme","role":"cto"}`, body)
}

func TestQueryFilters_RejectsLongFilter(t *testing.T) {
	long := strings.Repeat("é", 201)
	status, body := post(t, newApp(), "/api/v1/network/query", "application/json",
		`{"keyword":"`+long+`"}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "maximum length")

	ok := strings.Repeat("é", 200)
	status, _ = post(t, newApp(), "/api/v1/network/query", "application/json", `{"keyword":"`+ok+`"}`)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestQueryFilters_InvalidJSON(t *testing.T) {
	status, body := post(t, newApp(), "/api/v1/network/query", "application/json", `{"company":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `{"results":[],"error":"Invalid JSON format"}`, body)
}

func TestMiddleware_ContentType(t *testing.T) {
	app := newApp()

	status, _ := post(t, app, "/other", "text/xml", "<x/>")
	assert.Equal(t, fiber.StatusUnsupportedMediaType, status)

	status, _ = post(t, app, "/other", "multipart/form-data; boundary=x", "")
	assert.Equal(t, fiber.StatusNoContent, status)

	status, _ = post(t, app, "/other", "", "")
	assert.Equal(t, fiber.StatusNoContent, status)
}

func TestQueryFilters_TrailingSlash(t *testing.T) {
	long := strings.Repeat("x", 201)
	status, body := post(t, newApp(), "/api/v1/network/query/", "application/json", `{"company":"`+long+`"}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "maximum length")
}

func TestMiddleware_LeavesOtherBodiesAlone(t *testing.T) {
	status, _ := post(t, newApp(), "/other", "application/json", `{"company":`)
	assert.Equal(t, fiber.StatusNoContent, status)
}
