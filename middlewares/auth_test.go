package middlewares

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"atelier-backend/models"
	"atelier-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func authApp(t *testing.T) *fiber.App {
	t.Helper()
	require.NoError(t, ConfigureJWT(testSecret, time.Hour))
	app := fiber.New()
	app.Get("/whoami", IsAuthenticatedHeader(), func(c *fiber.Ctx) error {
		return c.JSON(ActorFrom(c))
	})
	app.Get("/managers", IsAuthenticatedHeader(), RequireRole(models.RoleManager, models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func get(t *testing.T, app *fiber.App, path string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func bearer(t *testing.T, user models.User) map[string]string {
	t.Helper()
	token, err := GenerateJWT(user)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestConfigureJWTRequiresSecret(t *testing.T) {
	assert.Error(t, ConfigureJWT("  ", time.Hour))
}

func TestAuthenticatedActor(t *testing.T) {
	app := authApp(t)
	emp := uint(4)
	h := bearer(t, models.User{Id: "u-1", Name: "Pierre", Role: models.RoleTechnician, EmployeeID: &emp})

	resp := get(t, app, "/whoami", h)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var actor services.Actor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&actor))
	assert.Equal(t, "u-1", actor.UserID)
	assert.Equal(t, "Pierre", actor.Name)
	assert.Equal(t, models.RoleTechnician, actor.Role)
	require.NotNil(t, actor.EmployeeID)
	assert.Equal(t, emp, *actor.EmployeeID)
	assert.Nil(t, actor.KioskEmployeeID)

	h[KioskHeader] = "9"
	resp = get(t, app, "/whoami", h)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	actor = services.Actor{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&actor))
	require.NotNil(t, actor.KioskEmployeeID)
	assert.Equal(t, uint(9), *actor.KioskEmployeeID)

	h[KioskHeader] = "nine"
	assert.Equal(t, fiber.StatusBadRequest, get(t, app, "/whoami", h).StatusCode)
}

func TestAuthenticationRejections(t *testing.T) {
	app := authApp(t)

	signed := func(method jwt.SigningMethod, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return "Bearer " + s
	}
	valid := jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"empty":      "Bearer ",
		"garbage":    "Bearer abc.def.ghi",
		"hs512":      signed(jwt.SigningMethodHS512, Claims{Role: models.RoleAdmin, RegisteredClaims: valid}),
		"expired":    signed(jwt.SigningMethodHS256, Claims{Role: models.RoleAdmin, RegisteredClaims: expired}),
		"no role":    signed(jwt.SigningMethodHS256, Claims{RegisteredClaims: valid}),
	} {
		resp := get(t, app, "/whoami", map[string]string{"Authorization": header})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestRequireRole(t *testing.T) {
	app := authApp(t)

	resp := get(t, app, "/managers", bearer(t, models.User{Id: "u-1", Role: models.RoleTechnician}))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = get(t, app, "/managers", bearer(t, models.User{Id: "u-2", Role: models.RoleAdmin}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}
