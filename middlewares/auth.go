package middlewares

import (
	"errors"
	"strings"
	"time"

	"atelier-backend/models"
	"atelier-backend/services"
	"atelier-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "

	// KioskHeader carries the employee picked on a shared workshop terminal.
	KioskHeader = "X-Kiosk-Employee"

	actorKey = "actor"
)

// Claims is our JWT payload: subject is the user id.
type Claims struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	EmployeeID *uint  `json:"employee_id,omitempty"`
	jwt.RegisteredClaims
}

var (
	jwtSecret []byte
	jwtTTL    = 24 * time.Hour
)

// ConfigureJWT sets the signing secret and token lifetime. Call it once at startup.
func ConfigureJWT(secret string, ttl time.Duration) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
	}
	jwtSecret = []byte(secret)
	if ttl > 0 {
		jwtTTL = ttl
	}
	return nil
}

// IsAuthenticatedHeader validates a Bearer token (HS256 only) and stores the request Actor.
// A kiosk terminal may add X-Kiosk-Employee to act as the technician standing at it.
func IsAuthenticatedHeader() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(jwtSecret) == 0 {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "server auth not configured",
			})
		}

		h := c.Get(authHeader)
		if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "missing/invalid Authorization header"})
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid bearer token"})
		}

		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid or expired token"})
		}
		if strings.TrimSpace(claims.Subject) == "" || claims.Role == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "token missing subject/role"})
		}

		actor := services.Actor{
			UserID:     claims.Subject,
			Name:       claims.Name,
			Role:       claims.Role,
			EmployeeID: claims.EmployeeID,
		}
		if kiosk := c.Get(KioskHeader); kiosk != "" {
			id, err := utils.ParseID(kiosk)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid " + KioskHeader + " header"})
			}
			actor.KioskEmployeeID = &id
		}

		c.Locals("userID", claims.Subject)
		c.Locals(actorKey, actor)
		return c.Next()
	}
}

// RequireRole rejects actors whose role is not listed.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := ActorFrom(c).Role
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "you are not allowed to perform this action"})
	}
}

// ActorFrom returns the authenticated Actor, or the zero Actor on public routes.
func ActorFrom(c *fiber.Ctx) services.Actor {
	actor, _ := c.Locals(actorKey).(services.Actor)
	return actor
}

// GenerateJWT signs a new HS256 token for user.
func GenerateJWT(user models.User) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errors.New("JWT secret not configured")
	}
	now := time.Now()
	claims := &Claims{
		Name:       user.Name,
		Role:       user.Role,
		EmployeeID: user.EmployeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}
