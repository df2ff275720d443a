package middlewares

import (
	"errors"

	"atelier-backend/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler maps service errors to status codes and keeps unknown errors out of responses.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			fe    *fiber.Error
			ve    validator.ValidationErrors
			vErr  *services.ValidationError
			pErr  *services.PermissionError
			prErr *services.PromptError
		)
		switch {
		case errors.As(err, &fe):
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})

		case errors.As(err, &ve):
			out := make(map[string]string, len(ve))
			for _, f := range ve {
				out[f.Field()] = f.Tag()
			}
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "validation failed",
				"errors":  out,
			})

		case errors.As(err, &vErr):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": vErr.Message,
				"records": records(vErr.Records),
			})

		case errors.As(err, &pErr):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": pErr.Message,
				"records": records(pErr.Records),
			})

		case errors.As(err, &prErr):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": prErr.Prompt.Message,
				"prompt":  prErr.Prompt,
			})

		case errors.Is(err, services.ErrConcurrentModification):
			log.Warn("concurrent modification", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})

		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
		}

		log.Error("internal error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "internal server error",
		})
	}
}

func records(r []string) []string {
	if r == nil {
		return []string{}
	}
	return r
}
