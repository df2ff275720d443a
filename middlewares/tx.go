package middlewares

import (
	"atelier-backend/database"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RequestTx runs the rest of the chain in one DB transaction, bound to the request's
// user context. It commits when the handler succeeds and rolls back on error or panic.
// Register it after Idempotency so key records are not tied to the handler transaction.
func RequestTx(db *gorm.DB, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		tx := db.WithContext(c.UserContext()).Begin()
		if tx.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to begin transaction")
		}

		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback()
				panic(r)
			}
			if err != nil {
				_ = tx.Rollback()
				return
			}
			if e := tx.Commit().Error; e != nil {
				log.Error("tx commit failed", zap.String("path", c.Path()), zap.Error(e))
				err = fiber.NewError(fiber.StatusInternalServerError, "transaction commit failed")
			}
		}()

		c.Locals("tx", tx)
		c.SetUserContext(database.WithTx(c.UserContext(), tx))

		err = c.Next()
		return err
	}
}
