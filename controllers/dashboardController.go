package controllers

import (
	"fmt"

	"atelier-backend/middlewares"
	"atelier-backend/services"

	"github.com/gofiber/fiber/v2"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func tileParam(c *fiber.Ctx) (services.Tile, error) {
	tile, ok := services.ParseTile(c.Params("tile"))
	if !ok {
		return "", fiber.NewError(fiber.StatusNotFound, "unknown dashboard tile")
	}
	return tile, nil
}

func GetTiles(c *fiber.Ctx) error {
	counts, err := dashboard.Counts(c.UserContext(), middlewares.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(counts)
}

func GetTileOrders(c *fiber.Ctx) error {
	tile, err := tileParam(c)
	if err != nil {
		return err
	}
	orders, err := dashboard.Orders(c.UserContext(), middlewares.ActorFrom(c), tile)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

// ExportTile streams the tile's orders as an xlsx workbook.
func ExportTile(c *fiber.Ctx) error {
	tile, err := tileParam(c)
	if err != nil {
		return err
	}
	book, name, err := dashboard.ExportTile(c.UserContext(), middlewares.ActorFrom(c), tile)
	if err != nil {
		return err
	}
	defer book.Close()

	buf, err := book.WriteToBuffer()
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, xlsxMIME)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.Send(buf.Bytes())
}
