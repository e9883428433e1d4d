package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
)

// UploadLimit rejects request bodies larger than maxBytes before they reach
// the handler. Requests without a declared length pass through; fiber's
// BodyLimit still bounds them.
func UploadLimit(maxBytes int64) fiber.Handler {
	return func(c fiber.Ctx) error {
		if n := c.Request().Header.ContentLength(); maxBytes > 0 && int64(n) > maxBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"ok":      false,
				"kind":    "invalid_document",
				"message": fmt.Sprintf("upload exceeds %d MB", maxBytes/(1024*1024)),
			})
		}
		return c.Next()
	}
}
