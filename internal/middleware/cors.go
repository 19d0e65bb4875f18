package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

// NewCORS builds CORS middleware from a comma-separated origins string.
// An empty string or "*" allows all origins.
func NewCORS(origins string) fiber.Handler {
	cfg := cors.Config{
		AllowMethods: []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Actor-Id", "X-Actor-Moderator"},
		MaxAge:       300,
	}

	if origins != "" && origins != "*" {
		list := strings.Split(origins, ",")
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		cfg.AllowOrigins = list
	} else {
		cfg.AllowOrigins = []string{"*"}
	}

	return cors.New(cfg)
}
