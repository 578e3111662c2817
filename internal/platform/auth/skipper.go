package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are served without a bearer token. The Stripe webhook is
// authenticated by its signature header instead.
var publicPaths = map[string]bool{
	"/api/health":         true,
	"/health/db":          true,
	"/api/stripe/webhook": true,
}

func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
