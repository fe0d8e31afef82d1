package auth

import "github.com/labstack/echo/v4"

// PublicRoutes never require a bearer token.
var PublicRoutes = []string{"/health", "/health/db", "/auth/login", "/auth/forgot-password"}

// AuthSkipper skips authentication for PublicRoutes.
var AuthSkipper = SkipRoutes(PublicRoutes...)

// SkipRoutes returns a skipper matching the registered route pattern, not
// the raw URL, so "/health/" is still authenticated.
func SkipRoutes(routes ...string) func(echo.Context) bool {
	set := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		set[r] = struct{}{}
	}
	return func(c echo.Context) bool {
		_, ok := set[c.Path()]
		return ok
	}
}
