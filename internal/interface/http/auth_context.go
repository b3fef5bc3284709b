package http

import (
	"github.com/gin-gonic/gin"

	"github.com/yanqian/flarecast/internal/domain/auth"
)

const (
	authClaimsKey = "auth_claims"
	bearerKey     = "auth_bearer"
)

func setClaims(c *gin.Context, claims auth.Claims, bearer string) {
	c.Set(authClaimsKey, claims)
	c.Set(bearerKey, bearer)
}

func getClaims(c *gin.Context) (auth.Claims, bool) {
	value, ok := c.Get(authClaimsKey)
	if !ok {
		return auth.Claims{}, false
	}
	claims, ok := value.(auth.Claims)
	return claims, ok
}

// getBearer returns the caller's raw token so it can be forwarded upstream.
func getBearer(c *gin.Context) string {
	return c.GetString(bearerKey)
}
