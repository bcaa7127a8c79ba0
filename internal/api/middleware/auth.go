package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/sendables/internal/service"
	"github.com/d60-Lab/sendables/pkg/response"
)

const identityKey = "identity"

// Auth rejects requests without a valid bearer token and stores the caller's
// identity on the context.
func Auth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		identity, err := auth.Verify(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c *gin.Context) (*service.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := value.(*service.Identity)
	return identity, ok
}
