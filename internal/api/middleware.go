package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shopcore/internal/domain"
)

const principalKey = "principal"

// authenticated resolves the bearer token into a principal and aborts
// with 401 when it cannot.
func (s *Server) authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.Request)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIResponse{Success: false, Message: "missing bearer token"})
			return
		}
		principal, err := s.auth.Authenticate(raw)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// principalFrom fetches the principal the middleware stored.
func principalFrom(c *gin.Context) domain.Principal {
	p, _ := c.Get(principalKey)
	principal, _ := p.(domain.Principal)
	return principal
}
