package auth

import (
	"strings"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/gin-gonic/gin"
)

const claimsKey = "auth_claims"

// RequireAuth rejects requests without a valid bearer token
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests that do not carry an admin token
func (s *Service) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := s.authenticate(c)
		if !ok {
			return
		}
		if claims.Role != RoleAdmin {
			errors.Abort(c, errors.NewForbiddenError("admin access required"))
			return
		}
		c.Next()
	}
}

func (s *Service) authenticate(c *gin.Context) (*Claims, bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		errors.Abort(c, errors.NewUnauthorizedError("missing bearer token"))
		return nil, false
	}

	claims, err := s.Verify(token)
	if err != nil {
		errors.Abort(c, err)
		return nil, false
	}

	c.Set(claimsKey, claims)
	c.Set("user_id", claims.UID)
	return claims, true
}

// ClaimsFrom returns the claims stored by the auth middleware
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
