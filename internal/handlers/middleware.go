package handlers

import (
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

const bearerPrefix = "Bearer "

// TokenVerifier validates a bearer token and returns the identity claims
// embedded in it. Satisfied by *casdoorsdk.Client.
type TokenVerifier interface {
	ParseJwtToken(token string) (*casdoorsdk.Claims, error)
}

// AuthMiddleware verifies the Authorization bearer token against the identity
// provider and stores the caller's identity in the request context under
// "user_id", "user_name", "user_email", "user_roles" and "is_admin".
// Student ids elsewhere in the system are this subject id.
func AuthMiddleware(verifier TokenVerifier, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid authorization header",
			})
			return
		}

		token := strings.TrimSpace(header[len(bearerPrefix):])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid authorization header",
			})
			return
		}

		claims, err := verifier.ParseJwtToken(token)
		if err != nil {
			logger.Warn("Token verification failed",
				"error", err,
				"path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid or expired token",
			})
			return
		}

		c.Set("user_id", claims.Id)
		c.Set("user_name", claims.Name)
		c.Set("user_email", claims.Email)
		c.Set("is_admin", claims.IsAdmin)
		c.Set("user_roles", roleNames(claims))

		c.Next()
	}
}

// roleNames flattens the directory roles on the claims. The tag is included
// because some deployments mark faculty accounts with a tag instead of a role.
func roleNames(claims *casdoorsdk.Claims) []string {
	names := make([]string, 0, len(claims.Roles)+1)
	for _, role := range claims.Roles {
		if role != nil && role.Name != "" {
			names = append(names, role.Name)
		}
	}
	if claims.Tag != "" {
		names = append(names, claims.Tag)
	}
	return names
}

// facultyRoles are the directory roles allowed on the admin surface.
var facultyRoles = map[string]struct{}{
	"admin":   {},
	"faculty": {},
	"teacher": {},
}

// RequireFaculty gates faculty-only routes. Must run after AuthMiddleware.
func RequireFaculty() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, exists := c.Get("is_admin"); exists {
			if admin, ok := isAdmin.(bool); ok && admin {
				c.Next()
				return
			}
		}

		if rolesVal, exists := c.Get("user_roles"); exists {
			if roles, ok := rolesVal.([]string); ok {
				for _, role := range roles {
					if _, found := facultyRoles[strings.ToLower(role)]; found {
						c.Next()
						return
					}
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Message: "Faculty role required",
		})
	}
}
