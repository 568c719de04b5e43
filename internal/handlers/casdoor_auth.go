package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/config"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
)

// TokenParser validates a bearer token and returns its claims
type TokenParser func(token string) (*casdoorsdk.Claims, error)

// CasdoorAuthMiddleware provides authentication using Casdoor SDK
type CasdoorAuthMiddleware struct {
	parseToken TokenParser
	userRepo   repositories.UserRepository
	logger     utils.Logger
}

// NewCasdoorAuthMiddleware creates a new Casdoor authentication middleware
func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig, userRepo repositories.UserRepository, logger utils.Logger) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)

	return NewAuthMiddlewareWithParser(client.ParseJwtToken, userRepo, logger)
}

func NewAuthMiddlewareWithParser(parser TokenParser, userRepo repositories.UserRepository, logger utils.Logger) *CasdoorAuthMiddleware {
	return &CasdoorAuthMiddleware{
		parseToken: parser,
		userRepo:   userRepo,
		logger:     logger,
	}
}

// AuthMiddleware returns a Gin middleware function for Casdoor authentication
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "authorization header missing or malformed",
			})
			return
		}

		claims, err := cam.parseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "invalid token",
				Details: err.Error(),
			})
			return
		}

		user, err := cam.extractUserFromClaims(c.Request.Context(), claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "failed to extract user info",
				Details: err.Error(),
			})
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Set("user_role", user.Role)
		c.Set("user_email", user.Email)

		c.Next()
	}
}

// RequireRoleMiddleware checks if user has required role. Admins pass every check.
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetUserRoleFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Message: "Access denied",
				Details: err.Error(),
			})
			return
		}

		if role == models.RoleAdmin {
			c.Next()
			return
		}
		for _, requiredRole := range requiredRoles {
			if role == requiredRole {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
		})
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// extractUserFromClaims prefers the stored user and falls back to the token's own profile.
// The role always comes from the token.
func (cam *CasdoorAuthMiddleware) extractUserFromClaims(ctx context.Context, claims *casdoorsdk.Claims) (*models.User, error) {
	if claims == nil || claims.Id == "" {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	role := mapCasdoorRole(claims.User.Type)
	if claims.User.IsAdmin {
		role = models.RoleAdmin
	}

	user, err := cam.userRepo.GetByID(ctx, claims.Id)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			cam.logger.Warn("User lookup failed, using token profile", "user_id", claims.Id, "error", err)
		}
		user = userFromClaims(claims)
	}
	user.Role = role

	return user, nil
}

func userFromClaims(claims *casdoorsdk.Claims) *models.User {
	now := time.Now()
	user := &models.User{
		ID:        claims.Id,
		FullName:  claims.User.DisplayName,
		Email:     claims.User.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if claims.User.Avatar != "" {
		avatar := claims.User.Avatar
		user.AvatarURL = &avatar
	}
	if user.FullName == "" {
		user.FullName = claims.User.Name
	}
	return user
}

// mapCasdoorRole maps Casdoor user type to internal role
func mapCasdoorRole(casdoorType string) models.UserRole {
	switch strings.ToLower(casdoorType) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "teacher", "instructor", "educator":
		return models.RoleInstructor
	default:
		return models.RoleStudent
	}
}

// GetUserIDFromContext extracts user ID from Gin context
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(string)
	if !ok {
		return "", fmt.Errorf("invalid user ID type in context")
	}

	return id, nil
}

// GetUserRoleFromContext extracts user role from Gin context
func GetUserRoleFromContext(c *gin.Context) (models.UserRole, error) {
	userRole, exists := c.Get("user_role")
	if !exists {
		return "", fmt.Errorf("user role not found in context")
	}

	role, ok := userRole.(models.UserRole)
	if !ok {
		return "", fmt.Errorf("invalid user role type in context")
	}

	return role, nil
}
