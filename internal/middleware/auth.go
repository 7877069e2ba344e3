package middleware

import (
	"context"
	"errors"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/constants"
	apierrors "github.com/yukikurage/observation-record-api/internal/errors"
	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/services"
)

// Authenticator verifies a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

// RequireAuth accepts either a login session or HTTP Basic credentials. The
// authenticated username and user id are stored in the gin context.
func RequireAuth(auth Authenticator, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if username, ok := session.Get(constants.ContextKeyUsername).(string); ok && username != "" {
			c.Set(constants.ContextKeyUsername, username)
			c.Set(constants.ContextKeyUserID, session.Get(constants.ContextKeyUserID))
			c.Next()
			return
		}

		username, password, ok := c.Request.BasicAuth()
		if !ok {
			apierrors.Unauthorized(c, constants.BasicAuthRealm, "")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), username, password)
		if err != nil {
			if !errors.Is(err, services.ErrInvalidCredentials) {
				RequestLogger(c, log).WithError(err).Error("Credential check failed")
				apierrors.ServiceUnavailable(c, "")
				return
			}
			apierrors.Unauthorized(c, constants.BasicAuthRealm, "Invalid username or password")
			return
		}

		c.Set(constants.ContextKeyUsername, user.Username)
		c.Set(constants.ContextKeyUserID, user.ID)
		c.Next()
	}
}

// GetUsername retrieves the authenticated username from context
func GetUsername(c *gin.Context) (string, bool) {
	username := c.GetString(constants.ContextKeyUsername)
	return username, username != ""
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}

	switch v := userID.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
