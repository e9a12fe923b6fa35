package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"librarylending/internal/auth"
	"librarylending/internal/models"
	"librarylending/internal/platform/logger"
)

const actorKey = "library.actor"

const (
	msgNotAuthenticated = "Authentication credentials were not provided."
	msgInvalidToken     = "Given token not valid for any token type"
	msgForbidden        = "You do not have permission to perform this action."
)

type Authenticator struct {
	log    *logger.Logger
	secret string
}

func NewAuthenticator(log *logger.Logger, secret string) *Authenticator {
	return &Authenticator{log: log.With("middleware", "Authenticator"), secret: secret}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// actor for handlers.
func (am *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msgNotAuthenticated})
			return
		}
		actor, err := auth.Parse(am.secret, header)
		if errors.Is(err, auth.ErrMissingToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msgNotAuthenticated})
			return
		}
		if err != nil {
			am.log.Debug("token rejected", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msgInvalidToken})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireStaff must run after RequireAuth.
func (am *Authenticator) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msgNotAuthenticated})
			return
		}
		if !actor.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": msgForbidden})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor stored by RequireAuth.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
