package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type ActorType string

const (
	ActorAPIKey ActorType = "api_key"
	ActorSystem ActorType = "system"
)

type Actor struct {
	Type   ActorType
	ID     string
	Role   string
	Scopes []string
}

// authorize gates a route on the casbin policy for the authenticated key's
// role. It runs after APIKeyRequired, which stows the actor in the request
// context.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor.subject(), strings.TrimSpace(object), strings.TrimSpace(action)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil {
		return Actor{}, false
	}

	ctx := c.Request.Context()
	authType, ok := ctx.Value(contextAuthTypeKey).(string)
	if !ok {
		return Actor{}, false
	}

	switch strings.TrimSpace(authType) {
	case string(ActorAPIKey):
		apiKeyID, ok := apiKeyIDFromContext(ctx)
		if !ok {
			return Actor{}, false
		}
		return Actor{
			Type:   ActorAPIKey,
			ID:     apiKeyID.String(),
			Role:   apiKeyRoleFromContext(ctx),
			Scopes: apiKeyScopesFromContext(ctx),
		}, true
	case string(ActorSystem):
		return Actor{Type: ActorSystem, ID: "system"}, true
	default:
		return Actor{}, false
	}
}

func (a Actor) subject() string {
	switch a.Type {
	case ActorAPIKey:
		return fmt.Sprintf("api_key:%s", a.ID)
	case ActorSystem:
		return "system"
	default:
		return ""
	}
}

func apiKeyIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	raw := ctx.Value(contextAPIKeyIDKey)
	switch value := raw.(type) {
	case int64:
		if value == 0 {
			return 0, false
		}
		return snowflake.ID(value), true
	case snowflake.ID:
		if value == 0 {
			return 0, false
		}
		return value, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(value))
		if err != nil || parsed == 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func apiKeyRoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	role, _ := ctx.Value(contextAPIKeyRoleKey).(string)
	return role
}

func apiKeyScopesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	scopes, ok := ctx.Value(contextAPIKeyScopesKey).([]string)
	if !ok {
		return nil
	}
	return scopes
}
