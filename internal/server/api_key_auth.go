package server

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	apikeydomain "github.com/smallbiznis/creatorpay/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	auditcontext "github.com/smallbiznis/creatorpay/internal/auditcontext"
)

const (
	contextAuthTypeKey     = "auth_type"
	contextAPIKeyIDKey     = "api_key_id"
	contextAPIKeyRoleKey   = "api_key_role"
	contextAPIKeyScopesKey = "api_key_scopes"
)

// lastUsedWriteInterval throttles last_used_at updates so a busy key does
// not turn every request into a write.
const lastUsedWriteInterval = time.Minute

// APIKeyRequired authenticates requests with a bearer API key. The key is
// looked up by its sha256 hash; role and scopes ride along in the request
// context for the authorization middleware.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := apikeydomain.HashAPIKey(parts[1])
		now := time.Now().UTC()

		var record struct {
			ID         snowflake.ID   `gorm:"column:id"`
			KeyHash    string         `gorm:"column:key_hash"`
			Role       string         `gorm:"column:role"`
			Scopes     pq.StringArray `gorm:"column:scopes"`
			LastUsedAt *time.Time     `gorm:"column:last_used_at"`
		}

		if err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT id, key_hash, role, scopes, last_used_at
			 FROM api_keys
			 WHERE key_hash = ?
			   AND revoked_at IS NULL
			   AND (expires_at IS NULL OR expires_at > ?)
			 LIMIT 1`,
			hash,
			now,
		).Scan(&record).Error; err != nil {
			AbortWithError(c, err)
			return
		}

		if record.ID == 0 || subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if record.LastUsedAt == nil || now.Sub(*record.LastUsedAt) > lastUsedWriteInterval {
			_ = s.db.WithContext(c.Request.Context()).Exec(
				`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, record.ID,
			).Error
		}

		ctx := c.Request.Context()
		scopes := make([]string, 0, len(record.Scopes))
		scopes = append(scopes, record.Scopes...)
		ctx = context.WithValue(ctx, contextAuthTypeKey, string(ActorAPIKey))
		ctx = context.WithValue(ctx, contextAPIKeyIDKey, int64(record.ID))
		ctx = context.WithValue(ctx, contextAPIKeyRoleKey, strings.TrimSpace(record.Role))
		ctx = context.WithValue(ctx, contextAPIKeyScopesKey, scopes)
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeAPIKey), record.ID.String())

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
