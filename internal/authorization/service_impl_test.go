package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apiKeyRow struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Role      string
	RevokedAt *time.Time
	CreatedAt time.Time
}

func (apiKeyRow) TableName() string { return "api_keys" }

func newTestAuthz(t *testing.T) (Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&apiKeyRow{}))

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
	return svc, conn, node
}

func TestAuthorizeSystemActor(t *testing.T) {
	svc, _, _ := newTestAuthz(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "system", ObjectPayout, ActionPayoutProcess))
	assert.NoError(t, svc.Authorize(ctx, "system", ObjectPaymentRequest, ActionPaymentRequestMarkPaid))

	// System never manages API keys.
	assert.ErrorIs(t, svc.Authorize(ctx, "system", ObjectAPIKey, ActionAPIKeyCreate), ErrForbidden)
}

func TestAuthorizeAPIKeyRoles(t *testing.T) {
	svc, conn, node := newTestAuthz(t)
	ctx := context.Background()

	admin := apiKeyRow{ID: node.Generate(), Role: "admin", CreatedAt: time.Now().UTC()}
	viewer := apiKeyRow{ID: node.Generate(), Role: "viewer", CreatedAt: time.Now().UTC()}
	require.NoError(t, conn.Create(&admin).Error)
	require.NoError(t, conn.Create(&viewer).Error)

	adminActor := "api_key:" + admin.ID.String()
	viewerActor := "api_key:" + viewer.ID.String()

	assert.NoError(t, svc.Authorize(ctx, adminActor, ObjectCreator, ActionCreatorCreate))
	assert.NoError(t, svc.Authorize(ctx, adminActor, ObjectAPIKey, ActionAPIKeyRevoke))

	assert.NoError(t, svc.Authorize(ctx, viewerActor, ObjectCreator, ActionCreatorView))
	assert.ErrorIs(t, svc.Authorize(ctx, viewerActor, ObjectCreator, ActionCreatorCreate), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, viewerActor, ObjectPayout, ActionPayoutProcess), ErrForbidden)
}

func TestAuthorizeRevokedAndUnknownKeys(t *testing.T) {
	svc, conn, node := newTestAuthz(t)
	ctx := context.Background()

	revokedAt := time.Now().UTC()
	revoked := apiKeyRow{ID: node.Generate(), Role: "admin", RevokedAt: &revokedAt, CreatedAt: revokedAt}
	require.NoError(t, conn.Create(&revoked).Error)

	assert.ErrorIs(t, svc.Authorize(ctx, "api_key:"+revoked.ID.String(), ObjectCreator, ActionCreatorView), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, "api_key:424242", ObjectCreator, ActionCreatorView), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, "api_key:not-a-snowflake", ObjectCreator, ActionCreatorView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "wizard:1", ObjectCreator, ActionCreatorView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "", ObjectCreator, ActionCreatorView), ErrInvalidActor)
}

func TestAuthorizeRoleChangeDropsOldGrouping(t *testing.T) {
	svc, conn, node := newTestAuthz(t)
	ctx := context.Background()

	key := apiKeyRow{ID: node.Generate(), Role: "admin", CreatedAt: time.Now().UTC()}
	require.NoError(t, conn.Create(&key).Error)
	actor := "api_key:" + key.ID.String()

	require.NoError(t, svc.Authorize(ctx, actor, ObjectCreator, ActionCreatorCreate))

	// Demote the key; the stale admin grouping must not stick.
	require.NoError(t, conn.Exec(`UPDATE api_keys SET role = ? WHERE id = ?`, "viewer", key.ID).Error)

	assert.ErrorIs(t, svc.Authorize(ctx, actor, ObjectCreator, ActionCreatorCreate), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, actor, ObjectCreator, ActionCreatorView))
}
