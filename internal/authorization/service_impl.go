package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCreator        = "creator"
	ObjectPaymentRequest = "payment_request"
	ObjectInvoice        = "invoice"
	ObjectPayout         = "payout"
	ObjectAPIKey         = "api_key"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionCreatorView         = "creator.view"
	ActionCreatorCreate       = "creator.create"
	ActionCreatorUpdate       = "creator.update"
	ActionCreatorManagePayout = "creator.manage_payout_account"

	ActionPaymentRequestView       = "payment_request.view"
	ActionPaymentRequestCreate     = "payment_request.create"
	ActionPaymentRequestMarkPaid   = "payment_request.mark_paid"
	ActionPaymentRequestMarkFailed = "payment_request.mark_failed"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceAttach   = "invoice.attach"
	ActionInvoiceGenerate = "invoice.generate"
	ActionInvoiceValidate = "invoice.validate"

	ActionPayoutView    = "payout.view"
	ActionPayoutProcess = "payout.process"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "api_key:") {
		apiKeyIDRaw := strings.TrimPrefix(actor, "api_key:")
		apiKeyID, err := snowflake.ParseString(apiKeyIDRaw)
		if err != nil || apiKeyID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		apiKeyIDStr := apiKeyID.String()
		role, err := s.roleForAPIKey(ctx, apiKeyID)
		if err != nil {
			return actor, "", "api_key", &apiKeyIDStr, err
		}
		roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
		return actor, roleName, "api_key", &apiKeyIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) roleForAPIKey(ctx context.Context, apiKeyID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM api_keys
		 WHERE id = ? AND revoked_at IS NULL
		 LIMIT 1`,
		apiKeyID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"subject": actorSubject(actorType, actorID),
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"subject": actorSubject(actorType, actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "api_key":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("api_key:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionAPIKeyCreate, ActionAPIKeyRevoke:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (read-only)
		{"role:viewer", ObjectCreator, ActionCreatorView},
		{"role:viewer", ObjectPaymentRequest, ActionPaymentRequestView},
		{"role:viewer", ObjectInvoice, ActionInvoiceView},
		{"role:viewer", ObjectPayout, ActionPayoutView},
		{"role:viewer", ObjectAuditLog, ActionAuditLogView},

		// Admin permissions
		{"role:admin", ObjectCreator, ActionCreatorView},
		{"role:admin", ObjectCreator, ActionCreatorCreate},
		{"role:admin", ObjectCreator, ActionCreatorUpdate},
		{"role:admin", ObjectCreator, ActionCreatorManagePayout},
		{"role:admin", ObjectPaymentRequest, ActionPaymentRequestView},
		{"role:admin", ObjectPaymentRequest, ActionPaymentRequestCreate},
		{"role:admin", ObjectPaymentRequest, ActionPaymentRequestMarkPaid},
		{"role:admin", ObjectPaymentRequest, ActionPaymentRequestMarkFailed},
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoiceAttach},
		{"role:admin", ObjectInvoice, ActionInvoiceGenerate},
		{"role:admin", ObjectInvoice, ActionInvoiceValidate},
		{"role:admin", ObjectPayout, ActionPayoutView},
		{"role:admin", ObjectPayout, ActionPayoutProcess},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System permissions (payout worker, webhook consumers, seeds)
		{"role:system", ObjectCreator, ActionCreatorView},
		{"role:system", ObjectCreator, ActionCreatorManagePayout},
		{"role:system", ObjectPaymentRequest, ActionPaymentRequestView},
		{"role:system", ObjectPaymentRequest, ActionPaymentRequestMarkPaid},
		{"role:system", ObjectPaymentRequest, ActionPaymentRequestMarkFailed},
		{"role:system", ObjectInvoice, ActionInvoiceGenerate},
		{"role:system", ObjectPayout, ActionPayoutView},
		{"role:system", ObjectPayout, ActionPayoutProcess},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
