package webhook

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	creatorrepo "github.com/smallbiznis/creatorpay/internal/creator/repository"
	"github.com/smallbiznis/creatorpay/internal/payout/adapters"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	payoutrepo "github.com/smallbiznis/creatorpay/internal/payout/repository"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	requestrepo "github.com/smallbiznis/creatorpay/internal/paymentrequest/repository"
	requestservice "github.com/smallbiznis/creatorpay/internal/paymentrequest/service"
	"github.com/smallbiznis/creatorpay/internal/vat"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeAdapter struct {
	provider  string
	verifyErr error
	event     *domain.WebhookEvent
	parseErr  error
}

func (f *fakeAdapter) Provider() string { return f.provider }

func (f *fakeAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return f.verifyErr
}

func (f *fakeAdapter) Parse(ctx context.Context, payload []byte) (*domain.WebhookEvent, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	// IngestWebhook normalizes the event in place; hand out a copy so one
	// delivery cannot bleed into the next.
	event := *f.event
	return &event, nil
}

type harness struct {
	svc        domain.WebhookService
	conn       *gorm.DB
	node       *snowflake.Node
	requestSvc requestdomain.Service
	adapter    *fakeAdapter
	repo       domain.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&creatordomain.Creator{},
		&requestdomain.PaymentRequest{},
		&domain.PayoutTransfer{},
		&domain.EventRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	requestSvc := requestservice.New(requestservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  requestrepo.Provide(),
	})

	adapter := &fakeAdapter{provider: "stripe"}
	repo := payoutrepo.Provide()
	svc := NewService(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repo,
		CreatorRepo: creatorrepo.Provide(),
		RequestSvc:  requestSvc,
		Adapters:    adapters.NewRegistry(adapter),
	})

	return &harness{
		svc:        svc,
		conn:       conn,
		node:       node,
		requestSvc: requestSvc,
		adapter:    adapter,
		repo:       repo,
	}
}

func (h *harness) seedCreator(t *testing.T, accountID string) creatordomain.Creator {
	t.Helper()

	id := h.node.Generate()
	creator := creatordomain.Creator{
		ID:               id,
		Name:             "Creator " + id.String(),
		Email:            "creator-" + id.String() + "@example.com",
		Handle:           "creator-" + id.String(),
		CountryCode:      "NL",
		BusinessCategory: vat.CategoryIndividual,
		PayoutAccountID:  accountID,
		PayoutsEnabled:   accountID != "",
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, h.conn.Create(&creator).Error)
	return creator
}

func (h *harness) claimedRequest(t *testing.T, creatorID snowflake.ID) requestdomain.PaymentRequest {
	t.Helper()
	ctx := context.Background()

	created, err := h.requestSvc.Create(ctx, requestdomain.CreateRequest{
		CreatorID:  creatorID.String(),
		BaseAmount: decimal.RequireFromString("100"),
	})
	require.NoError(t, err)

	claimed, err := h.requestSvc.Claim(ctx, created.ClaimToken)
	require.NoError(t, err)
	return claimed
}

func (h *harness) insertTransfer(t *testing.T, requestID, creatorID snowflake.ID, providerTransferID string) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, h.repo.InsertTransfer(context.Background(), h.conn, &domain.PayoutTransfer{
		ID:                 h.node.Generate(),
		PaymentRequestID:   requestID,
		CreatorID:          creatorID,
		Provider:           "stripe",
		ProviderTransferID: providerTransferID,
		AmountMinor:        12100,
		Currency:           "EUR",
		Status:             domain.TransferStatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}))
}

func (h *harness) eventCount(t *testing.T) int64 {
	t.Helper()

	var count int64
	require.NoError(t, h.conn.Model(&domain.EventRecord{}).Count(&count).Error)
	return count
}

func TestIngestAccountUpdateSyncsCreator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := h.seedCreator(t, "acct_7")

	h.adapter.event = &domain.WebhookEvent{
		ProviderEventID:  "evt_1",
		Type:             domain.EventTypeAccountUpdated,
		AccountID:        "acct_7",
		DetailsSubmitted: true,
		PayoutsEnabled:   true,
	}

	require.NoError(t, h.svc.IngestWebhook(ctx, "stripe", []byte(`{"id":"evt_1"}`), nil))

	var stored creatordomain.Creator
	require.NoError(t, h.conn.First(&stored, "id = ?", creator.ID).Error)
	assert.True(t, stored.PayoutDetailsSubmitted)
	assert.True(t, stored.PayoutsEnabled)

	record, err := h.repo.FindEvent(ctx, h.conn, "stripe", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotNil(t, record.ProcessedAt)

	// Redelivery is acknowledged as already handled, not reprocessed.
	err = h.svc.IngestWebhook(ctx, "stripe", []byte(`{"id":"evt_1"}`), nil)
	assert.ErrorIs(t, err, domain.ErrEventProcessed)
	assert.Equal(t, int64(1), h.eventCount(t))
}

func TestIngestAccountUpdateForUnknownAccount(t *testing.T) {
	h := newHarness(t)

	h.adapter.event = &domain.WebhookEvent{
		ProviderEventID: "evt_2",
		Type:            domain.EventTypeAccountUpdated,
		AccountID:       "acct_unknown",
		PayoutsEnabled:  true,
	}

	// Unknown accounts are logged and acknowledged so the provider stops
	// redelivering.
	require.NoError(t, h.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), nil))
	assert.Equal(t, int64(1), h.eventCount(t))
}

func TestIngestTransferFailureFailsClaimedRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := h.seedCreator(t, "acct_1")
	request := h.claimedRequest(t, creator.ID)
	h.insertTransfer(t, request.ID, creator.ID, "tr_1")

	h.adapter.event = &domain.WebhookEvent{
		ProviderEventID: "evt_3",
		Type:            domain.EventTypeTransferFailed,
		TransferID:      "tr_1",
		Reference:       request.ID.String(),
		FailureReason:   "account_closed",
	}

	require.NoError(t, h.svc.IngestWebhook(ctx, "stripe", []byte(`{}`), nil))

	failed, err := h.requestSvc.Get(ctx, request.ID.String())
	require.NoError(t, err)
	assert.Equal(t, requestdomain.StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "account_closed", *failed.FailureReason)

	transfer, err := h.repo.FindTransferByProviderID(ctx, h.conn, "stripe", "tr_1")
	require.NoError(t, err)
	require.NotNil(t, transfer)
	assert.Equal(t, domain.TransferStatusFailed, transfer.Status)
	require.NotNil(t, transfer.Error)
	assert.Equal(t, "account_closed", *transfer.Error)
}

func TestIngestTransferFailureAfterSettlementKeepsPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := h.seedCreator(t, "acct_1")
	request := h.claimedRequest(t, creator.ID)
	_, err := h.requestSvc.MarkPaid(ctx, request.ID.String())
	require.NoError(t, err)

	h.adapter.event = &domain.WebhookEvent{
		ProviderEventID: "evt_4",
		Type:            domain.EventTypeTransferFailed,
		TransferID:      "tr_gone",
		Reference:       request.ID.String(),
		FailureReason:   "funds_returned",
	}

	require.NoError(t, h.svc.IngestWebhook(ctx, "stripe", []byte(`{}`), nil))

	still, err := h.requestSvc.Get(ctx, request.ID.String())
	require.NoError(t, err)
	assert.Equal(t, requestdomain.StatusPaid, still.Status)
}

func TestIngestTransferFailureResolvesRequestFromTransferRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := h.seedCreator(t, "acct_1")
	request := h.claimedRequest(t, creator.ID)
	h.insertTransfer(t, request.ID, creator.ID, "tr_9")

	// No reference in the payload: only the recorded transfer links back.
	h.adapter.event = &domain.WebhookEvent{
		ProviderEventID: "evt_5",
		Type:            domain.EventTypeTransferFailed,
		TransferID:      "tr_9",
		FailureReason:   "insufficient_funds",
	}

	require.NoError(t, h.svc.IngestWebhook(ctx, "stripe", []byte(`{}`), nil))

	failed, err := h.requestSvc.Get(ctx, request.ID.String())
	require.NoError(t, err)
	assert.Equal(t, requestdomain.StatusFailed, failed.Status)
}

func TestIngestRejectsInvalidSignature(t *testing.T) {
	h := newHarness(t)
	h.adapter.verifyErr = domain.ErrInvalidSignature

	err := h.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, int64(0), h.eventCount(t))
}

func TestIngestIgnoredEventIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.adapter.parseErr = domain.ErrEventIgnored

	require.NoError(t, h.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), nil))
	assert.Equal(t, int64(0), h.eventCount(t))
}

func TestIngestRejectsMalformedDeliveries(t *testing.T) {
	h := newHarness(t)

	err := h.svc.IngestWebhook(context.Background(), "", []byte(`{}`), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidProvider)

	err = h.svc.IngestWebhook(context.Background(), "paypal", []byte(`{}`), nil)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	err = h.svc.IngestWebhook(context.Background(), "stripe", []byte("not json"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	// account_updated without an account id cannot be applied.
	h.adapter.event = &domain.WebhookEvent{
		ProviderEventID: "evt_6",
		Type:            domain.EventTypeAccountUpdated,
	}
	err = h.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	assert.Equal(t, int64(0), h.eventCount(t))
}
