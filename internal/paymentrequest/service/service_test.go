package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/config"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	"github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"github.com/smallbiznis/creatorpay/internal/paymentrequest/repository"
	emailprovider "github.com/smallbiznis/creatorpay/internal/providers/email"
	"github.com/smallbiznis/creatorpay/internal/vat"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&creatordomain.Creator{}, &domain.PaymentRequest{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, conn, node
}

func seedCreator(t *testing.T, conn *gorm.DB, node *snowflake.Node, country string, category vat.BusinessCategory) creatordomain.Creator {
	t.Helper()

	id := node.Generate()
	creator := creatordomain.Creator{
		ID:               id,
		Name:             "Creator " + id.String(),
		Email:            "creator-" + id.String() + "@example.com",
		Handle:           "creator-" + id.String(),
		CountryCode:      country,
		BusinessCategory: category,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if category == vat.CategoryVATRegistered {
		creator.VATNumber = country + "123456789B01"
	}
	require.NoError(t, conn.Create(&creator).Error)
	return creator
}

func TestCreateFreezesVATValues(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	creator := seedCreator(t, conn, node, "NL", vat.CategoryVATRegistered)

	created, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:   creator.ID.String(),
		BaseAmount:  d("100"),
		Description: "August sponsorship",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, "EUR", created.Currency)
	assert.True(t, created.VATRate.Equal(d("0.21")), "rate %s", created.VATRate)
	assert.True(t, created.VATAmount.Equal(d("21")), "vat %s", created.VATAmount)
	assert.True(t, created.TotalAmount.Equal(d("121")), "total %s", created.TotalAmount)
	assert.False(t, created.ReverseCharged)
	assert.Equal(t, "Dutch VAT (21%) applied.", created.VATExplanation)
	assert.Len(t, created.ClaimToken, 43)
	assert.NotContains(t, created.ClaimToken, "+")
	assert.NotContains(t, created.ClaimToken, "/")
	assert.Nil(t, created.PaidAt)
}

func TestCreateValidation(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	creator := seedCreator(t, conn, node, "DE", vat.CategoryIndividual)

	cases := []struct {
		name    string
		req     domain.CreateRequest
		wantErr error
	}{
		{
			name:    "malformed creator id",
			req:     domain.CreateRequest{CreatorID: "abc", BaseAmount: d("10")},
			wantErr: domain.ErrInvalidID,
		},
		{
			name:    "negative amount",
			req:     domain.CreateRequest{CreatorID: creator.ID.String(), BaseAmount: d("-1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "bad currency",
			req:     domain.CreateRequest{CreatorID: creator.ID.String(), BaseAmount: d("10"), Currency: "EURO"},
			wantErr: domain.ErrInvalidCurrency,
		},
		{
			name:    "unknown creator",
			req:     domain.CreateRequest{CreatorID: "987654321", BaseAmount: d("10")},
			wantErr: domain.ErrCreatorNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	created, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("0"),
		Currency:   "usd",
	})
	require.NoError(t, err, "zero amounts are allowed")
	assert.Equal(t, "USD", created.Currency)
	assert.True(t, created.TotalAmount.Equal(d("0")))
}

func TestFrozenValuesSurviveProfileChange(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	creator := seedCreator(t, conn, node, "NL", vat.CategoryVATRegistered)

	first, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("200"),
	})
	require.NoError(t, err)
	require.True(t, first.TotalAmount.Equal(d("242")))

	require.NoError(t, conn.Exec(
		`UPDATE creators SET country_code = ?, business_category = ? WHERE id = ?`,
		"US", vat.CategoryIndividual, creator.ID,
	).Error)

	second, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("200"),
	})
	require.NoError(t, err)
	assert.True(t, second.VATAmount.Equal(d("0")))
	assert.True(t, second.TotalAmount.Equal(d("200")))

	// The old request keeps its frozen values.
	reloaded, err := svc.Get(ctx, first.ID.String())
	require.NoError(t, err)
	assert.True(t, reloaded.VATRate.Equal(d("0.21")))
	assert.True(t, reloaded.TotalAmount.Equal(d("242")))
}

func TestClaimLifecycle(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	creator := seedCreator(t, conn, node, "FR", vat.CategoryVATRegistered)

	created, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("50"),
	})
	require.NoError(t, err)
	assert.True(t, created.ReverseCharged)

	claimed, err := svc.Claim(ctx, created.ClaimToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClaimed, claimed.Status)

	_, err = svc.Claim(ctx, created.ClaimToken)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = svc.Claim(ctx, "bm90LWEtcmVhbC10b2tlbg")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Claim(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimSucceedsExactlyOnce(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	creator := seedCreator(t, conn, node, "NL", vat.CategoryIndividual)

	created, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("75"),
	})
	require.NoError(t, err)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = svc.Claim(ctx, created.ClaimToken)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	invalidState := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		invalidState++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, invalidState)
}

func TestMarkPaidTransitions(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	creator := seedCreator(t, conn, node, "NL", vat.CategoryVATRegistered)

	// From pending.
	fromPending, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("10"),
	})
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, fromPending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// From claimed.
	fromClaimed, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("20"),
	})
	require.NoError(t, err)
	_, err = svc.Claim(ctx, fromClaimed.ClaimToken)
	require.NoError(t, err)

	paid, err = svc.MarkPaid(ctx, fromClaimed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)

	// Terminal states reject the transition.
	_, err = svc.MarkPaid(ctx, paid.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	failed, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("30"),
	})
	require.NoError(t, err)
	_, err = svc.MarkFailed(ctx, failed.ID.String(), "transfer bounced")
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, failed.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = svc.MarkPaid(ctx, "123456789")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkFailedTransitions(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	creator := seedCreator(t, conn, node, "BE", vat.CategoryVATExempt)

	created, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("40"),
	})
	require.NoError(t, err)

	failed, err := svc.MarkFailed(ctx, created.ID.String(), "account closed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "account closed", *failed.FailureReason)

	_, err = svc.MarkFailed(ctx, created.ID.String(), "again")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// Paid requests stay paid.
	other, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:  creator.ID.String(),
		BaseAmount: d("41"),
	})
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, other.ID.String())
	require.NoError(t, err)
	_, err = svc.MarkFailed(ctx, other.ID.String(), "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestGetByTokenAndList(t *testing.T) {
	svc, conn, node := newTestService(t)
	ctx := context.Background()
	first := seedCreator(t, conn, node, "NL", vat.CategoryVATRegistered)
	second := seedCreator(t, conn, node, "DE", vat.CategoryIndividual)

	var tokens []string
	for i, creator := range []creatordomain.Creator{first, first, second} {
		created, err := svc.Create(ctx, domain.CreateRequest{
			CreatorID:  creator.ID.String(),
			BaseAmount: decimal.NewFromInt(int64(10 * (i + 1))),
		})
		require.NoError(t, err)
		tokens = append(tokens, created.ClaimToken)
	}

	viewed, err := svc.GetByToken(ctx, tokens[0])
	require.NoError(t, err)
	assert.Equal(t, first.ID, viewed.CreatorID)
	assert.Equal(t, domain.StatusPending, viewed.Status)

	_, err = svc.GetByToken(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	byCreator, err := svc.List(ctx, domain.ListRequest{CreatorID: first.ID.String()})
	require.NoError(t, err)
	assert.Len(t, byCreator.PaymentRequests, 2)

	_, err = svc.Claim(ctx, tokens[2])
	require.NoError(t, err)

	byStatus, err := svc.List(ctx, domain.ListRequest{Status: "claimed"})
	require.NoError(t, err)
	assert.Len(t, byStatus.PaymentRequests, 1)

	_, err = svc.List(ctx, domain.ListRequest{Status: "sideways"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	paged, err := svc.List(ctx, domain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, paged.PaymentRequests, 2)
	assert.True(t, paged.HasMore)

	rest, err := svc.List(ctx, domain.ListRequest{PageSize: 2, PageToken: paged.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, rest.PaymentRequests, 1)
	assert.False(t, rest.HasMore)
}

type recordingEmailProvider struct {
	sent []emailprovider.ClaimLinkEmail
}

func (p *recordingEmailProvider) SendClaimLink(_ context.Context, msg emailprovider.ClaimLinkEmail) error {
	p.sent = append(p.sent, msg)
	return nil
}

func TestCreateSendsClaimEmail(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&creatordomain.Creator{}, &domain.PaymentRequest{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	emails := &recordingEmailProvider{}
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Cfg:   config.Config{BaseURL: "https://pay.example.com"},
		Repo:  repository.Provide(),
		Email: emails,
	})

	ctx := context.Background()
	creator := seedCreator(t, conn, node, "NL", vat.CategoryVATRegistered)

	created, err := svc.Create(ctx, domain.CreateRequest{
		CreatorID:   creator.ID.String(),
		BaseAmount:  d("100"),
		Description: "August sponsorship",
	})
	require.NoError(t, err)

	require.Len(t, emails.sent, 1)
	msg := emails.sent[0]
	assert.Equal(t, creator.Email, msg.To)
	assert.Equal(t, creator.Name, msg.CreatorName)
	assert.True(t, msg.TotalAmount.Equal(d("121")))
	assert.Equal(t, "EUR", msg.Currency)
	assert.Equal(t, "https://pay.example.com/public/claims/"+created.ClaimToken, msg.ClaimURL)
}
