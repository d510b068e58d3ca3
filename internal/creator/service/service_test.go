package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/creator/domain"
	"github.com/smallbiznis/creatorpay/internal/creator/repository"
	"github.com/smallbiznis/creatorpay/internal/vat"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type requestRow struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	CreatorID snowflake.ID `gorm:"index"`
	Status    string
	CreatedAt time.Time
}

func (requestRow) TableName() string { return "payment_requests" }

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Creator{}, &requestRow{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, conn
}

func strPtr(v string) *string { return &v }

func TestCreateCreator(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateCreatorRequest{
		Name:             "Anna de Vries",
		Email:            "Anna@Example.COM",
		CountryCode:      "nl",
		BusinessCategory: "vat_registered",
		VATNumber:        "NL123456789B01",
		CompanyName:      "De Vries Media",
	})
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, "anna@example.com", created.Email)
	assert.Equal(t, "anna-de-vries", created.Handle)
	assert.Equal(t, "NL", created.CountryCode)
	assert.Equal(t, vat.CategoryVATRegistered, created.BusinessCategory)
	assert.False(t, created.PayoutsEnabled)

	fetched, err := svc.GetByID(ctx, domain.GetCreatorRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, created.Email, fetched.Email)
}

func TestCreateCreatorValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		req     domain.CreateCreatorRequest
		wantErr error
	}{
		{
			name: "missing name",
			req: domain.CreateCreatorRequest{
				Email:            "a@example.com",
				CountryCode:      "NL",
				BusinessCategory: "individual",
			},
			wantErr: domain.ErrInvalidName,
		},
		{
			name: "bad email",
			req: domain.CreateCreatorRequest{
				Name:             "A",
				Email:            "not-an-email",
				CountryCode:      "NL",
				BusinessCategory: "individual",
			},
			wantErr: domain.ErrInvalidEmail,
		},
		{
			name: "bad country",
			req: domain.CreateCreatorRequest{
				Name:             "A",
				Email:            "a@example.com",
				CountryCode:      "NLD",
				BusinessCategory: "individual",
			},
			wantErr: domain.ErrInvalidCountry,
		},
		{
			name: "superseded company category",
			req: domain.CreateCreatorRequest{
				Name:             "A",
				Email:            "a@example.com",
				CountryCode:      "NL",
				BusinessCategory: "company",
			},
			wantErr: domain.ErrInvalidCategory,
		},
		{
			name: "vat registered without vat number",
			req: domain.CreateCreatorRequest{
				Name:             "A",
				Email:            "a@example.com",
				CountryCode:      "NL",
				BusinessCategory: "vat_registered",
			},
			wantErr: domain.ErrMissingVATNumber,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateCreatorDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateCreatorRequest{
		Name:             "First",
		Email:            "dup@example.com",
		CountryCode:      "DE",
		BusinessCategory: "individual",
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateCreatorRequest{
		Name:             "Second",
		Email:            "DUP@example.com",
		CountryCode:      "FR",
		BusinessCategory: "individual",
	})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestCreateCreatorHandleCollision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateCreatorRequest{
		Name:             "Same Name",
		Email:            "one@example.com",
		CountryCode:      "NL",
		BusinessCategory: "individual",
	})
	require.NoError(t, err)
	assert.Equal(t, "same-name", first.Handle)

	second, err := svc.Create(ctx, domain.CreateCreatorRequest{
		Name:             "Same Name",
		Email:            "two@example.com",
		CountryCode:      "NL",
		BusinessCategory: "individual",
	})
	require.NoError(t, err)
	assert.Equal(t, "same-name-2", second.Handle)
}

func TestUpdateCreatorTaxProfileLocksAfterFirstRequest(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateCreatorRequest{
		Name:             "Lock Me",
		Email:            "lock@example.com",
		CountryCode:      "NL",
		BusinessCategory: "individual",
	})
	require.NoError(t, err)

	// Mutable while no payment requests exist.
	updated, err := svc.Update(ctx, domain.UpdateCreatorRequest{
		ID:          created.ID.String(),
		CountryCode: strPtr("DE"),
	})
	require.NoError(t, err)
	assert.Equal(t, "DE", updated.CountryCode)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	require.NoError(t, conn.Create(&requestRow{
		ID:        node.Generate(),
		CreatorID: created.ID,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}).Error)

	_, err = svc.Update(ctx, domain.UpdateCreatorRequest{
		ID:          created.ID.String(),
		CountryCode: strPtr("FR"),
	})
	assert.ErrorIs(t, err, domain.ErrProfileLocked)

	_, err = svc.Update(ctx, domain.UpdateCreatorRequest{
		ID:               created.ID.String(),
		BusinessCategory: strPtr("vat_exempt"),
	})
	assert.ErrorIs(t, err, domain.ErrProfileLocked)

	// Non-tax fields stay mutable.
	renamed, err := svc.Update(ctx, domain.UpdateCreatorRequest{
		ID:   created.ID.String(),
		Name: strPtr("Still Editable"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Still Editable", renamed.Name)
}

func TestUpdateCreatorRequiresVATNumberWhenRegistered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateCreatorRequest{
		Name:             "No Number",
		Email:            "nonumber@example.com",
		CountryCode:      "NL",
		BusinessCategory: "individual",
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, domain.UpdateCreatorRequest{
		ID:               created.ID.String(),
		BusinessCategory: strPtr("vat_registered"),
	})
	assert.ErrorIs(t, err, domain.ErrMissingVATNumber)

	updated, err := svc.Update(ctx, domain.UpdateCreatorRequest{
		ID:               created.ID.String(),
		BusinessCategory: strPtr("vat_registered"),
		VATNumber:        strPtr("NL999999999B01"),
	})
	require.NoError(t, err)
	assert.Equal(t, vat.CategoryVATRegistered, updated.BusinessCategory)
}

func TestGetCreatorErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetByID(ctx, domain.GetCreatorRequest{ID: "not-a-snowflake"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByID(ctx, domain.GetCreatorRequest{ID: "123456789"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListCreatorsFiltersAndPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, seed := range []struct {
		name    string
		email   string
		country string
	}{
		{"NL One", "nl1@example.com", "NL"},
		{"NL Two", "nl2@example.com", "NL"},
		{"DE One", "de1@example.com", "DE"},
	} {
		_, err := svc.Create(ctx, domain.CreateCreatorRequest{
			Name:             seed.name,
			Email:            seed.email,
			CountryCode:      seed.country,
			BusinessCategory: "individual",
		})
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, domain.ListCreatorRequest{CountryCode: "nl"})
	require.NoError(t, err)
	assert.Len(t, resp.Creators, 2)

	paged, err := svc.List(ctx, domain.ListCreatorRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, paged.Creators, 2)
	assert.True(t, paged.HasMore)
	assert.NotEmpty(t, paged.NextPageToken)

	rest, err := svc.List(ctx, domain.ListCreatorRequest{PageSize: 2, PageToken: paged.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, rest.Creators, 1)
	assert.False(t, rest.HasMore)
}

func TestListCreatorsSameSecondPagination(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	// All four rows share one wall-clock second; only the fraction differs.
	// A cursor that truncates sub-second precision makes the keyset filter
	// skip every row between the page boundary and the top of its second.
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		created, err := svc.Create(ctx, domain.CreateCreatorRequest{
			Name:             fmt.Sprintf("Creator %d", i),
			Email:            fmt.Sprintf("page%d@example.com", i),
			CountryCode:      "NL",
			BusinessCategory: "individual",
		})
		require.NoError(t, err)

		createdAt := base.Add(time.Duration(i) * 200 * time.Millisecond)
		require.NoError(t, conn.Exec(
			`UPDATE creators SET created_at = ? WHERE id = ?`,
			createdAt, created.ID,
		).Error)
		ids = append(ids, created.ID.String())
	}

	seen := make([]string, 0, 4)
	token := ""
	for page := 0; page < 4; page++ {
		resp, err := svc.List(ctx, domain.ListCreatorRequest{PageSize: 2, PageToken: token})
		require.NoError(t, err)
		for _, item := range resp.Creators {
			seen = append(seen, item.ID.String())
		}
		if !resp.HasMore {
			break
		}
		token = resp.NextPageToken
	}

	require.Len(t, seen, 4)
	assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, seen)
}
