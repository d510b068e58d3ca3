package reference

import (
	"context"
	"testing"

	"github.com/smallbiznis/creatorpay/internal/reference/domain"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) domain.Repository {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Country{}, &domain.Currency{}))

	require.NoError(t, conn.Create(&domain.Country{Code: "NL", Name: "Netherlands", EUMember: true}).Error)
	require.NoError(t, conn.Create(&domain.Country{Code: "US", Name: "United States"}).Error)

	symbol := "€"
	require.NoError(t, conn.Create(&domain.Currency{Code: "EUR", Name: "Euro", Symbol: &symbol, MinorUnit: 2, IsActive: true}).Error)
	require.NoError(t, conn.Create(&domain.Currency{Code: "JPY", Name: "Yen", MinorUnit: 0, IsActive: true}).Error)
	require.NoError(t, conn.Create(&domain.Currency{Code: "XTS", Name: "Test code", MinorUnit: 2, IsActive: false}).Error)

	return NewRepository(conn)
}

func TestListCountries(t *testing.T) {
	repo := newTestRepository(t)

	countries, err := repo.ListCountries(context.Background())
	require.NoError(t, err)
	require.Len(t, countries, 2)
	require.Equal(t, "NL", countries[0].Code)
	require.True(t, countries[0].EUMember)
	require.Equal(t, "US", countries[1].Code)
}

func TestListCurrenciesSkipsInactive(t *testing.T) {
	repo := newTestRepository(t)

	currencies, err := repo.ListCurrencies(context.Background())
	require.NoError(t, err)
	require.Len(t, currencies, 2)
	require.Equal(t, "EUR", currencies[0].Code)
	require.NotNil(t, currencies[0].Symbol)
	require.Equal(t, int16(2), currencies[0].MinorUnit)
	require.Equal(t, "JPY", currencies[1].Code)
	require.Equal(t, int16(0), currencies[1].MinorUnit)
}

func TestFindCurrency(t *testing.T) {
	repo := newTestRepository(t)

	currency, err := repo.FindCurrency(context.Background(), "eur")
	require.NoError(t, err)
	require.NotNil(t, currency)
	require.Equal(t, "EUR", currency.Code)
	require.Equal(t, int16(2), currency.MinorUnit)

	missing, err := repo.FindCurrency(context.Background(), "ZZZ")
	require.NoError(t, err)
	require.Nil(t, missing)

	inactive, err := repo.FindCurrency(context.Background(), "XTS")
	require.NoError(t, err)
	require.Nil(t, inactive)
}
