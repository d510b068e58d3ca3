package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	apikeydomain "github.com/smallbiznis/creatorpay/internal/apikey/domain"
	"github.com/smallbiznis/creatorpay/internal/vat"
	"gorm.io/gorm"
)

const (
	bootstrapKeyName   = "bootstrap-admin"
	bootstrapKeyPrefix = "cp_live_key_"
)

var countries = []struct {
	code string
	name string
}{
	{"AT", "Austria"}, {"BE", "Belgium"}, {"BG", "Bulgaria"}, {"HR", "Croatia"},
	{"CY", "Cyprus"}, {"CZ", "Czechia"}, {"DK", "Denmark"}, {"EE", "Estonia"},
	{"FI", "Finland"}, {"FR", "France"}, {"DE", "Germany"}, {"GR", "Greece"},
	{"HU", "Hungary"}, {"IE", "Ireland"}, {"IT", "Italy"}, {"LV", "Latvia"},
	{"LT", "Lithuania"}, {"LU", "Luxembourg"}, {"MT", "Malta"}, {"NL", "Netherlands"},
	{"PL", "Poland"}, {"PT", "Portugal"}, {"RO", "Romania"}, {"SK", "Slovakia"},
	{"SI", "Slovenia"}, {"ES", "Spain"}, {"SE", "Sweden"},
	{"AU", "Australia"}, {"CA", "Canada"}, {"CH", "Switzerland"}, {"GB", "United Kingdom"},
	{"JP", "Japan"}, {"NO", "Norway"}, {"NZ", "New Zealand"}, {"SG", "Singapore"},
	{"US", "United States"},
}

var currencies = []struct {
	code      string
	name      string
	symbol    string
	minorUnit int16
}{
	{"EUR", "Euro", "€", 2},
	{"USD", "US Dollar", "$", 2},
	{"GBP", "Pound Sterling", "£", 2},
	{"JPY", "Japanese Yen", "¥", 0},
	{"CHF", "Swiss Franc", "", 2},
	{"AUD", "Australian Dollar", "", 2},
	{"CAD", "Canadian Dollar", "", 2},
	{"NZD", "New Zealand Dollar", "", 2},
	{"SGD", "Singapore Dollar", "", 2},
	{"NOK", "Norwegian Krone", "", 2},
	{"SEK", "Swedish Krona", "", 2},
	{"DKK", "Danish Krone", "", 2},
	{"PLN", "Polish Zloty", "", 2},
	{"CZK", "Czech Koruna", "", 2},
	{"HUF", "Hungarian Forint", "", 2},
	{"RON", "Romanian Leu", "", 2},
	{"BGN", "Bulgarian Lev", "", 2},
}

// EnsureReferenceData upserts the country and currency tables the creator
// and payout services read from. EU membership flags come from the VAT
// classifier's member-state set so the two can never disagree.
func EnsureReferenceData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range countries {
			err := tx.WithContext(ctx).Exec(`
				INSERT INTO countries (code, name, eu_member)
				VALUES (?, ?, ?)
				ON CONFLICT (code) DO NOTHING
			`, c.code, c.name, vat.IsEUMember(c.code)).Error
			if err != nil {
				return err
			}
		}

		for _, c := range currencies {
			var symbol *string
			if c.symbol != "" {
				symbol = &c.symbol
			}
			err := tx.WithContext(ctx).Exec(`
				INSERT INTO currencies (code, name, symbol, minor_unit, is_active)
				VALUES (?, ?, ?, ?, TRUE)
				ON CONFLICT (code) DO NOTHING
			`, c.code, c.name, symbol, c.minorUnit).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureBootstrapAPIKey mints one admin key on a fresh database so the API
// is usable out of the box. The plaintext is printed to the process log
// exactly once; only its hash is stored.
func EnsureBootstrapAPIKey(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.WithContext(ctx).
			Model(&apikeydomain.APIKey{}).
			Where("role = ? AND revoked_at IS NULL", apikeydomain.RoleAdmin).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		id := node.Generate()
		keyID := "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
		plain, hash, err := mintKey(keyID)
		if err != nil {
			return err
		}

		key := apikeydomain.APIKey{
			ID:        id,
			KeyID:     keyID,
			Name:      bootstrapKeyName,
			Role:      apikeydomain.RoleAdmin,
			Scopes:    pq.StringArray{apikeydomain.ScopeAdminAPI},
			KeyHash:   hash,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&key).Error; err != nil {
			return err
		}

		log.Printf("[seed] bootstrap admin API key %s created: %s", keyID, plain)
		log.Printf("[seed] store this key now; it is shown only once")
		return nil
	})
}

// mintKey mirrors the api key service's format so bootstrap keys look like
// keys issued through the API.
func mintKey(keyID string) (string, string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}
	plain := fmt.Sprintf("%s%s_%s", bootstrapKeyPrefix, strings.TrimPrefix(keyID, "key_"), hex.EncodeToString(secret))
	return plain, apikeydomain.HashAPIKey(plain), nil
}
