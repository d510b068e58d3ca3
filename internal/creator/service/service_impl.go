package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/creatorpay/internal/creator/domain"
	"github.com/smallbiznis/creatorpay/internal/vat"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("creator.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCreatorRequest) (domain.Creator, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Creator{}, domain.ErrInvalidName
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Creator{}, domain.ErrInvalidEmail
	}

	country, err := normalizeCountry(req.CountryCode)
	if err != nil {
		return domain.Creator{}, err
	}

	category, err := vat.ParseBusinessCategory(req.BusinessCategory)
	if err != nil {
		return domain.Creator{}, domain.ErrInvalidCategory
	}

	vatNumber := strings.TrimSpace(req.VATNumber)
	if category == vat.CategoryVATRegistered && vatNumber == "" {
		return domain.Creator{}, domain.ErrMissingVATNumber
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return domain.Creator{}, err
	}
	if existing != nil {
		return domain.Creator{}, domain.ErrEmailTaken
	}

	handle, err := s.uniqueHandle(ctx, name)
	if err != nil {
		return domain.Creator{}, err
	}

	now := time.Now().UTC()
	creator := domain.Creator{
		ID:               s.genID.Generate(),
		Name:             name,
		Email:            email,
		Handle:           handle,
		CountryCode:      country,
		BusinessCategory: category,
		VATNumber:        vatNumber,
		CompanyName:      strings.TrimSpace(req.CompanyName),
		Metadata:         datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, &creator); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Creator{}, domain.ErrEmailTaken
		}
		return domain.Creator{}, err
	}

	return creator, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateCreatorRequest) (domain.Creator, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Creator{}, err
	}

	creator, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Creator{}, err
	}
	if creator == nil {
		return domain.Creator{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Creator{}, domain.ErrInvalidName
		}
		creator.Name = name
	}
	if req.VATNumber != nil {
		creator.VATNumber = strings.TrimSpace(*req.VATNumber)
	}
	if req.CompanyName != nil {
		creator.CompanyName = strings.TrimSpace(*req.CompanyName)
	}

	// Country and category feed the VAT values frozen onto each payment
	// request, so they lock once the first request exists.
	taxProfileChanged := false
	if req.CountryCode != nil {
		country, err := normalizeCountry(*req.CountryCode)
		if err != nil {
			return domain.Creator{}, err
		}
		if country != creator.CountryCode {
			creator.CountryCode = country
			taxProfileChanged = true
		}
	}
	if req.BusinessCategory != nil {
		category, err := vat.ParseBusinessCategory(*req.BusinessCategory)
		if err != nil {
			return domain.Creator{}, domain.ErrInvalidCategory
		}
		if category != creator.BusinessCategory {
			creator.BusinessCategory = category
			taxProfileChanged = true
		}
	}
	if taxProfileChanged {
		locked, err := s.repo.HasPaymentRequests(ctx, s.db, creator.ID)
		if err != nil {
			return domain.Creator{}, err
		}
		if locked {
			return domain.Creator{}, domain.ErrProfileLocked
		}
	}

	if creator.BusinessCategory == vat.CategoryVATRegistered && creator.VATNumber == "" {
		return domain.Creator{}, domain.ErrMissingVATNumber
	}

	creator.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, creator); err != nil {
		return domain.Creator{}, err
	}

	return *creator, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCreatorRequest) (domain.ListCreatorResponse, error) {
	filter := domain.ListCreatorFilter{
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		CountryCode:      strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		BusinessCategory: strings.ToLower(strings.TrimSpace(req.BusinessCategory)),
		PayoutsEnabled:   req.PayoutsEnabled,
		CreatedFrom:      req.CreatedFrom,
		CreatedTo:        req.CreatedTo,
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListCreatorResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(creator *domain.Creator) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        creator.ID.String(),
			CreatedAt: creator.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	creators := make([]domain.Creator, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		creators = append(creators, *item)
	}

	resp := domain.ListCreatorResponse{Creators: creators}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCreatorRequest) (domain.Creator, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Creator{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Creator{}, err
	}
	if item == nil {
		return domain.Creator{}, domain.ErrNotFound
	}

	return *item, nil
}

// uniqueHandle derives a URL-safe handle from the display name, suffixing a
// counter when the slug is already taken.
func (s *Service) uniqueHandle(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "creator"
	}
	handle := base
	for i := 2; ; i++ {
		existing, err := s.repo.FindByHandle(ctx, s.db, handle)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return handle, nil
		}
		if i > 50 {
			return fmt.Sprintf("%s-%d", base, s.genID.Generate()), nil
		}
		handle = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func normalizeCountry(raw string) (string, error) {
	country := strings.ToUpper(strings.TrimSpace(raw))
	if len(country) != 2 {
		return "", domain.ErrInvalidCountry
	}
	for _, r := range country {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCountry
		}
	}
	return country, nil
}
