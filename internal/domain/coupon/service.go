package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Patch holds optional coupon fields for a partial update. ClearUsageLimit
// removes the limit; UsageLimit sets a new one.
type Patch struct {
	Code            *string
	DiscountType    *DiscountType
	DiscountValue   *decimal.Decimal
	ExpiresAt       *time.Time
	IsActive        *bool
	UsageLimit      *int
	ClearUsageLimit bool
}

// Service implements admin coupon management.
type Service struct {
	coupons Repository
	now     func() time.Time
}

// NewService returns a coupon management Service.
func NewService(coupons Repository) *Service {
	return &Service{coupons: coupons, now: time.Now}
}

// Create validates and stores a coupon. New coupons start with usedCount 0.
func (s *Service) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.ID = uuid.NewString()
	c.UsedCount = 0
	c.DiscountValue = c.DiscountValue.Round(2)
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.coupons.FindByCode(ctx, c.Code); err == nil {
		return nil, ErrCodeTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check coupon code")
	}

	if err := s.coupons.Create(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get resolves idOrCode first as an id, then as a code. Admin lookups
// upper-case the code the same way Create stores it.
func (s *Service) Get(ctx context.Context, idOrCode string) (*Coupon, error) {
	c, err := s.coupons.FindByID(ctx, idOrCode)
	if errors.Is(err, ErrNotFound) {
		return s.coupons.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(idOrCode)))
	}
	return c, err
}

// List returns a filtered page of coupons and the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Coupon, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 10
	}
	if filter.Now.IsZero() {
		filter.Now = s.now()
	}
	return s.coupons.List(ctx, filter)
}

// Update applies patch to the coupon identified by idOrCode.
func (s *Service) Update(ctx context.Context, idOrCode string, patch Patch) (*Coupon, error) {
	c, err := s.Get(ctx, idOrCode)
	if err != nil {
		return nil, err
	}

	if patch.Code != nil && *patch.Code != c.Code {
		if _, err := s.coupons.FindByCode(ctx, *patch.Code); err == nil {
			return nil, ErrCodeTaken
		} else if !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "check coupon code")
		}
		c.Code = *patch.Code
	}
	if patch.DiscountType != nil {
		c.DiscountType = *patch.DiscountType
	}
	if patch.DiscountValue != nil {
		c.DiscountValue = patch.DiscountValue.Round(2)
	}
	if patch.ExpiresAt != nil {
		c.ExpiresAt = *patch.ExpiresAt
	}
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	switch {
	case patch.ClearUsageLimit:
		c.UsageLimit = nil
	case patch.UsageLimit != nil:
		limit := *patch.UsageLimit
		c.UsageLimit = &limit
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.coupons.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes the coupon identified by idOrCode and returns its id.
// Orders that used it keep their totals; their coupon reference is cleared.
func (s *Service) Delete(ctx context.Context, idOrCode string) (string, error) {
	c, err := s.Get(ctx, idOrCode)
	if err != nil {
		return "", err
	}
	if err := s.coupons.Delete(ctx, c.ID); err != nil {
		return "", err
	}
	return c.ID, nil
}
