package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(repo Repository) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestService_Create(t *testing.T) {
	repo := newMockCouponRepo()
	svc := newTestService(repo)

	c, err := svc.Create(context.Background(), Coupon{
		Code:          "WELCOME10",
		DiscountType:  DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		ExpiresAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
		UsedCount:     7,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Zero(t, c.UsedCount, "usedCount always starts at zero")

	_, err = svc.Create(context.Background(), *c)
	assert.True(t, errors.Is(err, ErrCodeTaken))
}

func TestService_GetByIDOrCode(t *testing.T) {
	repo := newMockCouponRepo(Coupon{ID: "id-1", Code: "HELLO1"})
	svc := newTestService(repo)

	byID, err := svc.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "HELLO1", byID.Code)

	byCode, err := svc.Get(context.Background(), "HELLO1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", byCode.ID)

	lower, err := svc.Get(context.Background(), " hello1 ")
	require.NoError(t, err)
	assert.Equal(t, "id-1", lower.ID)

	_, err = svc.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestService_Update(t *testing.T) {
	repo := newMockCouponRepo(
		Coupon{
			ID: "id-1", Code: "HELLO1", DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(5),
			ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), IsActive: true, UsageLimit: intPtr(5), UsedCount: 2,
		},
		Coupon{ID: "id-2", Code: "TAKEN2"},
	)
	svc := newTestService(repo)

	inactive := false
	c, err := svc.Update(context.Background(), "HELLO1", Patch{IsActive: &inactive, ClearUsageLimit: true})
	require.NoError(t, err)
	assert.False(t, c.IsActive)
	assert.Nil(t, c.UsageLimit)
	assert.Equal(t, 2, c.UsedCount)

	taken := "TAKEN2"
	_, err = svc.Update(context.Background(), "id-1", Patch{Code: &taken})
	assert.True(t, errors.Is(err, ErrCodeTaken))

	tooLow := 1
	_, err = svc.Update(context.Background(), "id-1", Patch{UsageLimit: &tooLow})
	require.Error(t, err)
}

func TestService_Delete(t *testing.T) {
	repo := newMockCouponRepo(Coupon{ID: "id-1", Code: "BYE123"})
	svc := newTestService(repo)

	id, err := svc.Delete(context.Background(), "BYE123")
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Empty(t, repo.coupons)

	_, err = svc.Delete(context.Background(), "BYE123")
	assert.True(t, errors.Is(err, ErrNotFound))
}
