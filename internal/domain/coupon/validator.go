package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Policy decides what happens to a coupon that exists but cannot be applied.
type Policy string

const (
	// PolicyLenient ignores unknown, inactive and expired coupons: checkout
	// proceeds without a discount. An exhausted coupon is still rejected.
	PolicyLenient Policy = "lenient"
	// PolicyStrict rejects every coupon that cannot be applied.
	PolicyStrict Policy = "strict"
)

// ParsePolicy maps a config value to a Policy. Empty means lenient.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", errors.Errorf("unknown coupon policy %q", s)
	}
}

// Redemption is a coupon that was applied and counted.
type Redemption struct {
	CouponID string
	Code     string
	Discount decimal.Decimal
}

// Redeemer resolves a coupon code against a subtotal and records its use.
// A nil Redemption with a nil error means no discount applies.
type Redeemer interface {
	Redeem(ctx context.Context, code string, subtotal decimal.Decimal) (*Redemption, error)
}

// RepoRedeemer implements Redeemer on top of a Repository. It must run
// inside the same atomic unit as the order it discounts, so that a failed
// checkout also rolls back the usage increment.
type RepoRedeemer struct {
	repo   Repository
	policy Policy
	now    func() time.Time
}

// NewRepoRedeemer creates a RepoRedeemer backed by the given Repository.
func NewRepoRedeemer(repo Repository, policy Policy) *RepoRedeemer {
	if policy == "" {
		policy = PolicyLenient
	}
	return &RepoRedeemer{repo: repo, policy: policy, now: time.Now}
}

// Redeem locks the coupon, checks that it is active, unexpired and not
// exhausted, computes the discount and increments the usage counter.
func (r *RepoRedeemer) Redeem(ctx context.Context, code string, subtotal decimal.Decimal) (*Redemption, error) {
	if code == "" {
		return nil, nil
	}

	c, err := r.repo.FindByCodeForUpdate(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) && r.policy == PolicyLenient {
			return nil, nil
		}
		return nil, err
	}

	if !c.IsActive {
		return r.skip(ErrInactive)
	}
	if c.Expired(r.now()) {
		return r.skip(ErrExpired)
	}
	if c.Exhausted() {
		return nil, ErrUsageLimitReached
	}

	discount := c.Discount(subtotal)
	if err := r.repo.Redeem(ctx, c.ID); err != nil {
		return nil, err
	}

	return &Redemption{CouponID: c.ID, Code: c.Code, Discount: discount}, nil
}

func (r *RepoRedeemer) skip(reason error) (*Redemption, error) {
	if r.policy == PolicyStrict {
		return nil, reason
	}
	return nil, nil
}
