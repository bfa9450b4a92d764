package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Column order of the input files. usage_limit and is_active may be empty;
// an empty limit means unlimited and an empty flag means active.
const (
	colCode = iota
	colType
	colValue
	colExpires
	colLimit
	colActive
	minColumns = colExpires + 1
)

// parseRecord turns a CSV record into a validated coupon.
func parseRecord(rec []string, now time.Time) (coupon.Coupon, error) {
	if len(rec) < minColumns {
		return coupon.Coupon{}, errors.Errorf("want at least %d columns, got %d", minColumns, len(rec))
	}
	field := func(i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	value, err := decimal.NewFromString(field(colValue))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "discount value")
	}
	expires, err := parseExpiry(field(colExpires))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "expiry")
	}

	c := coupon.Coupon{
		ID:            uuid.NewString(),
		Code:          strings.ToUpper(field(colCode)),
		DiscountType:  coupon.DiscountType(strings.ToLower(field(colType))),
		DiscountValue: value.Round(2),
		ExpiresAt:     expires,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if s := field(colLimit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "usage limit")
		}
		c.UsageLimit = &n
	}
	if s := field(colActive); s != "" {
		if c.IsActive, err = strconv.ParseBool(s); err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "is_active")
		}
	}
	if err := c.Validate(); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// streamRecords calls fn for every record of a gzip-compressed CSV file,
// skipping a leading header line.
func streamRecords(ctx context.Context, path string, fn func(rec []string, line int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.TrimLeadingSpace = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		if err := fn(rec, line); err != nil {
			return err
		}
	}
}
