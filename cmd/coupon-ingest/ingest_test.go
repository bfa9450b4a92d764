package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// recordingSink applies upserts in call order, like the database would.
type recordingSink struct {
	mu     sync.Mutex
	byCode map[string]coupon.Coupon
	calls  int
	err    error
}

func (s *recordingSink) UpsertBatch(_ context.Context, coupons []coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.byCode == nil {
		s.byCode = map[string]coupon.Coupon{}
	}
	s.calls++
	for _, c := range coupons {
		s.byCode[c.Code] = c
	}
	return nil
}

func writeGzip(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseRecord(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c, err := parseRecord([]string{" save20 ", "Percentage", "20", "2027-01-01", "50", "false"}, now)
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", c.Code)
	assert.Equal(t, coupon.DiscountPercentage, c.DiscountType)
	assert.Equal(t, "20", c.DiscountValue.String())
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), c.ExpiresAt)
	require.NotNil(t, c.UsageLimit)
	assert.Equal(t, 50, *c.UsageLimit)
	assert.False(t, c.IsActive)
	assert.NotEmpty(t, c.ID)

	c, err = parseRecord([]string{"FLAT5", "fixed", "5", "2027-01-01T10:00:00Z"}, now)
	require.NoError(t, err)
	assert.Nil(t, c.UsageLimit)
	assert.True(t, c.IsActive)

	for _, rec := range [][]string{
		{"ONLY", "fixed"},
		{"BAD", "fixed", "x", "2027-01-01"},
		{"BAD", "fixed", "5", "soon"},
		{"BAD", "fixed", "5", "2027-01-01", "many"},
		{"BAD", "percentage", "150", "2027-01-01"},
		{"no", "fixed", "5", "2027-01-01"},
	} {
		_, err := parseRecord(rec, now)
		assert.Error(t, err, rec)
	}
}

func TestIngest(t *testing.T) {
	for _, tt := range []struct {
		name     string
		capacity uint
		fpRate   float64
	}{
		{"PreciseFilter", 1000, 0.0001},
		// A saturated filter holds back nearly every row, so the exact
		// rescan has to settle them.
		{"SaturatedFilter", 1, 0.99},
	} {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := []string{
				writeGzip(t, dir, "a.csv.gz",
					"code,discount_type,discount_value,expires_at,usage_limit,is_active",
					"SPRING10,percentage,10,2027-03-01",
					"SHARED,fixed,5,2027-01-01",
					"TWICE,fixed,1,2027-01-01",
					"TWICE,fixed,2,2027-01-01",
				),
				writeGzip(t, dir, "b.csv.gz",
					"SHARED,fixed,50,2027-01-01",
					"SUMMER20,percentage,20,2027-06-01,100",
					"broken line",
				),
				writeGzip(t, dir, "c.csv.gz",
					"SHARED,fixed,500,2027-01-01",
					"SUMMER20,percentage,99,2027-06-01",
					"AUTUMN,fixed,7,2027-09-01,,false",
				),
			}

			sink := &recordingSink{}
			in := &ingester{
				files:     files,
				sink:      sink,
				batchSize: 2,
				capacity:  tt.capacity,
				fpRate:    tt.fpRate,
				now:       time.Now().UTC(),
			}
			stats, err := in.run(context.Background())
			require.NoError(t, err)

			got := map[string]string{}
			for code, c := range sink.byCode {
				got[code] = c.DiscountValue.String()
			}
			assert.Equal(t, map[string]string{
				"SPRING10": "10",
				"SHARED":   "5",
				"TWICE":    "2",
				"SUMMER20": "20",
				"AUTUMN":   "7",
			}, got)
			assert.False(t, sink.byCode["AUTUMN"].IsActive)

			assert.Equal(t, 10, stats.Read)
			assert.Equal(t, 1, stats.Invalid)
			assert.Equal(t, 3, stats.Duplicates)
		})
	}
}

func TestIngestSinkFailure(t *testing.T) {
	dir := t.TempDir()
	in := &ingester{
		files:     []string{writeGzip(t, dir, "a.csv.gz", "SPRING10,percentage,10,2027-03-01")},
		sink:      &recordingSink{err: errors.New("connection refused")},
		batchSize: 10,
		capacity:  100,
		fpRate:    0.01,
		now:       time.Now().UTC(),
	}
	_, err := in.run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}
