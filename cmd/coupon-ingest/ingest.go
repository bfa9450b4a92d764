package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Sink stores coupons. postgres.CouponRepository implements it.
type Sink interface {
	UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error
}

// Stats summarises an ingest run.
type Stats struct {
	Read       int
	Written    int
	Invalid    int
	Duplicates int
}

type ingester struct {
	files     []string
	sink      Sink
	batchSize int
	capacity  uint
	fpRate    float64
	now       time.Time

	mu    sync.Mutex
	stats Stats
}

// contested is a row whose code may appear in an earlier file.
type contested struct {
	file   int
	coupon coupon.Coupon
}

// run loads every file into the sink. When a code appears in several files
// the row from the earliest file wins; within one file the last row wins.
//
// Pass 1 builds a bloom filter per file. Pass 2 streams rows: a row whose
// code is in no earlier file's filter is written right away, the rest are
// held back. Pass 3 rescans the earlier files for the held-back codes only
// and writes the ones that were bloom false positives.
func (in *ingester) run(ctx context.Context) (Stats, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(in.files)))
	filters, err := in.buildFilters(ctx)
	if err != nil {
		return in.stats, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: loading coupons")
	held, err := in.load(ctx, filters)
	if err != nil {
		return in.stats, errors.Wrap(err, "load coupons")
	}

	slog.Info("pass 3: resolving possible duplicates", slog.Int("rows", len(held)))
	if err := in.resolve(ctx, held); err != nil {
		return in.stats, errors.Wrap(err, "resolve duplicates")
	}
	return in.stats, nil
}

func (in *ingester) buildFilters(ctx context.Context) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(in.files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range in.files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(in.capacity, in.fpRate)
			err := streamRecords(ctx, path, func(rec []string, _ int) error {
				if len(rec) > colCode {
					filter.AddString(normalize(rec[colCode]))
				}
				return nil
			})
			if err != nil {
				return err
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// load streams every file concurrently into a single batch writer and
// returns the held-back rows, at most one per code and file.
func (in *ingester) load(ctx context.Context, filters []*bloom.BloomFilter) ([]contested, error) {
	out := make(chan coupon.Coupon, in.batchSize)
	heldPerFile := make([]map[string]contested, len(in.files))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return in.write(ctx, out)
	})

	readers, rctx := errgroup.WithContext(ctx)
	for i, path := range in.files {
		readers.Go(func() error {
			held := map[string]contested{}
			heldPerFile[i] = held
			return streamRecords(rctx, path, func(rec []string, line int) error {
				c, ok := in.parse(path, rec, line)
				if !ok {
					return nil
				}
				for j := range i {
					if filters[j].TestString(c.Code) {
						held[c.Code] = contested{file: i, coupon: c}
						return nil
					}
				}
				select {
				case out <- c:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(out)
		return readers.Wait()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []contested
	for _, held := range heldPerFile {
		for _, h := range held {
			all = append(all, h)
		}
	}
	return all, nil
}

// resolve writes the held-back rows whose codes do not occur in any file
// before their own.
func (in *ingester) resolve(ctx context.Context, held []contested) error {
	if len(held) == 0 {
		return nil
	}
	last := 0
	wanted := make(map[string]struct{}, len(held))
	for _, h := range held {
		last = max(last, h.file)
		wanted[h.coupon.Code] = struct{}{}
	}

	var (
		mu    sync.Mutex
		first = map[string]int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := range last {
		g.Go(func() error {
			return streamRecords(gctx, in.files[i], func(rec []string, _ int) error {
				if len(rec) <= colCode {
					return nil
				}
				code := normalize(rec[colCode])
				if _, ok := wanted[code]; !ok {
					return nil
				}
				// Invalid rows were never written and do not shadow later ones.
				if _, err := parseRecord(rec, in.now); err != nil {
					return nil
				}
				mu.Lock()
				if prev, ok := first[code]; !ok || i < prev {
					first[code] = i
				}
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var batch []coupon.Coupon
	for _, h := range held {
		if f, ok := first[h.coupon.Code]; ok && f < h.file {
			in.count(func(s *Stats) { s.Duplicates++ })
			continue
		}
		batch = append(batch, h.coupon)
	}
	for len(batch) > 0 {
		n := min(len(batch), in.batchSize)
		if err := in.flush(ctx, batch[:n]); err != nil {
			return err
		}
		batch = batch[n:]
	}
	return nil
}

func (in *ingester) parse(path string, rec []string, line int) (coupon.Coupon, bool) {
	in.count(func(s *Stats) { s.Read++ })
	c, err := parseRecord(rec, in.now)
	if err != nil {
		in.count(func(s *Stats) { s.Invalid++ })
		slog.Warn("skipping invalid row",
			slog.String("file", path),
			slog.Int("line", line),
			slog.String("error", err.Error()),
		)
		return coupon.Coupon{}, false
	}
	return c, true
}

func (in *ingester) write(ctx context.Context, rows <-chan coupon.Coupon) error {
	batch := make([]coupon.Coupon, 0, in.batchSize)
	for c := range rows {
		batch = append(batch, c)
		if len(batch) < in.batchSize {
			continue
		}
		if err := in.flush(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
	}
	return in.flush(ctx, batch)
}

func (in *ingester) flush(ctx context.Context, batch []coupon.Coupon) error {
	if len(batch) == 0 {
		return nil
	}
	if err := in.sink.UpsertBatch(ctx, batch); err != nil {
		return err
	}
	var written int
	in.count(func(s *Stats) {
		s.Written += len(batch)
		written = s.Written
	})
	slog.Info("write progress", slog.Int("written", written))
	return nil
}

func (in *ingester) count(fn func(s *Stats)) {
	in.mu.Lock()
	fn(&in.stats)
	in.mu.Unlock()
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
