package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-service/internal/couponjson"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	maxLineBytes  = 1 << 20
	progressEvery = 100_000
)

// upserter stores coupons, replacing existing ones with the same id.
type upserter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

// Stats counts what happened to the ingested lines.
type Stats struct {
	Read       uint64
	Invalid    uint64
	Duplicates uint64
	Written    uint64
}

// ingester decodes files concurrently and funnels valid coupons to a single
// writer that drops repeated ids. The first occurrence of an id wins.
type ingester struct {
	store   upserter
	workers int

	// filter screens ids; a positive is confirmed against seen.
	filter *bloom.BloomFilter
	seen   map[string]struct{}

	read    atomic.Uint64
	invalid atomic.Uint64
}

func newIngester(store upserter, workers int) *ingester {
	return &ingester{
		store:   store,
		workers: max(workers, 1),
		filter:  bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		seen:    make(map[string]struct{}),
	}
}

// Ingest reads every file and upserts the unique valid coupons.
func (in *ingester) Ingest(ctx context.Context, files []string) (Stats, error) {
	out := make(chan *coupon.Coupon, 1024)

	g, gctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(gctx)
	readers.SetLimit(in.workers)
	g.Go(func() error {
		defer close(out)
		for _, f := range files {
			readers.Go(func() error {
				return in.decodeFile(rctx, f, out)
			})
		}
		return readers.Wait()
	})

	var stats Stats
	g.Go(func() error {
		var err error
		stats.Written, stats.Duplicates, err = in.write(gctx, out)
		return err
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Read = in.read.Load()
	stats.Invalid = in.invalid.Load()
	return stats, nil
}

// write consumes coupons until out is closed.
func (in *ingester) write(ctx context.Context, out <-chan *coupon.Coupon) (written, duplicates uint64, err error) {
	for c := range out {
		if in.isDuplicate(c.ID) {
			duplicates++
			continue
		}
		if err := in.store.Upsert(ctx, c); err != nil {
			return written, duplicates, errors.Wrapf(err, "upsert coupon %s", c.ID)
		}
		written++
		if written%progressEvery == 0 {
			slog.Info("write progress", slog.Uint64("written", written))
		}
	}
	return written, duplicates, nil
}

// isDuplicate reports whether id was already seen and records it otherwise.
func (in *ingester) isDuplicate(id string) bool {
	if in.filter.TestString(id) {
		if _, ok := in.seen[id]; ok {
			return true
		}
	}
	in.filter.AddString(id)
	in.seen[id] = struct{}{}
	return false
}

// decodeFile streams one gzip JSON-lines file. Invalid lines are logged and
// skipped; I/O errors abort the ingest.
func (in *ingester) decodeFile(ctx context.Context, path string, out chan<- *coupon.Coupon) error {
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

	var lines, bad uint64
	err = scanLines(ctx, gz, func(lineNo int, line []byte) error {
		lines++
		c, err := decodeLine(line)
		if err != nil {
			bad++
			slog.Warn("skipping invalid coupon",
				slog.String("file", path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			return nil
		}
		select {
		case out <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	in.read.Add(lines)
	in.invalid.Add(bad)
	if err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("file complete",
		slog.String("file", path),
		slog.Uint64("lines", lines),
		slog.Uint64("invalid", bad),
	)
	return nil
}

// decodeLine decodes and validates one coupon document. Documents without an
// id get a new UUID.
func decodeLine(line []byte) (*coupon.Coupon, error) {
	c, err := couponjson.DecodeCoupon(jx.DecodeBytes(line))
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}

// scanLines calls fn for every non-blank line of r, numbered from 1.
func scanLines(ctx context.Context, r io.Reader, fn func(lineNo int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
