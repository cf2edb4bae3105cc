// Command order-export appends finalized orders to a gzipped JSON-lines
// archive for offline analysis. A persisted bloom filter over exported order
// IDs keeps repeated runs from duplicating records without having to read the
// archive back.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/hivemarket/honeyshop/internal/domain/order"
	"github.com/hivemarket/honeyshop/internal/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
)

func main() {
	var (
		databaseURL string
		outDir      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outDir, "out-dir", "export", "directory for the archive and filter state")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outDir); err != nil {
		slog.Error("order export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("order export completed successfully")
}

func run(ctx context.Context, databaseURL, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	filterPath := filepath.Join(outDir, "exported.bloom")
	archivePath := filepath.Join(outDir, "orders.jsonl.gz")

	filter, err := loadFilter(filterPath)
	if err != nil {
		return errors.Wrap(err, "load filter state")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewOrderRepository(pool)

	exported, err := exportOrders(ctx, repo, filter, archivePath)
	if err != nil {
		return errors.Wrap(err, "export orders")
	}

	slog.Info("orders exported", slog.Int("count", exported))

	if exported == 0 {
		return nil
	}
	if err := saveFilter(filterPath, filter); err != nil {
		return errors.Wrap(err, "save filter state")
	}

	return nil
}

// exportOrders streams orders not yet present in the filter into the gzipped
// archive. The database read and the compressed write run in separate
// goroutines joined by a channel.
func exportOrders(ctx context.Context, repo *postgres.OrderRepository, filter *bloom.BloomFilter, archivePath string) (int, error) {
	f, err := os.OpenFile(archivePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "open archive")
	}
	defer func() { _ = f.Close() }()

	gz := pgzip.NewWriter(f)

	pending := make(chan order.Order, 64)
	var exported int

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(pending)

		all, err := repo.List(ctx)
		if err != nil {
			return errors.Wrap(err, "list orders")
		}
		for _, o := range all {
			if filter.TestString(o.ID) {
				continue
			}
			select {
			case pending <- o:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		for o := range pending {
			if _, err := gz.Write(encodeOrder(o)); err != nil {
				return errors.Wrapf(err, "write order %s", o.ID)
			}
			filter.AddString(o.ID)
			exported++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, errors.Wrap(err, "flush archive")
	}
	return exported, nil
}

func encodeOrder(o order.Order) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(o.ID)
	enc.FieldStart("customer_id")
	enc.Str(o.CustomerID)
	enc.FieldStart("status")
	enc.Str(o.Status.String())
	enc.FieldStart("total_price")
	enc.Str(o.TotalPrice.String())
	enc.FieldStart("final_price")
	enc.Str(o.FinalPrice.String())
	if o.DiscountCode != "" {
		enc.FieldStart("discount_code")
		enc.Str(o.DiscountCode)
	}
	if o.TrackingCode != "" {
		enc.FieldStart("tracking_code")
		enc.Str(o.TrackingCode)
	}
	if o.Rating != nil {
		enc.FieldStart("rating")
		enc.Int(*o.Rating)
	}
	enc.FieldStart("items")
	enc.ArrStart()
	for _, it := range o.Items {
		enc.ObjStart()
		enc.FieldStart("product_id")
		enc.Str(it.ProductID)
		enc.FieldStart("name")
		enc.Str(it.Name)
		enc.FieldStart("unit_price")
		enc.Str(it.UnitPrice.String())
		enc.FieldStart("quantity")
		enc.Int(it.Quantity)
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.FieldStart("created_at")
	enc.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()

	return append(enc.Bytes(), '\n')
}

// loadFilter reads the persisted bloom filter, starting fresh when no state
// file exists yet.
func loadFilter(path string) (*bloom.BloomFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return bloom.NewWithEstimates(bloomCapacity, bloomFPR), nil
		}
		return nil, errors.Wrap(err, "read filter file")
	}

	var filter bloom.BloomFilter
	if err := filter.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrap(err, "decode filter")
	}
	return &filter, nil
}

func saveFilter(path string, filter *bloom.BloomFilter) error {
	data, err := filter.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "encode filter")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write filter file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "replace filter file")
	}
	return nil
}
