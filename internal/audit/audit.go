// Package audit maintains the append-only export of finalized orders and
// their status changes. The export is written after each order creation and
// transition and is never read back into the live system.
package audit

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Entry is one audit record: an order creation or a status change.
type Entry struct {
	Event            string
	OrderID          string
	CustomerID       string
	Status           string
	TotalPrice       decimal.Decimal
	FinalPrice       decimal.Decimal
	DiscountCode     string
	ReceiptReference string
	TrackingCode     string
	Rating           *int
	At               time.Time
}

// Recorder accepts audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

var (
	_ Recorder = (*Log)(nil)
	_ Recorder = Nop{}
)

// Nop discards every entry. Used when no audit path is configured.
type Nop struct{}

// Record discards the entry.
func (Nop) Record(context.Context, Entry) error { return nil }

// Log appends JSON-line entries to a local file, one fsync'd record per
// event.
type Log struct {
	mu sync.Mutex
	f  *os.File
}

// Open creates the audit log at path, creating parent directories as needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create audit dir")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open audit log")
	}
	return &Log{f: f}, nil
}

// Record appends the entry as a single JSON line and syncs it to disk.
func (l *Log) Record(_ context.Context, e Entry) error {
	line := encodeEntry(e)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Write(line); err != nil {
		return errors.Wrap(err, "append audit entry")
	}
	if err := l.f.Sync(); err != nil {
		return errors.Wrap(err, "sync audit log")
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

func encodeEntry(e Entry) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("event")
	enc.Str(e.Event)
	enc.FieldStart("order_id")
	enc.Str(e.OrderID)
	enc.FieldStart("customer_id")
	enc.Str(e.CustomerID)
	enc.FieldStart("status")
	enc.Str(e.Status)
	enc.FieldStart("total_price")
	enc.Str(e.TotalPrice.String())
	enc.FieldStart("final_price")
	enc.Str(e.FinalPrice.String())
	if e.DiscountCode != "" {
		enc.FieldStart("discount_code")
		enc.Str(e.DiscountCode)
	}
	if e.ReceiptReference != "" {
		enc.FieldStart("receipt_reference")
		enc.Str(e.ReceiptReference)
	}
	if e.TrackingCode != "" {
		enc.FieldStart("tracking_code")
		enc.Str(e.TrackingCode)
	}
	if e.Rating != nil {
		enc.FieldStart("rating")
		enc.Int(*e.Rating)
	}
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()

	return append(enc.Bytes(), '\n')
}
