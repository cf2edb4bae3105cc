package discount

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/go-faster/errors"

	"github.com/hivemarket/honeyshop/internal/domain/customer"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	// maxIssueAttempts bounds generation retries on a code collision before
	// falling back to re-reading whatever a concurrent session inserted.
	maxIssueAttempts = 5
)

// Ledger issues and tracks the single-use per-customer discount code.
type Ledger struct {
	codes     Repository
	customers customer.Repository
}

// NewLedger creates a Ledger backed by the given repositories.
func NewLedger(codes Repository, customers customer.Repository) *Ledger {
	return &Ledger{codes: codes, customers: customers}
}

// GetOrIssue returns the customer's existing code, issuing a new one on first
// request. Generation collisions are retried a bounded number of times; if a
// concurrent session wins the insert race, the code it stored is returned.
// The caller never receives "no code" when one already exists.
func (l *Ledger) GetOrIssue(ctx context.Context, customerID string) (string, error) {
	c, err := l.codes.Get(ctx, customerID)
	if err == nil {
		return c.Code, nil
	}
	if !errors.Is(err, ErrNoCode) {
		return "", errors.Wrap(err, "lookup code")
	}

	// First interaction also creates the customer row.
	if err := l.customers.Ensure(ctx, customerID); err != nil {
		return "", errors.Wrap(err, "ensure customer")
	}

	for range maxIssueAttempts {
		code, err := generateCode()
		if err != nil {
			return "", errors.Wrap(err, "generate code")
		}

		err = l.codes.Insert(ctx, customerID, code)
		switch {
		case err == nil:
			return code, nil
		case errors.Is(err, ErrCodeCollision):
			continue
		case errors.Is(err, ErrAlreadyIssued):
			// A concurrent session issued the code; read it below.
			return l.readExisting(ctx, customerID)
		default:
			return "", errors.Wrap(err, "insert code")
		}
	}

	// Retries exhausted. A concurrent attempt may still have inserted a row
	// for this customer; surface that before giving up.
	return l.readExisting(ctx, customerID)
}

func (l *Ledger) readExisting(ctx context.Context, customerID string) (string, error) {
	c, err := l.codes.Get(ctx, customerID)
	if err != nil {
		return "", errors.Wrap(err, "re-read code after insert race")
	}
	return c.Code, nil
}

// Get returns the customer's code record, or ErrNoCode when none was issued.
func (l *Ledger) Get(ctx context.Context, customerID string) (*Code, error) {
	return l.codes.Get(ctx, customerID)
}

// IsUsed reports whether the customer's code has been consumed. A customer
// with no issued code has not used one.
func (l *Ledger) IsUsed(ctx context.Context, customerID string) (bool, error) {
	c, err := l.codes.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNoCode) {
			return false, nil
		}
		return false, errors.Wrap(err, "lookup code")
	}
	return c.Used, nil
}

// Consume idempotently marks the customer's code as used. Consuming a missing
// or already-used code is a no-op.
func (l *Ledger) Consume(ctx context.Context, customerID string) error {
	if err := l.codes.MarkUsed(ctx, customerID); err != nil {
		return errors.Wrap(err, "mark code used")
	}
	return nil
}

// generateCode produces a fixed-length uppercase alphanumeric code.
func generateCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
