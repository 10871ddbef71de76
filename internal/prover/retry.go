// retry.go - Explicit stale-root recovery at the caller boundary.
//
// The ledger's root can advance between proof generation and submission;
// the ledger rejects such proofs with ErrStaleRoot rather than verifying an
// inclusion claim against an outdated root. Because regenerating a proof is
// expensive, the retry lives here, explicitly bounded, never inside the
// protocol itself.

package prover

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"

	"github.com/lyronctk/treasury-house/internal/treasury"
)

// LedgerClient is the slice of the ledger the retry loop needs.
type LedgerClient interface {
	Root() fr.Element
	Withdraw(treasury.WithdrawRequest) (*treasury.WithdrawReceipt, error)
}

// RequestBuilder regenerates a full withdrawal request bound to the given
// root. It is invoked once per attempt and is where proof generation
// happens, so it should honor ctx cancellation.
type RequestBuilder func(ctx context.Context, root fr.Element) (treasury.WithdrawRequest, error)

// WithdrawWithRetry submits a withdrawal, rebuilding the proof against a
// refreshed root after each ErrStaleRoot rejection, up to maxAttempts. Any
// other failure is returned immediately.
func WithdrawWithRetry(ctx context.Context, client LedgerClient, build RequestBuilder, maxAttempts int, log zerolog.Logger) (*treasury.WithdrawReceipt, error) {
	if maxAttempts < 1 {
		return nil, fmt.Errorf("prover: max attempts must be positive, got %d", maxAttempts)
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root := client.Root()
		req, err := build(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("building withdrawal request: %w", err)
		}
		receipt, err := client.Withdraw(req)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, treasury.ErrStaleRoot) {
			return nil, err
		}
		lastErr = err
		log.Warn().
			Int("attempt", attempt).
			Str("root", root.String()).
			Msg("withdrawal rejected on stale root, refreshing")
	}
	return nil, fmt.Errorf("prover: %d attempts exhausted: %w", maxAttempts, lastErr)
}
