package router

import (
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// ExecuteWithRetry runs call against the current pool credential. Quota and
// auth failures rotate to the next key and try again, up to twice the pool
// size. Any other failure is returned at once without rotating.
func ExecuteWithRetry[T any](ctx domain.Context, r *Router, call func(domain.Context, domain.Credential) (T, error)) (T, error) {
	var zero T
	size := r.pool.Size()
	if size == 0 {
		return zero, domain.ErrEmptyPool
	}
	maxAttempts := 2 * size
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cred, err := r.pool.Current()
		if err != nil {
			return zero, err
		}
		r.ledger.IncrementCredential(cred.Index)

		out, err := call(ctx, cred)
		if err == nil {
			return out, nil
		}
		if !domain.IsRotatable(err) {
			return zero, err
		}
		lastErr = err
		slog.WarnContext(ctx, "credential rejected",
			slog.Int("credential", cred.Index+1),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("kind", domain.KindOf(err).String()))
		if r.pool.Rotate() {
			r.notify(ctx, r.persona.Text("alerts.all_keys_exhausted", nil))
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", domain.ErrAllCredentialsExhausted, maxAttempts, lastErr)
}
