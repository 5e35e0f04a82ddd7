// Package credential implements the cyclic pool of fallback provider keys.
package credential

import (
	"log/slog"
	"sync"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/observability"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// Exhauster records that a credential hit its quota.
type Exhauster interface {
	MarkExhausted(index int)
}

// Pool hands out the current credential and rotates on demand.
// Exhaustion is advisory: a fully exhausted pool keeps cycling.
type Pool struct {
	mu       sync.Mutex
	secrets  []string
	index    int
	ledger   Exhauster
	onRotate func(domain.Credential)
}

// Option configures a Pool.
type Option func(*Pool)

// WithRotateHook registers fn to run after every rotation with the new current
// credential. Client caches use it to rebuild their per-key state.
func WithRotateHook(fn func(domain.Credential)) Option {
	return func(p *Pool) { p.onRotate = fn }
}

// NewPool builds a pool over secrets. Empty secrets are skipped.
func NewPool(secrets []string, ledger Exhauster, opts ...Option) *Pool {
	clean := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			clean = append(clean, s)
		}
	}
	p := &Pool{secrets: clean, ledger: ledger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size is the number of configured credentials.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.secrets)
}

// Index is the position of the current credential.
func (p *Pool) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Current returns the credential at the current index.
func (p *Pool) Current() (domain.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.secrets) == 0 {
		return domain.Credential{}, domain.ErrEmptyPool
	}
	return domain.Credential{Index: p.index, Secret: p.secrets[p.index], Active: true}, nil
}

// Rotate marks the current credential exhausted and advances to the next one.
// It returns true when the index wrapped back to zero, meaning every key was
// tried in this cycle and the operator should hear about it.
func (p *Pool) Rotate() bool {
	p.mu.Lock()
	if len(p.secrets) == 0 {
		p.mu.Unlock()
		return false
	}
	prev := p.index
	if p.ledger != nil {
		p.ledger.MarkExhausted(prev)
	}
	p.index = (p.index + 1) % len(p.secrets)
	wrapped := p.index == 0
	next := domain.Credential{Index: p.index, Secret: p.secrets[p.index], Active: true}
	hook := p.onRotate
	p.mu.Unlock()

	observability.CredentialRotationsTotal.Inc()
	slog.Warn("credential rotated",
		slog.Int("from", prev+1),
		slog.Int("to", next.Index+1),
		slog.Bool("cycle_complete", wrapped))
	if hook != nil {
		hook(next)
	}
	return wrapped
}

// Reset moves back to the first credential.
func (p *Pool) Reset() {
	p.mu.Lock()
	p.index = 0
	p.mu.Unlock()
}
