package credential_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-chat-router/internal/credential"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/usage"
)

func newLedger(n int) *usage.Ledger {
	return usage.NewLedger(n, usage.NewManualClock(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)), "api")
}

func TestPool_EmptyPool(t *testing.T) {
	p := credential.NewPool(nil, newLedger(0))
	_, err := p.Current()
	require.ErrorIs(t, err, domain.ErrEmptyPool)
	assert.False(t, p.Rotate())
	assert.Equal(t, 0, p.Size())
}

func TestPool_SkipsBlankSecrets(t *testing.T) {
	p := credential.NewPool([]string{"", "k1", ""}, nil)
	assert.Equal(t, 1, p.Size())
	c, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, "k1", c.Secret)
}

func TestPool_RotateIsCyclic(t *testing.T) {
	for _, k := range []int{1, 2, 3, 5} {
		secrets := make([]string, k)
		for i := range secrets {
			secrets[i] = string(rune('a' + i))
		}
		p := credential.NewPool(secrets, newLedger(k))
		start := p.Index()
		wraps := 0
		for i := 0; i < k; i++ {
			if p.Rotate() {
				wraps++
			}
		}
		assert.Equal(t, start, p.Index(), "pool size %d", k)
		assert.Equal(t, 1, wraps, "exactly one wrap per full cycle for size %d", k)
	}
}

func TestPool_RotateMarksLedgerAndFiresHook(t *testing.T) {
	ledger := newLedger(3)
	var seen []int
	p := credential.NewPool([]string{"a", "b", "c"}, ledger, credential.WithRotateHook(func(c domain.Credential) {
		seen = append(seen, c.Index)
	}))

	assert.False(t, p.Rotate())
	assert.False(t, p.Rotate())
	cur, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Index)
	assert.Equal(t, "c", cur.Secret)

	snap := ledger.Snapshot()
	assert.False(t, snap.PerCredential[0].Active)
	assert.False(t, snap.PerCredential[1].Active)
	assert.True(t, snap.PerCredential[2].Active)
	assert.Equal(t, []int{1, 2}, seen)

	assert.True(t, p.Rotate())
	// pool is reused after a full cycle even though every key is flagged
	cur, err = p.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, cur.Index)
}

func TestPool_Reset(t *testing.T) {
	p := credential.NewPool([]string{"a", "b"}, nil)
	p.Rotate()
	require.Equal(t, 1, p.Index())
	p.Reset()
	assert.Equal(t, 0, p.Index())
}

func TestPool_ConcurrentRotateStaysInRange(t *testing.T) {
	p := credential.NewPool([]string{"a", "b", "c"}, newLedger(3))
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Rotate()
			c, err := p.Current()
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, c.Index, 0)
			assert.Less(t, c.Index, 3)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.Index(), "30 rotations over 3 keys land on the start")
}
