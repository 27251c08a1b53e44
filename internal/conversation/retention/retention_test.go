package retention

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation_sync_service/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	m.Run()
}

type stubPurger struct {
	mu      sync.Mutex
	batches []int64
	calls   int
	err     error
}

func (p *stubPurger) CleanupOldMessages(_ context.Context, _ int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	if p.calls >= len(p.batches) {
		return 0, nil
	}
	n := p.batches[p.calls]
	p.calls++
	return n, nil
}

func TestNewSweeperRejectsBadCron(t *testing.T) {
	_, err := NewSweeper(&stubPurger{}, "not a cron", 100)
	assert.Error(t, err)
}

func TestRunOnceDrainsAllBatches(t *testing.T) {
	purger := &stubPurger{batches: []int64{500, 500, 120}}
	s, err := NewSweeper(purger, "0 3 * * *", 500)
	require.NoError(t, err)

	require.NoError(t, s.RunOnce())

	purger.mu.Lock()
	defer purger.mu.Unlock()
	assert.Equal(t, 3, purger.calls, "sweep must loop until a batch comes up empty")
}

func TestRunOncePropagatesError(t *testing.T) {
	purger := &stubPurger{err: errors.New("archive unavailable")}
	s, err := NewSweeper(purger, "0 3 * * *", 500)
	require.NoError(t, err)

	assert.EqualError(t, s.RunOnce(), "archive unavailable")
}
