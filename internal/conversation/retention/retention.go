// Package retention runs the scheduled sweep that archives and purges
// messages past their conversation's auto-delete window.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"conversation_sync_service/pkg/logger"
)

// Purger the batch cleanup the sweeper drives
type Purger interface {
	CleanupOldMessages(ctx context.Context, batchSize int) (int64, error)
}

// Sweeper schedules retention runs on a cron expression and drains expired
// messages batch by batch until a run comes up empty.
type Sweeper struct {
	purger    Purger
	cron      string
	batchSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// NewSweeper create a Sweeper; fails on an invalid cron expression
func NewSweeper(purger Purger, cron string, batchSize int) (*Sweeper, error) {
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %q", cron)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{purger: purger, cron: cron, batchSize: batchSize}, nil
}

// Start launch the schedule loop; the returned cancel stops it
func (s *Sweeper) Start(ctx context.Context) context.CancelFunc {
	s.ctx, s.cancel = context.WithCancel(ctx)
	logger.Log.Info("retention sweeper started",
		zap.String("cron", s.cron),
		zap.Int("batch_size", s.batchSize),
	)
	go s.scheduleLoop()
	return s.cancel
}

func (s *Sweeper) scheduleLoop() {
	for {
		now := time.Now()
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			logger.Log.Error("retention next tick failed",
				zap.String("cron", s.cron),
				zap.Error(err),
			)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-s.ctx.Done():
				return
			}
		}

		select {
		case <-time.After(next.Sub(now)):
			if err := s.RunOnce(); err != nil {
				logger.Log.Error("retention run failed", zap.Error(err))
			}
		case <-s.ctx.Done():
			logger.Log.Info("retention sweeper stopped")
			return
		}
	}
}

// RunOnce drain expired messages now. Overlapping runs are skipped so a slow
// sweep is never doubled by the next tick.
func (s *Sweeper) RunOnce() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Log.Warn("retention run already in progress, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	var total int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		purged, err := s.purger.CleanupOldMessages(ctx, s.batchSize)
		if err != nil {
			return err
		}
		total += purged
		if purged == 0 {
			break
		}
	}

	logger.Log.Info("retention run finished",
		zap.Int64("purged", total),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
