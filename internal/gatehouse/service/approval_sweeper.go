package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// sweepBatch caps how many requests one pass expires.
const sweepBatch = 500

// ApprovalSweeper periodically expires stale PENDING exit approvals so that
// residents and guards see them as EXPIRED without reading them first.  It
// runs as a background goroutine and is safe to stop via its context or the
// Stop method.
//
// An interval of 0 disables sweeping entirely.
type ApprovalSweeper struct {
	approvals *ApprovalService
	interval  time.Duration
	logger    *zap.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewApprovalSweeper creates a sweeper but does not start it.
// Call Start to begin the background loop.
func NewApprovalSweeper(approvals *ApprovalService, interval time.Duration, logger *zap.Logger) *ApprovalSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalSweeper{
		approvals: approvals,
		interval:  interval,
		logger:    logger.Named("approval-sweeper"),
		done:      make(chan struct{}),
	}
}

// Start begins the background loop.  It sweeps immediately, then repeats on
// the configured interval.  The loop exits when ctx is cancelled or Stop is
// called.
func (p *ApprovalSweeper) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("approval sweeper disabled (interval=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("approval sweeper started", zap.Duration("interval", p.interval))
}

// Stop signals the sweeper to exit and waits for it to finish.
func (p *ApprovalSweeper) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *ApprovalSweeper) loop(ctx context.Context) {
	defer close(p.done)

	p.sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *ApprovalSweeper) sweep(ctx context.Context) {
	n, err := p.approvals.ExpireStale(ctx, sweepBatch)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("approval sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		p.logger.Info("approval sweep expired stale requests", zap.Int("expired", n))
	}
}
