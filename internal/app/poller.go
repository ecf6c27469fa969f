package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

const defaultPollInterval = time.Second

// ProgressPoller queries a backend at a fixed interval and emits status
// changes for one transfer. A poller is single use; create one per transfer.
type ProgressPoller struct {
	backend       domain.TransferBackend
	interval      time.Duration
	maxPausedWait time.Duration
	logger        *zap.Logger
	used          atomic.Bool
}

// NewProgressPoller creates a poller. A nil config uses a one second
// interval with no bound on paused time.
func NewProgressPoller(backend domain.TransferBackend, config *domain.PollConfig, logger *zap.Logger) *ProgressPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ProgressPoller{
		backend:  backend,
		interval: defaultPollInterval,
		logger:   logger,
	}
	if config != nil {
		if config.Interval > 0 {
			p.interval = config.Interval
		}
		p.maxPausedWait = config.MaxPausedWait
	}
	return p
}

// Run polls handle until a terminal status is observed or ctx is done.
//
// Running is emitted only when bytesSoFar changes, Pending when the
// transfer enters it, and Paused once per distinct reason while paused.
// The terminal status is emitted once and returned. When ctx ends first,
// Run returns ctx.Err() and emits nothing further.
func (p *ProgressPoller) Run(ctx context.Context, handle domain.TransferHandle, emit func(domain.TransferStatus)) (domain.TransferStatus, error) {
	if !p.used.CompareAndSwap(false, true) {
		return domain.TransferStatus{}, domain.ErrPollerExhausted
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var (
		lastKind    domain.StatusKind
		lastBytes   int64 = -1
		lastPause   domain.PauseReason
		pausedSince time.Time
	)

	for {
		if err := ctx.Err(); err != nil {
			return domain.TransferStatus{}, err
		}

		status, err := p.backend.Query(ctx, handle)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrTransferNotFound):
			status = domain.Failed(domain.FailureUnknown, err.Error())
		case ctx.Err() != nil:
			return domain.TransferStatus{}, ctx.Err()
		default:
			p.logger.Warn("Failed to query transfer",
				zap.Int64("handle", int64(handle)),
				zap.Error(err))
			if err := p.wait(ctx, ticker); err != nil {
				return domain.TransferStatus{}, err
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return domain.TransferStatus{}, err
		}

		switch status.Kind {
		case domain.StatusRunning:
			if status.BytesSoFar != lastBytes {
				lastBytes = status.BytesSoFar
				emit(status)
			}
		case domain.StatusPending:
			if lastKind != domain.StatusPending {
				emit(status)
			}
		case domain.StatusPaused:
			if lastKind != domain.StatusPaused {
				pausedSince = time.Now()
				lastPause = ""
			}
			if status.PauseReason != lastPause {
				lastPause = status.PauseReason
				emit(status)
			}
			if p.maxPausedWait > 0 && time.Since(pausedSince) >= p.maxPausedWait {
				p.logger.Warn("Transfer paused for too long, giving up",
					zap.Int64("handle", int64(handle)),
					zap.String("reason", string(status.PauseReason)),
					zap.Duration("waited", time.Since(pausedSince)))
				if err := p.backend.Remove(ctx, handle); err != nil {
					p.logger.Warn("Failed to remove stalled transfer", zap.Error(err))
				}
				status = domain.Failed(domain.FailureCannotResume, "paused for "+p.maxPausedWait.String())
				emit(status)
				return status, nil
			}
		case domain.StatusSucceeded, domain.StatusFailed:
			emit(status)
			return status, nil
		}
		lastKind = status.Kind

		if err := p.wait(ctx, ticker); err != nil {
			return domain.TransferStatus{}, err
		}
	}
}

func (p *ProgressPoller) wait(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C:
		return nil
	}
}
