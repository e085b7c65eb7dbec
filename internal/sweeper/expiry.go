package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/contract"
	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/identity"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/logger"
	"github.com/seatrail/ticket-ledger/internal/token"
)

// timeLayouts are the accepted stock window timestamp formats
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

// ExpiryConfig holds configuration for the ticket expiry sweeper
type ExpiryConfig struct {
	Interval       time.Duration // Time to sleep between sweep cycles
	BatchSize      int           // Tickets to expire per cycle
	WorkerPoolSize int           // Concurrent workers
	Caller         identity.Caller
}

// ticketExpirySweeper marks tickets expired once their stock enter window
// has closed. It writes through the contract so expiry respects the same
// status transition rules as any other timer update.
type ticketExpirySweeper struct {
	config    *ExpiryConfig
	tokens    *token.Ledger
	contract  *contract.Contract
	pool      pond.Pool
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewTicketExpirySweeper creates a new ticket expiry sweeper
func NewTicketExpirySweeper(config *ExpiryConfig, tokens *token.Ledger, c *contract.Contract) Sweeper {
	return &ticketExpirySweeper{
		config:    config,
		tokens:    tokens,
		contract:  c,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *ticketExpirySweeper) Name() string {
	return "ticket-expiry-sweeper"
}

// Start begins the sweeper's main loop
func (s *ticketExpirySweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	// All expiry writes run under the sweeper's configured identity
	ctx = identity.WithCaller(ctx, s.config.Caller)

	logger.InfoCtx(ctx, "Starting ticket expiry sweeper",
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
		zap.Duration("interval", s.config.Interval),
	)

	s.pool = pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.BatchSize),
		pond.WithContext(ctx),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Ticket expiry sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			s.cleanup()
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Ticket expiry sweeper stop requested")
			s.cleanup()
			return nil
		default:
			if err := s.runSweepCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
		}
	}
}

// cleanup stops the worker pool and waits for tasks to complete
func (s *ticketExpirySweeper) cleanup() {
	if s.pool != nil {
		s.pool.StopAndWait()
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *ticketExpirySweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping ticket expiry sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Ticket expiry sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Ticket expiry sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runSweepCycle scans primary records and expires tickets whose stock
// enter window has closed
func (s *ticketExpirySweeper) runSweepCycle(ctx context.Context) error {
	startTime := time.Now()

	nfts, err := s.listPrimariesWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to list primary records: %w", err)
	}

	var expiredCount, skippedCount, errorCount atomic.Int32
	submitted := 0

	for _, nft := range nfts {
		if submitted >= s.config.BatchSize {
			break
		}
		candidate, err := s.expirable(ctx, nft)
		if err != nil {
			logger.WarnCtx(ctx, "Skipping unreadable ticket record",
				zap.Error(err),
				zap.String("token_id", nft.TokenID),
				zap.String("owner", nft.Owner),
			)
			errorCount.Add(1)
			continue
		}
		if !candidate {
			skippedCount.Add(1)
			continue
		}

		submitted++
		s.pool.Submit(func() {
			if err := s.expire(ctx, nft); err != nil {
				logger.ErrorCtx(ctx, err,
					zap.String("token_id", nft.TokenID),
					zap.String("owner", nft.Owner),
				)
				errorCount.Add(1)
				return
			}
			expiredCount.Add(1)
		})
	}

	s.pool.StopAndWait()

	// Recreate pool for next cycle
	s.pool = pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.BatchSize),
		pond.WithContext(ctx),
	)

	logger.InfoCtx(ctx, "Expiry sweep cycle completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("scanned", len(nfts)),
		zap.Int32("expired", expiredCount.Load()),
		zap.Int32("skipped", skippedCount.Load()),
		zap.Int32("errors", errorCount.Load()),
	)

	if !s.sleep(ctx, s.config.Interval) {
		return ctx.Err()
	}
	return nil
}

// expirable reports whether a ticket's enter window has closed while its
// status is still non-terminal
func (s *ticketExpirySweeper) expirable(ctx context.Context, nft *domain.NFT) (bool, error) {
	raw, err := s.tokens.GetSub(ctx, nft.TokenID, nft.Owner, nft.Org, keys.SubStockInfo)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	var stockInfo map[string]any
	if err := json.Unmarshal(raw, &stockInfo); err != nil {
		return false, err
	}
	endStr, ok := stockInfo["stock_enter_end_time"].(string)
	if !ok || endStr == "" {
		return false, nil
	}
	end, err := parseWindowTime(endStr)
	if err != nil {
		return false, err
	}
	if !end.Before(time.Now()) {
		return false, nil
	}

	raw, err = s.tokens.GetSub(ctx, nft.TokenID, nft.Owner, nft.Org, keys.SubTicketData)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	var ticketData map[string]any
	if err := json.Unmarshal(raw, &ticketData); err != nil {
		return false, err
	}
	status, ok := ticketData["status"].(float64)
	if !ok {
		return false, nil
	}
	return !domain.TicketStatus(status).Terminal(), nil
}

// expire writes the expired status through the contract's timer update
func (s *ticketExpirySweeper) expire(ctx context.Context, nft *domain.NFT) error {
	payload, err := json.Marshal(map[string]any{
		"status":            int(domain.TicketStatusExpired),
		"timer_update_time": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	err = s.contract.TimerUpdateTickets(ctx, nft.TokenID, nft.Owner, string(payload), uuid.NewString())
	if err != nil {
		// Another sweeper instance may have expired it first
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvariant) {
			return nil
		}
		return err
	}
	logger.InfoCtx(ctx, "Ticket expired",
		zap.String("token_id", nft.TokenID),
		zap.String("owner", nft.Owner),
	)
	return nil
}

// listPrimariesWithRetry scans primary records with exponential backoff
func (s *ticketExpirySweeper) listPrimariesWithRetry(ctx context.Context) ([]*domain.NFT, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 1 * time.Minute
	b.MaxElapsedTime = 10 * time.Minute
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5 // Add jitter to prevent thundering herd

	backoffWithContext := backoff.WithContext(b, ctx)

	var nfts []*domain.NFT
	operation := func() error {
		var err error
		nfts, err = s.tokens.Primaries(ctx)
		return err
	}

	var attemptCount int
	notifyOnError := func(err error, duration time.Duration) {
		attemptCount++
		logger.WarnCtx(ctx, "Primary record scan failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration),
		)
	}

	if err := backoff.RetryNotify(operation, backoffWithContext, notifyOnError); err != nil {
		return nil, fmt.Errorf("failed after %d attempts: %w", attemptCount, err)
	}
	return nfts, nil
}

// sleep sleeps for the given duration but can be interrupted by context cancellation.
// Returns true if sleep completed normally, false if interrupted
func (s *ticketExpirySweeper) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-time.After(duration):
		return true
	case <-ctx.Done():
		return false
	}
}

// parseWindowTime parses a stock window timestamp
func parseWindowTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
