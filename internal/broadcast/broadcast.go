// Package broadcast fans announcements out to every buyer with a bound
// verification record.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trivigil/internal/platform/metrics"
	dErrors "trivigil/pkg/domainerrors"
)

// BuyerSource lists the distinct chat IDs to deliver to.
type BuyerSource interface {
	Buyers(ctx context.Context) ([]int64, error)
}

// Notifier delivers a single message to a chat.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Result summarizes one broadcast run.
type Result struct {
	JobID  string
	Sent   int
	Failed int
}

// Service delivers one message to each buyer sequentially, pausing
// between sends so the upstream API's flood limits are respected. A
// failed recipient is logged and skipped; it never stops the run.
type Service struct {
	buyers   BuyerSource
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Service)

// WithSleep overrides the inter-send pause for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

func New(buyers BuyerSource, notifier Notifier, m *metrics.Metrics, logger *slog.Logger, delay time.Duration, opts ...Option) (*Service, error) {
	if buyers == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "buyer source is required")
	}
	if notifier == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "notifier is required")
	}
	s := &Service{
		buyers:   buyers,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		delay:    delay,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Broadcast sends text to every distinct buyer. It returns early only
// when the buyer listing fails or the context is cancelled mid-run;
// individual delivery failures are counted and skipped.
func (s *Service) Broadcast(ctx context.Context, text string) (*Result, error) {
	recipients, err := s.buyers.Buyers(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing broadcast recipients")
	}

	result := &Result{JobID: uuid.NewString()}
	logger := s.logger.With("job_id", result.JobID, "recipients", len(recipients))
	logger.Info("broadcast started")

	for i, chatID := range recipients {
		if i > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				logger.Warn("broadcast cancelled mid-run", "sent", result.Sent, "failed", result.Failed)
				return result, err
			}
		}
		if err := s.notifier.Send(ctx, chatID, text); err != nil {
			result.Failed++
			s.metrics.BroadcastFailed.Inc()
			logger.Warn("broadcast delivery failed", "chat_id", chatID, "error", err)
			continue
		}
		result.Sent++
		s.metrics.BroadcastSent.Inc()
	}

	logger.Info("broadcast finished", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
