package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"trivigil/internal/bot/telegram"
)

// UpdateSource long-polls for new updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Poller drives the long-poll loop and hands each update to the
// router on its own goroutine, so a slow store call on one chat never
// stalls another chat's conversation.
type Poller struct {
	source  UpdateSource
	router  *Router
	logger  *slog.Logger
	timeout time.Duration
	backoff time.Duration
}

func NewPoller(source UpdateSource, router *Router, logger *slog.Logger, timeout time.Duration) *Poller {
	return &Poller{
		source:  source,
		router:  router,
		logger:  logger,
		timeout: timeout,
		backoff: 3 * time.Second,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers
// to drain. Poll errors are logged and retried after a backoff; the
// offset only advances past updates that were actually received, so a
// failed poll loses nothing.
func (p *Poller) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("polling for updates failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			wg.Add(1)
			go func(upd telegram.Update) {
				defer wg.Done()
				defer p.recoverPanic(upd)
				p.router.Dispatch(ctx, upd)
			}(upd)
		}
	}
}

func (p *Poller) recoverPanic(upd telegram.Update) {
	if r := recover(); r != nil {
		p.logger.Error("update handler panicked",
			"update_id", upd.UpdateID,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}
