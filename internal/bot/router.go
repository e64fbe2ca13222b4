// Package bot turns inbound Telegram updates into verification service
// calls. Command parsing lives here; the conversation semantics live in
// the verify package.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"trivigil/internal/bot/telegram"
	"trivigil/internal/broadcast"
	"trivigil/internal/platform/metrics"
	"trivigil/internal/ratelimit"
)

const (
	msgApproveUsage   = "Usage: /verify_transaction <token> <txid>"
	msgBroadcastUsage = "Usage: /broadcast <message>"
)

// VerifyService is the slice of the verification service the router
// dispatches to.
type VerifyService interface {
	IsAdmin(sender int64) bool
	StartVerification(ctx context.Context, sender int64, tokenArg string)
	SubmitReference(ctx context.Context, sender int64, text string) bool
	Approve(ctx context.Context, sender int64, tokenArg, txid string)
	ListAll(ctx context.Context, sender int64)
}

// Broadcaster fans one message out to every bound buyer.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (*broadcast.Result, error)
}

// Notifier sends the router's own replies (usage hints, broadcast
// receipts).
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Router struct {
	verify      VerifyService
	broadcaster Broadcaster
	notifier    Notifier
	limiter     *ratelimit.Limiter
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewRouter(v VerifyService, b Broadcaster, n Notifier, l *ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		verify:      v,
		broadcaster: b,
		notifier:    n,
		limiter:     l,
		metrics:     m,
		logger:      logger,
	}
}

// Dispatch routes one update. Updates without a usable text message,
// throttled senders, and unknown commands are all dropped silently;
// the bot never replies to traffic it does not understand.
func (r *Router) Dispatch(ctx context.Context, upd telegram.Update) {
	sender := upd.SenderID()
	if sender == 0 {
		return
	}
	text := strings.TrimSpace(upd.Message.Text)
	if text == "" {
		return
	}

	if !r.limiter.Allow(sender) {
		r.metrics.UpdatesRateLimited.Inc()
		r.logger.Debug("update rate limited", "sender", sender)
		return
	}

	if !strings.HasPrefix(text, "/") {
		r.verify.SubmitReference(ctx, sender, text)
		return
	}

	command, args, rest := splitCommand(text)
	switch command {
	case "/verify":
		tokenArg := ""
		if len(args) > 0 {
			tokenArg = args[0]
		}
		r.verify.StartVerification(ctx, sender, tokenArg)
	case "/verify_transaction":
		if !r.verify.IsAdmin(sender) {
			return
		}
		if len(args) != 2 {
			r.reply(ctx, sender, msgApproveUsage)
			return
		}
		r.verify.Approve(ctx, sender, args[0], args[1])
	case "/check_all":
		r.verify.ListAll(ctx, sender)
	case "/broadcast":
		r.handleBroadcast(ctx, sender, rest)
	default:
		r.logger.Debug("ignoring unknown command", "command", command, "sender", sender)
	}
}

func (r *Router) handleBroadcast(ctx context.Context, sender int64, text string) {
	if !r.verify.IsAdmin(sender) {
		return
	}
	if text == "" {
		r.reply(ctx, sender, msgBroadcastUsage)
		return
	}
	result, err := r.broadcaster.Broadcast(ctx, text)
	if err != nil {
		r.logger.Error("broadcast failed", "error", err)
		r.reply(ctx, sender, "❌ Broadcast failed")
		return
	}
	r.reply(ctx, sender, fmt.Sprintf("📣 Broadcast sent to %d buyers (%d failed)", result.Sent, result.Failed))
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if err := r.notifier.Send(ctx, chatID, text); err != nil {
		r.logger.Warn("reply delivery failed", "chat_id", chatID, "error", err)
	}
}

// splitCommand separates "/cmd@BotName arg1 arg2" into the bare
// command, its whitespace-split arguments, and the raw remainder with
// inner spacing preserved.
func splitCommand(text string) (command string, args []string, rest string) {
	command, rest, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		args = strings.Fields(rest)
	}
	return command, args, rest
}
