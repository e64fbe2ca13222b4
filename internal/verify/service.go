// Package verify implements the token verification workflow: the
// two-step buyer conversation and the administrator approval and audit
// commands. The state machine is defined once here and parameterized by
// its collaborators; cmd/server is the single composition point.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trivigil/internal/platform/metrics"
	"trivigil/internal/token/models"
	"trivigil/internal/token/store"
	"trivigil/internal/verify/session"
)

// Notifier sends a text message to one chat participant. Failures are
// per-recipient and must never abort sibling deliveries.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Service drives a token from buyer entry to administrator approval.
// It holds no record state between conversation turns; every transition
// re-reads and re-writes the token store. Conversation state lives in
// the session store, keyed by buyer identity and carrying the token.
type Service struct {
	records   store.Store
	sessions  session.Store
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	adminChat int64
	listLimit int
	clock     func() time.Time
}

type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithListLimit caps the number of records a single /check_all reply
// renders.
func WithListLimit(limit int) Option {
	return func(s *Service) {
		s.listLimit = limit
	}
}

func New(
	records store.Store,
	sessions session.Store,
	notifier Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
	adminChat int64,
	opts ...Option,
) (*Service, error) {
	if records == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	svc := &Service{
		records:   records,
		sessions:  sessions,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		adminChat: adminChat,
		listLimit: 50,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IsAdmin reports whether the sender is the configured administrator.
func (s *Service) IsAdmin(sender int64) bool {
	return s.adminChat != 0 && sender == s.adminChat
}

// StartVerification handles `/verify <token>`. On success the buyer is
// bound to the record (first presentation wins) and a session carrying
// the token is opened.
func (s *Service) StartVerification(ctx context.Context, sender int64, tokenArg string) {
	if tokenArg == "" {
		s.reply(ctx, sender, MsgVerifyUsage)
		return
	}

	if _, err := s.records.FindByToken(ctx, tokenArg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.reply(ctx, sender, MsgInvalidToken)
			return
		}
		s.storeFailure(ctx, sender, "find token", err)
		return
	}

	if err := s.records.BindBuyer(ctx, tokenArg, sender); err != nil {
		switch {
		case errors.Is(err, store.ErrIdentityBound):
			s.reply(ctx, sender, MsgTokenConflict)
		case errors.Is(err, store.ErrNotFound):
			s.reply(ctx, sender, MsgInvalidToken)
		default:
			s.storeFailure(ctx, sender, "bind buyer", err)
		}
		return
	}

	err := s.sessions.Put(ctx, session.Session{
		BuyerID:   sender,
		Token:     tokenArg,
		CreatedAt: s.clock(),
	})
	if err != nil {
		s.storeFailure(ctx, sender, "open session", err)
		return
	}

	s.metrics.VerificationsStarted.Inc()
	s.logger.InfoContext(ctx, "verification started", "token", tokenArg, "buyer", sender)
	s.reply(ctx, sender, MsgAskReference)
}

// SubmitReference handles free text from a buyer. It returns false when
// the buyer has no live session, in which case the message is not part
// of a verification conversation and the caller should ignore it.
func (s *Service) SubmitReference(ctx context.Context, sender int64, text string) bool {
	sess, err := s.sessions.Get(ctx, sender)
	if err != nil {
		s.storeFailure(ctx, sender, "load session", err)
		return true
	}
	if sess == nil {
		return false
	}

	reference := strings.TrimSpace(text)
	if reference == "" {
		s.reply(ctx, sender, MsgAskReference)
		return true
	}

	if _, err := s.records.Update(ctx, sess.Token, models.RecordUpdate{TransactionReference: &reference}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Record vanished underneath the session; close the
			// conversation rather than leaving the buyer stuck.
			_ = s.sessions.Delete(ctx, sender)
			s.reply(ctx, sender, MsgInvalidToken)
			return true
		}
		// Session stays open so the buyer can resend the reference.
		s.storeFailure(ctx, sender, "save reference", err)
		return true
	}

	if err := s.sessions.Delete(ctx, sender); err != nil {
		s.logger.WarnContext(ctx, "failed to close session", "buyer", sender, "error", err.Error())
	}

	s.metrics.VerificationsCompleted.Inc()
	s.logger.InfoContext(ctx, "reference received", "token", sess.Token, "buyer", sender)

	// Admin notification failure must not rob the buyer of their receipt.
	adminText := fmt.Sprintf("⚠️ New verification request:\nToken: %s\nReference: %s", sess.Token, reference)
	if err := s.notifier.Send(ctx, s.adminChat, adminText); err != nil {
		s.metrics.NotifyFailures.Inc()
		s.logger.ErrorContext(ctx, "failed to notify admin", "token", sess.Token, "error", err.Error())
	}

	s.reply(ctx, sender, MsgReferenceOK)
	return true
}

// Approve handles `/verify_transaction <token> <txid>`. Non-admin
// senders are silently ignored. The supplied txid is persisted as the
// administrator's reference and must match the buyer-submitted one.
func (s *Service) Approve(ctx context.Context, sender int64, tokenArg, txid string) {
	if !s.IsAdmin(sender) {
		return
	}

	record, err := s.records.FindByToken(ctx, tokenArg)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.reply(ctx, sender, fmt.Sprintf("❌ Unknown token %s", tokenArg))
			return
		}
		s.storeFailure(ctx, sender, "find token", err)
		return
	}

	if record.Verified {
		s.reply(ctx, sender, fmt.Sprintf("Token %s is already verified", tokenArg))
		return
	}
	if record.TransactionReference == "" {
		s.reply(ctx, sender, fmt.Sprintf("❌ Token %s has no transaction reference yet", tokenArg))
		return
	}
	if record.TransactionReference != txid {
		s.reply(ctx, sender, fmt.Sprintf("❌ Reference mismatch for token %s", tokenArg))
		return
	}

	verified := true
	record, err = s.records.Update(ctx, tokenArg, models.RecordUpdate{
		Verified:       &verified,
		AdminReference: &txid,
	})
	if err != nil {
		s.storeFailure(ctx, sender, "approve token", err)
		return
	}

	s.metrics.Approvals.Inc()
	s.logger.InfoContext(ctx, "token approved", "token", tokenArg)

	if record.HasBuyer() {
		buyerText := fmt.Sprintf("✅ Verified!\nDownload: %s", record.DownloadLink)
		if err := s.notifier.Send(ctx, *record.BuyerIdentity, buyerText); err != nil {
			s.metrics.NotifyFailures.Inc()
			s.logger.ErrorContext(ctx, "failed to notify buyer",
				"token", tokenArg,
				"buyer", *record.BuyerIdentity,
				"error", err.Error(),
			)
		}
		s.reply(ctx, sender, fmt.Sprintf("Verified token %s", tokenArg))
		return
	}
	s.reply(ctx, sender, fmt.Sprintf("Verified token %s (no buyer bound yet)", tokenArg))
}

// ListAll handles `/check_all`. Non-admin senders are silently ignored.
func (s *Service) ListAll(ctx context.Context, sender int64) {
	if !s.IsAdmin(sender) {
		return
	}

	records, err := s.records.List(ctx, s.listLimit)
	if err != nil {
		s.storeFailure(ctx, sender, "list tokens", err)
		return
	}
	total, err := s.records.Count(ctx)
	if err != nil {
		s.storeFailure(ctx, sender, "count tokens", err)
		return
	}

	lines := make([]string, 0, len(records)+2)
	lines = append(lines, "📦 All tokens:")
	for _, record := range records {
		marker := "❌"
		if record.Verified {
			marker = "✅"
		}
		reference := record.TransactionReference
		if reference == "" {
			reference = "-"
		}
		lines = append(lines, fmt.Sprintf("%s - %s - %s", record.Token, marker, reference))
	}
	if remaining := total - len(records); remaining > 0 {
		lines = append(lines, fmt.Sprintf("… and %d more", remaining))
	}
	s.reply(ctx, sender, strings.Join(lines, "\n"))
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if err := s.notifier.Send(ctx, chatID, text); err != nil {
		s.metrics.NotifyFailures.Inc()
		s.logger.ErrorContext(ctx, "failed to send reply", "chat", chatID, "error", err.Error())
	}
}

// storeFailure logs a persistence failure and degrades to a generic
// user-facing message without leaking internal detail.
func (s *Service) storeFailure(ctx context.Context, chatID int64, op string, err error) {
	s.logger.ErrorContext(ctx, "store failure", "op", op, "chat", chatID, "error", err.Error())
	s.reply(ctx, chatID, MsgGenericError)
}
