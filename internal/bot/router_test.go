package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"trivigil/internal/bot/telegram"
	"trivigil/internal/broadcast"
	"trivigil/internal/platform/metrics"
	"trivigil/internal/ratelimit"
)

const adminChat = int64(1000)

type call struct {
	method string
	args   []string
}

type fakeVerify struct {
	calls []call
}

func (f *fakeVerify) IsAdmin(sender int64) bool { return sender == adminChat }

func (f *fakeVerify) StartVerification(_ context.Context, _ int64, tokenArg string) {
	f.calls = append(f.calls, call{"StartVerification", []string{tokenArg}})
}

func (f *fakeVerify) SubmitReference(_ context.Context, _ int64, text string) bool {
	f.calls = append(f.calls, call{"SubmitReference", []string{text}})
	return true
}

func (f *fakeVerify) Approve(_ context.Context, _ int64, tokenArg, txid string) {
	f.calls = append(f.calls, call{"Approve", []string{tokenArg, txid}})
}

func (f *fakeVerify) ListAll(_ context.Context, _ int64) {
	f.calls = append(f.calls, call{"ListAll", nil})
}

type fakeBroadcaster struct {
	texts  []string
	result *broadcast.Result
	err    error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, text string) (*broadcast.Result, error) {
	f.texts = append(f.texts, text)
	return f.result, f.err
}

type fakeNotifier struct {
	replies []string
}

func (f *fakeNotifier) Send(_ context.Context, _ int64, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

type routerFixture struct {
	router      *Router
	verify      *fakeVerify
	broadcaster *fakeBroadcaster
	notifier    *fakeNotifier
	metrics     *metrics.Metrics
}

func newFixture(limit int) *routerFixture {
	f := &routerFixture{
		verify:      &fakeVerify{},
		broadcaster: &fakeBroadcaster{result: &broadcast.Result{Sent: 2, Failed: 1}},
		notifier:    &fakeNotifier{},
		metrics:     metrics.New(prometheus.NewRegistry()),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(limit, time.Hour, ratelimit.WithExempt(adminChat))
	f.router = NewRouter(f.verify, f.broadcaster, f.notifier, limiter, f.metrics, logger)
	return f
}

func message(sender int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			From: &telegram.User{ID: sender},
			Chat: telegram.Chat{ID: sender},
			Text: text,
		},
	}
}

func TestDispatchVerify(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(7, "/verify NAT-AAAAAAAA"))

	assert.Equal(t, []call{{"StartVerification", []string{"NAT-AAAAAAAA"}}}, f.verify.calls)
}

func TestDispatchVerifyWithoutArgument(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(7, "/verify"))

	assert.Equal(t, []call{{"StartVerification", []string{""}}}, f.verify.calls)
}

func TestDispatchVerifyWithBotSuffix(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(7, "/verify@TrivigilBot NAT-AAAAAAAA"))

	assert.Equal(t, []call{{"StartVerification", []string{"NAT-AAAAAAAA"}}}, f.verify.calls)
}

func TestDispatchFreeText(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(7, "abc123"))

	assert.Equal(t, []call{{"SubmitReference", []string{"abc123"}}}, f.verify.calls)
}

func TestDispatchApprove(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(adminChat, "/verify_transaction NAT-AAAAAAAA abc123"))

	assert.Equal(t, []call{{"Approve", []string{"NAT-AAAAAAAA", "abc123"}}}, f.verify.calls)
}

func TestDispatchApproveWrongArity(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(adminChat, "/verify_transaction NAT-AAAAAAAA"))

	assert.Empty(t, f.verify.calls)
	assert.Equal(t, []string{msgApproveUsage}, f.notifier.replies)
}

func TestDispatchApproveNonAdminSilent(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(7, "/verify_transaction NAT-AAAAAAAA abc123"))

	assert.Empty(t, f.verify.calls)
	assert.Empty(t, f.notifier.replies, "no usage hint for non-admins either")
}

func TestDispatchCheckAll(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(adminChat, "/check_all"))

	assert.Equal(t, []call{{"ListAll", nil}}, f.verify.calls)
}

func TestDispatchBroadcast(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(adminChat, "/broadcast new build is out  🎉"))

	assert.Equal(t, []string{"new build is out  🎉"}, f.broadcaster.texts, "inner spacing preserved")
	assert.Equal(t, []string{"📣 Broadcast sent to 2 buyers (1 failed)"}, f.notifier.replies)
}

func TestDispatchBroadcastWithoutText(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(adminChat, "/broadcast"))

	assert.Empty(t, f.broadcaster.texts)
	assert.Equal(t, []string{msgBroadcastUsage}, f.notifier.replies)
}

func TestDispatchBroadcastNonAdminSilent(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(7, "/broadcast spam"))

	assert.Empty(t, f.broadcaster.texts)
	assert.Empty(t, f.notifier.replies)
}

func TestDispatchBroadcastFailure(t *testing.T) {
	f := newFixture(10)
	f.broadcaster.err = errors.New("connection reset")
	f.broadcaster.result = nil
	f.router.Dispatch(context.Background(), message(adminChat, "/broadcast hello"))

	assert.Equal(t, []string{"❌ Broadcast failed"}, f.notifier.replies)
}

func TestDispatchUnknownCommandIgnored(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), message(7, "/start"))

	assert.Empty(t, f.verify.calls)
	assert.Empty(t, f.notifier.replies)
}

func TestDispatchIgnoresNonMessageUpdates(t *testing.T) {
	f := newFixture(10)
	f.router.Dispatch(context.Background(), telegram.Update{UpdateID: 1})
	f.router.Dispatch(context.Background(), message(7, "   "))

	assert.Empty(t, f.verify.calls)
}

func TestDispatchRateLimited(t *testing.T) {
	f := newFixture(2)
	ctx := context.Background()

	f.router.Dispatch(ctx, message(7, "/verify NAT-AAAAAAAA"))
	f.router.Dispatch(ctx, message(7, "abc123"))
	f.router.Dispatch(ctx, message(7, "again"))

	assert.Len(t, f.verify.calls, 2, "third update dropped")
}

func TestDispatchAdminExemptFromRateLimit(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.router.Dispatch(ctx, message(adminChat, "/check_all"))
	}
	assert.Len(t, f.verify.calls, 5)
}
