package notify

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/chobits/backend/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSender struct {
	mu    sync.Mutex
	sends []sentPush
	err   error
}

type sentPush struct {
	tokens []string
	push   Push
}

func (r *recordingSender) Send(_ context.Context, tokens []string, p Push) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sentPush{tokens: append([]string(nil), tokens...), push: p})
	if r.err != nil {
		return Report{}, r.err
	}
	report := Report{SuccessCount: len(tokens)}
	for _, tok := range tokens {
		report.Responses = append(report.Responses, Delivery{Token: tok, Success: true})
	}
	return report, nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	base := []Option{WithClock(c.now), WithRand(rand.New(rand.NewPCG(1, 2)))}
	return NewService(db, append(base, opts...)...)
}

func TestRegisterTokenDedupes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n, err := svc.RegisterToken(ctx, "device-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.RegisterToken(ctx, "device-b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.RegisterToken(ctx, "device-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tokens, err := svc.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"device-a", "device-b"}, tokens)

	require.NoError(t, svc.UnregisterToken(ctx, "device-a"))
	require.NoError(t, svc.UnregisterToken(ctx, "never-registered"))
	tokens, err = svc.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"device-b"}, tokens)
}

func TestRegisterTokenRequiresToken(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RegisterToken(context.Background(), " ")
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.ErrorIs(t, svc.UnregisterToken(context.Background(), ""), ErrMissingToken)
}

func TestNotify(t *testing.T) {
	ctx := context.Background()

	t.Run("no sender", func(t *testing.T) {
		svc := newTestService(t)
		_, _, err := svc.Notify(ctx, Push{})
		assert.ErrorIs(t, err, ErrNoSender)
	})

	t.Run("no tokens", func(t *testing.T) {
		sender := &recordingSender{}
		svc := newTestService(t, WithSender(sender))
		_, delivered, err := svc.Notify(ctx, Push{})
		require.NoError(t, err)
		assert.False(t, delivered)
		assert.Zero(t, sender.count())
	})

	t.Run("defaults", func(t *testing.T) {
		sender := &recordingSender{}
		svc := newTestService(t, WithSender(sender))
		_, err := svc.RegisterToken(ctx, "device-a")
		require.NoError(t, err)

		report, delivered, err := svc.Notify(ctx, Push{})
		require.NoError(t, err)
		assert.True(t, delivered)
		assert.Equal(t, 1, report.SuccessCount)
		require.Equal(t, 1, sender.count())
		assert.Equal(t, Push{Title: DefaultTitle, Body: DefaultBody}, sender.sends[0].push)
		assert.Equal(t, []string{"device-a"}, sender.sends[0].tokens)
	})

	t.Run("send error", func(t *testing.T) {
		sender := &recordingSender{err: errors.New("unavailable")}
		svc := newTestService(t, WithSender(sender))
		_, err := svc.RegisterToken(ctx, "device-a")
		require.NoError(t, err)

		_, _, err = svc.Notify(ctx, Push{Title: "t", Body: "b"})
		assert.ErrorContains(t, err, "unavailable")
	})
}

func TestGenerate(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestService(t, WithSender(sender))
	ctx := context.Background()

	n, err := svc.Generate(ctx, Meal, "=== 小叽 的核心记忆 ===\n创建时间: 2024/1/1 08:00:00\n")
	require.NoError(t, err)
	assert.Equal(t, Meal, n.Type)
	assert.Equal(t, DefaultTitle, n.Title)
	assert.Contains(t, Templates(Meal), n.Body)
	assert.False(t, n.Read)
	assert.Equal(t, "(来自: === 小叽 的核心记忆 ===\n创建时间: 2024/1/...)", n.Memory)
	assert.Zero(t, sender.count(), "no tokens, no push")

	_, err = svc.RegisterToken(ctx, "device-a")
	require.NoError(t, err)
	other, err := svc.Generate(ctx, "dancing", "")
	require.NoError(t, err)
	assert.Equal(t, Type("dancing"), other.Type)
	assert.Contains(t, Templates(Random), other.Body)
	assert.Empty(t, other.Memory)
	assert.Equal(t, 1, sender.count())

	def, err := svc.Generate(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, Greeting, def.Type)

	pending, err := svc.Pending(ctx, false)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{n.ID, other.ID, def.ID}, []string{pending[0].ID, pending[1].ID, pending[2].ID})
}

func TestGenerateUniqueIDsWithinOneMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	svc := newTestService(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	a, err := svc.Generate(ctx, Mood, "")
	require.NoError(t, err)
	b, err := svc.Generate(ctx, Mood, "")
	require.NoError(t, err)

	assert.Equal(t, "1700000000000", a.ID)
	assert.Equal(t, "1700000000001", b.ID)
	assert.Equal(t, a.Timestamp, b.Timestamp)
}

func TestMarkRead(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Generate(ctx, Weather, "")
	require.NoError(t, err)
	second, err := svc.Generate(ctx, Activity, "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, first.ID))
	assert.ErrorIs(t, svc.MarkRead(ctx, "missing"), ErrNotificationNotFound)

	all, err := svc.Pending(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Read)

	unread, err := svc.Pending(ctx, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)
}

func TestTemplatesUnknownTypeFallsBackToRandom(t *testing.T) {
	assert.Equal(t, Templates(Random), Templates("unknown"))
	assert.Len(t, Templates(Weather), 3)
}

func TestSchedulerGeneratesUntilCancelled(t *testing.T) {
	svc := newTestService(t)
	sched := NewScheduler(svc, 5*time.Millisecond, svc.logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, err := svc.Pending(context.Background(), false)
		return err == nil && len(pending) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	pending, err := svc.Pending(context.Background(), false)
	require.NoError(t, err)
	for _, n := range pending {
		assert.Contains(t, scheduledTypes, n.Type)
		assert.Empty(t, n.Memory)
	}
}

func TestNewSchedulerDefaultInterval(t *testing.T) {
	sched := NewScheduler(newTestService(t), 0, zerolog.Nop())
	assert.Equal(t, DefaultInterval, sched.interval)
}
