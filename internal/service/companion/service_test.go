package companion_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
	"github.com/zhouzirui/chobits/backend/internal/model/chat"
	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	speechmodel "github.com/zhouzirui/chobits/backend/internal/model/speech"
	"github.com/zhouzirui/chobits/backend/internal/playback"
	"github.com/zhouzirui/chobits/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []ai.CallRequest
	gate  chan struct{}
}

func (f *fakeLLM) Call(ctx context.Context, req ai.CallRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

type fakeMemory struct {
	core     string
	appended []string
}

func (m *fakeMemory) CoreMemory(context.Context, persona.Persona) (string, error) {
	return m.core, nil
}

func (m *fakeMemory) ResourceContext(_ context.Context, _ persona.Persona, _ string) (string, []string, error) {
	return "<document>", []string{"doc-1"}, nil
}

func (m *fakeMemory) Append(_ context.Context, _ persona.Persona, user, reply string) error {
	m.appended = append(m.appended, user+"|"+reply)
	return nil
}

type fixture struct {
	chats  *chatservice.Service
	llm    *fakeLLM
	memory *fakeMemory
	svc    *companion.Service
	id     string
}

func newFixture(t *testing.T, raw string, opts ...companion.Option) *fixture {
	t.Helper()
	chats := chatservice.NewService()
	personas := persona.NewMemoryStore(persona.Seed())
	llm := &fakeLLM{reply: raw}
	mem := &fakeMemory{core: "core"}
	opts = append([]companion.Option{companion.WithPlayback(0, "")}, opts...)
	svc := companion.NewService(chats, personas, llm, mem, opts...)

	session, err := chats.CreateSession(context.Background(), "chii")
	require.NoError(t, err)
	return &fixture{chats: chats, llm: llm, memory: mem, svc: svc, id: session.ID}
}

func TestHandleTurnPlaysAndStores(t *testing.T) {
	f := newFixture(t, "<think>Thought: 主人来了</think>{{happy}}你好{{happy}}！{{shy}}嗯")

	var events []playback.Event
	res, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{
		SessionID: f.id,
		Text:      "在吗",
	}, companion.Hooks{Event: func(e playback.Event) { events = append(events, e) }})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, playback.EventEmotion, events[0].Kind)
	assert.Equal(t, emotion.Thinking, events[0].Emotion)

	last := events[len(events)-1]
	assert.True(t, last.Persistent)
	assert.Equal(t, emotion.Happy, last.Emotion)

	assert.Equal(t, emotion.Happy, res.Outcome.Persistent)
	assert.Equal(t, "你好！嗯", res.Outcome.Revealed)
	assert.Equal(t, "Thought: 主人来了", res.Reply.Thought)
	require.Len(t, res.Reply.Trace, 1)
	assert.Equal(t, "主人来了", res.Reply.Trace[0].Content)
	assert.Equal(t, "你好！嗯", res.Reply.Content)
	assert.Equal(t, "{{happy}}你好{{happy}}！{{shy}}嗯", res.Reply.RawContent)
	assert.Equal(t, []string{"doc-1"}, res.Reply.ReferencedResources)

	messages, err := f.chats.LoadTranscript(context.Background(), f.id)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, chat.RoleAssistant, messages[1].Role)
	assert.Equal(t, string(emotion.Happy), messages[1].Emotion)

	current, err := f.svc.Emotion(context.Background(), f.id)
	require.NoError(t, err)
	assert.Equal(t, emotion.Happy, current)

	require.Len(t, f.llm.calls, 1)
	call := f.llm.calls[0]
	assert.Equal(t, "在吗", call.Prompt)
	assert.Empty(t, call.History)
	assert.Equal(t, "core", call.MemoryContext)
	assert.Equal(t, "<document>", call.ResourceContext)
	assert.Equal(t, "主人", call.UserName)

	assert.Equal(t, []string{"在吗|你好！嗯"}, f.memory.appended)
}

func TestHandleTurnPassesHistoryWithoutCurrentMessage(t *testing.T) {
	f := newFixture(t, "{{smile}}好")
	ctx := context.Background()

	_, err := f.svc.HandleTurn(ctx, companion.TurnRequest{SessionID: f.id, Text: "一"}, companion.Hooks{})
	require.NoError(t, err)
	_, err = f.svc.HandleTurn(ctx, companion.TurnRequest{SessionID: f.id, Text: "二", UserName: "秀树"}, companion.Hooks{})
	require.NoError(t, err)

	require.Len(t, f.llm.calls, 2)
	history := f.llm.calls[1].History
	require.Len(t, history, 2)
	assert.Equal(t, "一", history[0].Content)
	assert.Equal(t, "好", history[1].Content)
	assert.Equal(t, "秀树", f.llm.calls[1].UserName)
}

func TestHandleTurnAddressesUserByPersonaTerm(t *testing.T) {
	f := newFixture(t, "{{happy}}秀逗回来了！Hideki")

	res, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{
		SessionID: f.id,
		Text:      "我回来了",
		UserName:  "秀树",
	}, companion.Hooks{})
	require.NoError(t, err)

	assert.Equal(t, "主人回来了！主人", res.Reply.Content)
	require.Len(t, f.llm.calls, 1)
	assert.Equal(t, "秀树", f.llm.calls[0].UserName)
}

func TestHandleTurnModelFailure(t *testing.T) {
	f := newFixture(t, "")
	f.llm.err = errors.New("quota exceeded")

	var events []playback.Event
	_, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{SessionID: f.id, Text: "hi"},
		companion.Hooks{Event: func(e playback.Event) { events = append(events, e) }})
	require.ErrorContains(t, err, "quota exceeded")

	require.Len(t, events, 2)
	assert.Equal(t, emotion.Thinking, events[0].Emotion)
	assert.Equal(t, emotion.Sad, events[1].Emotion)

	messages, err := f.chats.LoadTranscript(context.Background(), f.id)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleSystem, messages[1].Role)
	assert.Equal(t, "Error: quota exceeded", messages[1].Content)
	assert.Empty(t, f.memory.appended)
}

func TestHandleTurnRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t, "x")
	_, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{SessionID: f.id, Text: "  "}, companion.Hooks{})
	assert.ErrorIs(t, err, companion.ErrEmptyMessage)
}

func TestHandleTurnUnknownSession(t *testing.T) {
	f := newFixture(t, "x")
	_, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{SessionID: "missing", Text: "hi"}, companion.Hooks{})
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)
}

func TestHandleTurnSerializesSession(t *testing.T) {
	f := newFixture(t, "{{happy}}好")
	f.llm.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{SessionID: f.id, Text: "一"}, companion.Hooks{})
		done <- err
	}()

	require.Eventually(t, func() bool {
		f.llm.mu.Lock()
		defer f.llm.mu.Unlock()
		return len(f.llm.calls) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{SessionID: f.id, Text: "二"}, companion.Hooks{})
	assert.ErrorIs(t, err, companion.ErrTurnInProgress)

	close(f.llm.gate)
	require.NoError(t, <-done)
}

func TestHandleTurnSpeaksWithVoice(t *testing.T) {
	var chunks []speechmodel.AudioChunk
	factory := func(sessionID, voice string, sink func(speechmodel.AudioChunk) error) playback.Speaker {
		return playback.SpeakerFunc(func(ctx context.Context, u playback.Utterance) error {
			if err := sink(speechmodel.AudioChunk{SessionID: sessionID, Audio: []byte(u.Text)}); err != nil {
				return err
			}
			u.Started()
			return nil
		})
	}
	f := newFixture(t, "{{happy}}你好", companion.WithVoice(factory))
	require.True(t, f.svc.VoiceEnabled())

	var speaking []bool
	res, err := f.svc.HandleTurn(context.Background(), companion.TurnRequest{SessionID: f.id, Text: "hi", Voice: true}, companion.Hooks{
		Event: func(e playback.Event) {
			if e.Kind == playback.EventSpeaking {
				speaking = append(speaking, e.Speaking)
			}
		},
		Audio: func(c speechmodel.AudioChunk) error {
			chunks = append(chunks, c)
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, speaking)
	require.Len(t, chunks, 1)
	assert.Equal(t, "你好", string(chunks[0].Audio))
	assert.Equal(t, "你好", res.Outcome.Revealed)
}

func TestReplay(t *testing.T) {
	f := newFixture(t, "{{shy}}嗯{{happy}}好的{{shy}}")
	ctx := context.Background()

	res, err := f.svc.HandleTurn(ctx, companion.TurnRequest{SessionID: f.id, Text: "hi"}, companion.Hooks{})
	require.NoError(t, err)
	require.NoError(t, f.svc.SetEmotion(ctx, f.id, emotion.Sad))

	var revealed string
	outcome, err := f.svc.Replay(ctx, f.id, res.Reply.ID, false, companion.Hooks{Event: func(e playback.Event) {
		if e.Kind == playback.EventReveal {
			revealed += e.Text
		}
	}})
	require.NoError(t, err)
	assert.Equal(t, "嗯好的", revealed)
	assert.Equal(t, emotion.Shy, outcome.Persistent)

	_, err = f.svc.Replay(ctx, f.id, res.User.ID, false, companion.Hooks{})
	assert.ErrorIs(t, err, companion.ErrNotReplayable)
}

func TestSetEmotion(t *testing.T) {
	f := newFixture(t, "x")
	ctx := context.Background()

	require.NoError(t, f.svc.SetEmotion(ctx, f.id, "{{Curious}}"))
	got, err := f.svc.Emotion(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, emotion.Curious, got)

	assert.ErrorIs(t, f.svc.SetEmotion(ctx, f.id, "dancing"), companion.ErrUnknownEmotion)
	assert.ErrorIs(t, f.svc.SetEmotion(ctx, "missing", emotion.Happy), chatservice.ErrSessionNotFound)
}
