package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/omnivoice-core/coordinator"
	"github.com/agentplexus/omnivoice-core/llm"
	"github.com/agentplexus/omnivoice-core/session"
	"github.com/agentplexus/omnivoice-core/stt"
	"github.com/agentplexus/omnivoice-core/tool"
	"github.com/agentplexus/omnivoice-core/tts"
)

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

type fakeSTTProvider struct {
	events chan stt.StreamEvent
}

func (f *fakeSTTProvider) Name() string { return "fake" }
func (f *fakeSTTProvider) Transcribe(ctx context.Context, audio []byte, cfg stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return nil, nil
}
func (f *fakeSTTProvider) TranscribeFile(ctx context.Context, path string, cfg stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return nil, nil
}
func (f *fakeSTTProvider) TranscribeURL(ctx context.Context, url string, cfg stt.TranscriptionConfig) (*stt.TranscriptionResult, error) {
	return nil, nil
}
func (f *fakeSTTProvider) TranscribeStream(ctx context.Context, cfg stt.TranscriptionConfig) (io.WriteCloser, <-chan stt.StreamEvent, error) {
	return nopWriteCloser{}, f.events, nil
}

type fakeLLMProvider struct {
	respond func(req llm.Request) (*llm.Response, error)
}

func (f *fakeLLMProvider) Name() string { return "fake" }
func (f *fakeLLMProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return f.respond(req)
}
func (f *fakeLLMProvider) CompleteStream(ctx context.Context, req llm.Request) (<-chan llm.StreamDelta, error) {
	return nil, nil
}

type fakeTTSProvider struct{}

func (f *fakeTTSProvider) Name() string { return "fake" }
func (f *fakeTTSProvider) Synthesize(ctx context.Context, text string, cfg tts.SynthesisConfig) (*tts.SynthesisResult, error) {
	return nil, nil
}
func (f *fakeTTSProvider) SynthesizeStream(ctx context.Context, text string, cfg tts.SynthesisConfig) (<-chan tts.StreamChunk, error) {
	ch := make(chan tts.StreamChunk, 2)
	ch <- tts.StreamChunk{Audio: []byte{1, 2, 3}}
	ch <- tts.StreamChunk{IsFinal: true}
	close(ch)
	return ch, nil
}
func (f *fakeTTSProvider) ListVoices(ctx context.Context) ([]tts.Voice, error) { return nil, nil }
func (f *fakeTTSProvider) GetVoice(ctx context.Context, id string) (*tts.Voice, error) {
	return nil, nil
}

type fakeEgress struct {
	gate       coordinator.Gate
	sentChunks [][]byte
	doneCalls  int
}

func (f *fakeEgress) SendAssistantAudio(ctx context.Context, chunk []byte, encoding string, rateHz int) error {
	f.sentChunks = append(f.sentChunks, chunk)
	return nil
}
func (f *fakeEgress) AssistantAudioDone(ctx context.Context) { f.doneCalls++ }
func (f *fakeEgress) EvaluateIngress(pcm16 []int16)          {}
func (f *fakeEgress) Gate() coordinator.Gate                 { return f.gate }

func newTestOrchestrator(t *testing.T, events chan stt.StreamEvent, llmProvider *fakeLLMProvider, executor *tool.Executor) (*Orchestrator, *session.Call, *fakeEgress) {
	sess := session.NewCall(context.Background(), "call-1")
	egress := &fakeEgress{gate: coordinator.GateOpen}

	o := New(Config{
		Call:         sess,
		Egress:       egress,
		STT:          stt.NewClient(&fakeSTTProvider{events: events}),
		LLM:          llm.NewClient(llmProvider),
		TTS:          tts.NewClient(&fakeTTSProvider{}),
		Executor:     executor,
		ToolMode:     llm.ToolCallCompatible,
		SystemPrompt: "be helpful",
	})
	return o, sess, egress
}

func TestOrchestrator_FinalTranscriptDrivesSpeakAndHistory(t *testing.T) {
	events := make(chan stt.StreamEvent, 1)
	llmProvider := &fakeLLMProvider{
		respond: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{Text: "hello there"}, nil
		},
	}
	exec := tool.NewExecutor(tool.NewRegistry())
	o, sess, egress := newTestOrchestrator(t, events, llmProvider, exec)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	events <- stt.StreamEvent{Type: stt.EventTranscript, IsFinal: true, Transcript: "hi"}
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("orchestrator did not finish in time")
	}

	history := sess.History()
	require.Len(t, history, 3) // system, user, assistant
	assert.Equal(t, llm.RoleUser, history[1].Role)
	assert.Equal(t, "hi", history[1].Content)
	assert.Equal(t, llm.RoleAssistant, history[2].Role)
	assert.Equal(t, "hello there", history[2].Content)

	assert.Equal(t, 1, egress.doneCalls)
	assert.Equal(t, [][]byte{{1, 2, 3}}, egress.sentChunks)
}

func TestOrchestrator_ToolDispatchBoundedByMaxReinvocations(t *testing.T) {
	events := make(chan stt.StreamEvent, 1)
	calls := 0
	llmProvider := &fakeLLMProvider{
		respond: func(req llm.Request) (*llm.Response, error) {
			calls++
			return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "noop"}}}, nil
		},
	}
	execCalls := 0
	reg := tool.NewRegistry()
	reg.Load([]tool.Definition{{
		Name: "noop",
		Execute: func(ctx context.Context, args map[string]any) (tool.Result, error) {
			execCalls++
			return tool.Result{Status: tool.StatusSuccess}, nil
		},
	}})
	exec := tool.NewExecutor(reg)
	o, _, _ := newTestOrchestrator(t, events, llmProvider, exec)
	o.maxReinvocations = 3

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	events <- stt.StreamEvent{Type: stt.EventTranscript, IsFinal: true, Transcript: "do the thing"}
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("orchestrator did not finish in time")
	}

	assert.Equal(t, 3, execCalls)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_HandleBargeInCancelsActivePlayback(t *testing.T) {
	events := make(chan stt.StreamEvent)
	llmProvider := &fakeLLMProvider{respond: func(req llm.Request) (*llm.Response, error) { return &llm.Response{}, nil }}
	exec := tool.NewExecutor(tool.NewRegistry())
	o, sess, _ := newTestOrchestrator(t, events, llmProvider, exec)

	p, err := sess.Playbacks.Allocate(0)
	require.NoError(t, err)
	require.NoError(t, sess.Playbacks.MarkStarted(p))

	o.HandleBargeIn()

	assert.Nil(t, sess.Playbacks.Active())
	assert.Equal(t, StateListening, o.State())
}
