package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWireEvent_ToEventMapsKnownTypes(t *testing.T) {
	cases := []struct {
		wireType string
		want     EventKind
	}{
		{"partial_transcript", KindPartialTranscript},
		{"final_transcript", KindFinalTranscript},
		{"assistant_text", KindAssistantText},
		{"assistant_audio", KindAssistantAudio},
		{"assistant_audio_done", KindAssistantAudioDone},
		{"tool_call", KindToolCall},
		{"something_unrecognized", KindError},
	}
	for _, c := range cases {
		ev := wireEvent{Type: c.wireType, Transcript: "t"}.toEvent()
		assert.Equal(t, c.want, ev.Kind)
	}
}

func TestWireEvent_ToEventCarriesPayloadFields(t *testing.T) {
	w := wireEvent{
		Type: "assistant_audio", Audio: []byte{1, 2, 3}, Encoding: "pcm16", RateHz: 8000,
	}
	ev := w.toEvent()
	assert.Equal(t, []byte{1, 2, 3}, ev.Audio)
	assert.Equal(t, "pcm16", ev.Encoding)
	assert.Equal(t, 8000, ev.RateHz)
}

func TestNewFullAgentProvider_AdvertisesFullAgentCapability(t *testing.T) {
	p := NewFullAgentProvider("openai-realtime", "wss://example.invalid/realtime", Capabilities{})
	assert.True(t, p.Capabilities().FullAgent)
	assert.Equal(t, "openai-realtime", p.Name())
}
