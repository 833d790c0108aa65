package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/omnivoice-core/profile"
)

func sampleDocument() Document {
	return Document{
		Providers: []ProviderSpec{
			{Name: "deepgram", Kind: ProviderModular, STT: "deepgram", LLM: "x", TTS: "x"},
			{Name: "realtime", Kind: ProviderFullAgent, Endpoint: "wss://example/rt"},
		},
		Pipelines: []PipelineSpec{
			{Name: "default", STT: "deepgram", LLM: "deepgram", TTS: "deepgram"},
		},
		AudioProfiles: []profile.Capability{
			{Name: "narrowband", InternalRateHz: 8000, IngressEncoding: "ulaw", IngressRateHz: 8000, EgressEncoding: "ulaw", EgressRateHz: 8000, ChunkDurationMs: 20, TransportEncoding: "ulaw"},
		},
		Contexts: []ContextSpec{
			{Name: "main", Pipeline: "default", SystemPrompt: "be helpful", Greeting: "hi", AudioProfile: "narrowband"},
		},
		Tools: []ToolSpec{
			{Name: "hangup_call", Kind: ToolBuiltIn, BuiltinName: "hangup_call"},
		},
		Telephony: TelephonySpec{
			Transport: "rtp", AdvertiseHost: "203.0.113.5", BaseURL: "http://127.0.0.1:8088/ari",
			Username: "u", Password: "p", AppName: "omnivoice",
		},
		MaxActiveCalls: 64,
	}
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, Validate(sampleDocument()))
}

func TestValidate_UnknownPipelineReference(t *testing.T) {
	d := sampleDocument()
	d.Contexts[0].Pipeline = "missing"
	err := Validate(d)
	require.Error(t, err)
}

func TestValidate_ModularShapeRejectsEndpoint(t *testing.T) {
	d := sampleDocument()
	d.Providers[0].Endpoint = "wss://oops"
	err := Validate(d)
	require.Error(t, err)
}

func TestValidate_FullAgentShapeRequiresEndpoint(t *testing.T) {
	d := sampleDocument()
	d.Providers[1].Endpoint = ""
	err := Validate(d)
	require.Error(t, err)
}

func TestDiff_IdempotentReload(t *testing.T) {
	d := sampleDocument()
	assert.Empty(t, Diff(d, d))
}

func TestDiff_DetectsProviderUpdate(t *testing.T) {
	prev := sampleDocument()
	next := sampleDocument()
	next.Providers[0].STT = "whisper-local"

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeUpdated, changes[0].Kind)
	assert.Equal(t, "providers.deepgram", changes[0].Path)
}

func TestDiff_DetectsContextAddedAndRemoved(t *testing.T) {
	prev := sampleDocument()
	next := sampleDocument()
	next.Contexts = append(next.Contexts, ContextSpec{
		Name: "overflow", Pipeline: "default", SystemPrompt: "x", Greeting: "x", AudioProfile: "narrowband",
	})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeAdded, changes[0].Kind)
	assert.Equal(t, "contexts.overflow", changes[0].Path)

	reverted := Diff(next, prev)
	require.Len(t, reverted, 1)
	assert.Equal(t, ChangeRemoved, reverted[0].Kind)
}
