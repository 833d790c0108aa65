package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModularProvider_OpenRejected(t *testing.T) {
	p := NewModularProvider("deepgram+anthropic+elevenlabs", Capabilities{})
	_, err := p.Open(context.Background(), "call-1", "", nil)
	assert.Error(t, err)
}

func TestNewModularProvider_ForcesNonFullAgent(t *testing.T) {
	p := NewModularProvider("modular", Capabilities{FullAgent: true})
	assert.False(t, p.Capabilities().FullAgent)
}

func TestSttConfigFromCapabilities_UsesFirstRateAndEncoding(t *testing.T) {
	caps := Capabilities{IngressEncodings: []string{"pcm", "opus"}, IngressRatesHz: []int{16000, 8000}}
	cfg := sttConfigFromCapabilities(caps)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, "pcm", cfg.Encoding)
	assert.Equal(t, 1, cfg.Channels)
	assert.True(t, cfg.EnablePunctuation)
}

func TestTtsConfigFromCapabilities_UsesFirstRateAndEncoding(t *testing.T) {
	caps := Capabilities{EgressEncodings: []string{"mp3"}, EgressRatesHz: []int{22050}}
	cfg := ttsConfigFromCapabilities(caps)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, "mp3", cfg.OutputFormat)
	assert.Equal(t, 1.0, cfg.Speed)
}

func TestToolSpecsFromCatalog_Adapts(t *testing.T) {
	catalog := []ToolCatalogEntry{{Name: "transfer_call", Description: "transfer", Parameters: map[string]any{"destination": "string"}}}
	specs := ToolSpecsFromCatalog(catalog)
	require.Len(t, specs, 1)
	assert.Equal(t, "transfer_call", specs[0].Name)
	assert.Equal(t, "transfer", specs[0].Description)
}
