package provider

import (
	"context"
	"fmt"

	"github.com/agentplexus/omnivoice-core/llm"
	"github.com/agentplexus/omnivoice-core/stt"
	"github.com/agentplexus/omnivoice-core/tts"
)

// ModularProvider reports the capability set for a composed
// STT+LLM+TTS pipeline. Unlike the full-agent and local
// shapes, a modular pipeline's capability set is the profile negotiator's
// job to combine from its three legs, not to self-report; ModularProvider
// exists mainly so a modular pipeline can be registered and selected
// alongside the other two shapes through the uniform Provider interface.
type ModularProvider struct {
	name string
	caps Capabilities
}

// NewModularProvider names and advertises a composed pipeline. caps should
// reflect the intersection of the configured STT/TTS adapters' encodings
// and rates — computed once at config-load time, not per call.
func NewModularProvider(name string, caps Capabilities) *ModularProvider {
	caps.FullAgent = false
	return &ModularProvider{name: name, caps: caps}
}

func (m *ModularProvider) Name() string             { return m.name }
func (m *ModularProvider) Capabilities() Capabilities { return m.caps }

// Open is not used for the modular shape: the Pipeline Orchestrator is
// constructed directly from stt.Client/llm.Client/tts.Client rather than
// through the generic Handle, since the richer per-leg interfaces (word
// timestamps, voice selection, tool-call parsing) carry information Handle
// intentionally erases for the other two shapes. Callers of the modular
// shape should build a pipeline.Orchestrator instead of calling Open.
func (m *ModularProvider) Open(ctx context.Context, callID, systemPrompt string, toolCatalog []ToolCatalogEntry) (Handle, error) {
	return nil, fmt.Errorf("provider: modular shape %q is driven by pipeline.Orchestrator, not Handle.Open", m.name)
}

// sttConfigFromCapabilities and ttsConfigFromCapabilities let a caller that
// only holds Capabilities (e.g. config-driven wiring) derive the per-leg
// config structs without duplicating the negotiated rate/encoding.
func sttConfigFromCapabilities(c Capabilities) stt.TranscriptionConfig {
	cfg := stt.TranscriptionConfig{EnablePunctuation: true}
	if len(c.IngressRatesHz) > 0 {
		cfg.SampleRate = c.IngressRatesHz[0]
	}
	if len(c.IngressEncodings) > 0 {
		cfg.Encoding = c.IngressEncodings[0]
	}
	cfg.Channels = 1
	return cfg
}

func ttsConfigFromCapabilities(c Capabilities) tts.SynthesisConfig {
	cfg := tts.SynthesisConfig{Speed: 1.0}
	if len(c.EgressRatesHz) > 0 {
		cfg.SampleRate = c.EgressRatesHz[0]
	}
	if len(c.EgressEncodings) > 0 {
		cfg.OutputFormat = c.EgressEncodings[0]
	}
	return cfg
}

// ToolSpecsFromCatalog adapts the uniform ToolCatalogEntry slice to the
// llm package's ToolSpec shape used by llm.Request.
func ToolSpecsFromCatalog(catalog []ToolCatalogEntry) []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(catalog))
	for _, c := range catalog {
		out = append(out, llm.ToolSpec{Name: c.Name, Description: c.Description, Parameters: c.Parameters})
	}
	return out
}
