// Package config models the validated, in-memory configuration document
// the engine consumes: providers, pipelines, contexts, audio profiles,
// tools, and telephony transport selection. Loading YAML from disk is
// explicitly out of scope; callers decode into Document with
// gopkg.in/yaml.v3 and pass the result to Validate.
package config

import (
	"fmt"

	"github.com/agentplexus/omnivoice-core/profile"
)

// ProviderKind tags which of the three provider shapes a ProviderSpec
// describes.
type ProviderKind string

const (
	ProviderModular   ProviderKind = "modular"
	ProviderFullAgent ProviderKind = "full_agent"
	ProviderLocal     ProviderKind = "local"
)

// ProviderSpec is a tagged-variant shape: Modular{stt,llm,tts,opts} |
// FullAgent{name,opts} | Local{...}. Only the fields relevant to Kind are
// expected to be populated; Validate enforces this.
type ProviderSpec struct {
	Name string       `yaml:"name"`
	Kind ProviderKind `yaml:"kind"`

	// Modular fields.
	STT string `yaml:"stt,omitempty"`
	LLM string `yaml:"llm,omitempty"`
	TTS string `yaml:"tts,omitempty"`

	// FullAgent/Local fields.
	Endpoint string `yaml:"endpoint,omitempty"`

	Options map[string]any `yaml:"options,omitempty"`
}

// ToolKind tags which ToolSpec variant a tool entry describes.
type ToolKind string

const (
	ToolBuiltIn ToolKind = "builtin"
	ToolHTTP    ToolKind = "http"
)

// ToolSpec is the tagged-variant shape for a configured tool:
// BuiltIn{kind,opts} | HttpTool{phase,url,method,headers,body,params,outputs}.
type ToolSpec struct {
	Name string   `yaml:"name"`
	Kind ToolKind `yaml:"kind"`

	// BuiltIn fields.
	BuiltinName string         `yaml:"builtin_name,omitempty"`
	Options     map[string]any `yaml:"options,omitempty"`

	// HTTP fields.
	Phase   string            `yaml:"phase,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
	Params  map[string]string `yaml:"params,omitempty"`
	Outputs []string          `yaml:"outputs,omitempty"`
}

// PipelineSpec names the STT+LLM+TTS provider triple a modular pipeline
// context uses, by provider name.
type PipelineSpec struct {
	Name string `yaml:"name"`
	STT  string `yaml:"stt"`
	LLM  string `yaml:"llm"`
	TTS  string `yaml:"tts"`
}

// ContextSpec binds a dialplan Stasis arg / extension to a provider or
// pipeline, a system prompt, a greeting, and an audio profile.
type ContextSpec struct {
	Name            string `yaml:"name"`
	Provider        string `yaml:"provider,omitempty"`
	Pipeline        string `yaml:"pipeline,omitempty"`
	SystemPrompt    string `yaml:"system_prompt"`
	Greeting        string `yaml:"greeting"`
	AudioProfile    string `yaml:"audio_profile"`
	HangupPolicy    string `yaml:"hangup_policy,omitempty"`
	Tools           []string `yaml:"tools,omitempty"`
}

// TelephonySpec configures the switch-facing transport.
type TelephonySpec struct {
	Transport      string `yaml:"transport"` // "rtp" or "audiosocket"
	AdvertiseHost  string `yaml:"advertise_host"`
	RTPPortMin     int    `yaml:"rtp_port_min,omitempty"`
	RTPPortMax     int    `yaml:"rtp_port_max,omitempty"`
	MohClass       string `yaml:"moh_class,omitempty"`
	BaseURL        string `yaml:"base_url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	AppName        string `yaml:"app_name"`
}

// Document is the full structured configuration document.
type Document struct {
	Providers      []ProviderSpec        `yaml:"providers"`
	Pipelines      []PipelineSpec        `yaml:"pipelines"`
	Contexts       []ContextSpec         `yaml:"contexts"`
	AudioProfiles  []profile.Capability  `yaml:"audio_profiles"`
	Tools          []ToolSpec            `yaml:"tools"`
	Telephony      TelephonySpec         `yaml:"telephony"`
	MaxActiveCalls int                   `yaml:"max_active_calls"`
}

// Validate checks a Document for internal consistency: every reference
// (context->provider/pipeline, pipeline->provider, context->audio profile)
// resolves, and every ProviderSpec/ToolSpec only populates the fields its
// Kind declares. Returns the first error found wrapped as errs.ConfigInvalid
// by the caller.
func Validate(d Document) error {
	providers := make(map[string]ProviderSpec, len(d.Providers))
	for _, p := range d.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: provider with empty name")
		}
		if _, dup := providers[p.Name]; dup {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		if err := validateProviderShape(p); err != nil {
			return err
		}
		providers[p.Name] = p
	}

	pipelines := make(map[string]PipelineSpec, len(d.Pipelines))
	for _, pl := range d.Pipelines {
		if pl.Name == "" {
			return fmt.Errorf("config: pipeline with empty name")
		}
		for _, ref := range []string{pl.STT, pl.LLM, pl.TTS} {
			if _, ok := providers[ref]; !ok {
				return fmt.Errorf("config: pipeline %q references unknown provider %q", pl.Name, ref)
			}
		}
		pipelines[pl.Name] = pl
	}

	profiles := make(map[string]bool, len(d.AudioProfiles))
	for _, ap := range d.AudioProfiles {
		profiles[ap.Name] = true
	}

	toolNames := make(map[string]bool, len(d.Tools))
	for _, t := range d.Tools {
		if t.Name == "" {
			return fmt.Errorf("config: tool with empty name")
		}
		if err := validateToolShape(t); err != nil {
			return err
		}
		toolNames[t.Name] = true
	}

	for _, c := range d.Contexts {
		if c.Name == "" {
			return fmt.Errorf("config: context with empty name")
		}
		if c.Provider == "" && c.Pipeline == "" {
			return fmt.Errorf("config: context %q names neither a provider nor a pipeline", c.Name)
		}
		if c.Provider != "" {
			if _, ok := providers[c.Provider]; !ok {
				return fmt.Errorf("config: context %q references unknown provider %q", c.Name, c.Provider)
			}
		}
		if c.Pipeline != "" {
			if _, ok := pipelines[c.Pipeline]; !ok {
				return fmt.Errorf("config: context %q references unknown pipeline %q", c.Name, c.Pipeline)
			}
		}
		if c.AudioProfile != "" && !profiles[c.AudioProfile] {
			return fmt.Errorf("config: context %q references unknown audio profile %q", c.Name, c.AudioProfile)
		}
		for _, tn := range c.Tools {
			if !toolNames[tn] {
				return fmt.Errorf("config: context %q references unknown tool %q", c.Name, tn)
			}
		}
	}

	if d.Telephony.Transport != "rtp" && d.Telephony.Transport != "audiosocket" {
		return fmt.Errorf("config: telephony.transport must be %q or %q, got %q", "rtp", "audiosocket", d.Telephony.Transport)
	}
	if d.MaxActiveCalls < 0 {
		return fmt.Errorf("config: max_active_calls must be >= 0")
	}
	return nil
}

func validateProviderShape(p ProviderSpec) error {
	switch p.Kind {
	case ProviderModular:
		if p.STT == "" || p.LLM == "" || p.TTS == "" {
			return fmt.Errorf("config: provider %q: modular shape requires stt, llm, and tts", p.Name)
		}
		if p.Endpoint != "" {
			return fmt.Errorf("config: provider %q: modular shape does not take endpoint", p.Name)
		}
	case ProviderFullAgent, ProviderLocal:
		if p.Endpoint == "" {
			return fmt.Errorf("config: provider %q: %s shape requires endpoint", p.Name, p.Kind)
		}
		if p.STT != "" || p.LLM != "" || p.TTS != "" {
			return fmt.Errorf("config: provider %q: %s shape does not take stt/llm/tts", p.Name, p.Kind)
		}
	default:
		return fmt.Errorf("config: provider %q: unknown kind %q", p.Name, p.Kind)
	}
	return nil
}

func validateToolShape(t ToolSpec) error {
	switch t.Kind {
	case ToolBuiltIn:
		if t.BuiltinName == "" {
			return fmt.Errorf("config: tool %q: builtin shape requires builtin_name", t.Name)
		}
	case ToolHTTP:
		if t.URL == "" || t.Method == "" {
			return fmt.Errorf("config: tool %q: http shape requires url and method", t.Name)
		}
	default:
		return fmt.Errorf("config: tool %q: unknown kind %q", t.Name, t.Kind)
	}
	return nil
}
