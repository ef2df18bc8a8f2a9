// Package agent drives map construction sessions. A Generator proposes
// tool calls for a prompt; the Runner applies them to a session in order,
// feeds results and corrective feedback back, and enforces the operation
// budget. Backends: procedural (offline BSP layout), anthropic, ollama and
// script (recorded calls).
package agent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"mapforge/pkg/engine/retry"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/verify"
)

// Exchange is one round trip: what the agent said and called, what came back,
// and any feedback the runner appended
type Exchange struct {
	Text     string            `json:"text,omitempty"`
	Calls    []protocol.Call   `json:"calls,omitempty"`
	Results  []protocol.Result `json:"results,omitempty"`
	Feedback string            `json:"feedback,omitempty"`
}

// Conversation is everything a generator may look at when asked for its
// next step
type Conversation struct {
	Prompt    string     `json:"prompt"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Exchanges []Exchange `json:"exchanges,omitempty"`
}

// Reply is a generator's answer for one step. No calls means the agent
// considers itself done.
type Reply struct {
	Text  string
	Calls []protocol.Call
}

// Generator proposes the next tool calls for a conversation
type Generator interface {
	Name() string
	Step(ctx context.Context, conv *Conversation) (Reply, error)
}

// Provider names
const (
	ProviderProcedural = "procedural"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
	ProviderScript     = "script"
	ProviderDSL        = "dsl"
	ProviderFile       = "file"
	ProviderNone       = "none"
)

// ClientConfig configures the HTTP language model backends
type ClientConfig struct {
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Policy

	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
	// Sleep overrides the retry wait, mainly for tests
	Sleep retry.SleepFunc
}

// Default endpoints
const (
	DefaultAnthropicEndpoint = "https://api.anthropic.com"
	DefaultAnthropicModel    = "claude-3-5-sonnet-latest"
	DefaultOllamaEndpoint    = "http://localhost:11434"
	DefaultOllamaModel       = "llama3.1"
)

// Options selects and configures a generator
type Options struct {
	Provider    string
	Client      ClientConfig
	Seed        int64
	ScriptPath  string
	ProgramPath string
}

// NewGenerator builds the generator named by opts.Provider
func NewGenerator(opts Options) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderProcedural:
		return NewProcedural(opts.Seed), nil
	case ProviderAnthropic:
		g, err := NewAnthropic(opts.Client)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOllama:
		g, err := NewOllama(opts.Client)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderScript:
		if opts.ScriptPath == "" {
			return nil, fmt.Errorf("script provider needs a script path")
		}
		f, err := os.Open(opts.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		s, err := LoadScript(f)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProviderDSL:
		if opts.ProgramPath == "" {
			return nil, fmt.Errorf("dsl provider needs a program path")
		}
		f, err := os.Open(opts.ProgramPath)
		if err != nil {
			return nil, fmt.Errorf("open program: %w", err)
		}
		defer f.Close()
		d, err := LoadDSL(f)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", opts.Provider)
	}
}

// NewJudge builds the judge named by provider; "none" and "" return nil
func NewJudge(provider string, cfg ClientConfig, judgmentPath string) (verify.Judge, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderAnthropic:
		j, err := NewAnthropicJudge(cfg)
		if err != nil {
			return nil, err
		}
		return j, nil
	case ProviderOllama:
		j, err := NewOllamaJudge(cfg)
		if err != nil {
			return nil, err
		}
		return j, nil
	case ProviderFile:
		if judgmentPath == "" {
			return nil, fmt.Errorf("file judge needs a judgment path")
		}
		return verify.FileJudge{Path: judgmentPath}, nil
	default:
		return nil, fmt.Errorf("unknown verification provider %q", provider)
	}
}
