package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"

	"mapforge/pkg/engine/retry"
	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/protocol"
)

// Ollama drives generation through a local Ollama chat endpoint
type Ollama struct {
	cfg    ClientConfig
	client *api.Client
	retry  retry.Retrier
}

func withOllamaDefaults(cfg ClientConfig) ClientConfig {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOllamaEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return cfg
}

func newOllamaClient(cfg ClientConfig) (*api.Client, error) {
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("ollama endpoint: %w", err)
	}
	return api.NewClient(base, httpClient(cfg)), nil
}

// NewOllama returns an Ollama generator
func NewOllama(cfg ClientConfig) (*Ollama, error) {
	cfg = withOllamaDefaults(cfg)
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Ollama{cfg: cfg, client: client, retry: newRetrier(cfg)}, nil
}

// Name returns the backend name
func (o *Ollama) Name() string {
	return ProviderOllama + ":" + o.cfg.Model
}

func ollamaOptions(temperature float64, maxTokens int) map[string]any {
	opts := map[string]any{"temperature": temperature}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	return opts
}

// Step sends the conversation to the chat endpoint. Ollama tool calls carry
// no id, so ids are derived from the step number.
func (o *Ollama) Step(ctx context.Context, conv *Conversation) (Reply, error) {
	tools, err := ollamaTools()
	if err != nil {
		return Reply{}, err
	}
	msgs, err := ollamaMessages(conv)
	if err != nil {
		return Reply{}, err
	}
	stream := false
	req := &api.ChatRequest{
		Model:    o.cfg.Model,
		Messages: msgs,
		Tools:    tools,
		Stream:   &stream,
		Options:  ollamaOptions(o.cfg.Temperature, o.cfg.MaxTokens),
	}

	var resp api.ChatResponse
	err = o.retry.Do(ctx, func(ctx context.Context) error {
		got := false
		err := o.client.Chat(ctx, req, func(r api.ChatResponse) error {
			resp, got = r, true
			return nil
		})
		if err != nil {
			return classify(ctx, ProviderOllama, err)
		}
		if !got {
			return emptyReply()
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Text: resp.Message.Content}
	step := len(conv.Exchanges) + 1
	for i, tc := range resp.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			return Reply{}, world.Wrap(world.KindExternalService, err, "encode %s arguments", tc.Function.Name)
		}
		reply.Calls = append(reply.Calls, protocol.Call{
			ID:   fmt.Sprintf("ollama_%d_%d", step, i+1),
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return reply, nil
}

func emptyReply() error {
	e := world.Errorf(world.KindExternalService, "%s sent an empty reply", ProviderOllama)
	e.Transient = true
	return e
}

// ollamaTools converts the protocol tool specs once; the schemas are plain
// JSON so they go through the SDK's own decoding
var ollamaTools = sync.OnceValues(func() (api.Tools, error) {
	specs := protocol.Tools()
	raw := make([]map[string]any, len(specs))
	for i, s := range specs {
		raw[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        s.Name,
				"description": s.Description,
				"parameters":  s.InputSchema,
			},
		}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode tool specs: %w", err)
	}
	var tools api.Tools
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("convert tool specs: %w", err)
	}
	return tools, nil
})

func ollamaMessages(conv *Conversation) ([]api.Message, error) {
	msgs := []api.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: UserPrompt(conv.Prompt, conv.Width, conv.Height)},
	}
	for _, ex := range conv.Exchanges {
		am := api.Message{Role: "assistant", Content: ex.Text}
		for _, c := range ex.Calls {
			var args api.ToolCallFunctionArguments
			if err := json.Unmarshal(toolArgs(c.Args), &args); err != nil {
				return nil, fmt.Errorf("replay %s arguments: %w", c.Name, err)
			}
			am.ToolCalls = append(am.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{Name: c.Name, Arguments: args},
			})
		}
		msgs = append(msgs, am)
		for _, res := range ex.Results {
			msgs = append(msgs, api.Message{Role: "tool", Content: res.JSON()})
		}
		if ex.Feedback != "" {
			msgs = append(msgs, api.Message{Role: "user", Content: ex.Feedback})
		}
	}
	return msgs, nil
}

// toolArgs re-encodes recorded arguments as an object, which is all the
// chat history accepts
func toolArgs(raw json.RawMessage) []byte {
	data, _ := json.Marshal(toolInput(raw))
	return data
}

// OllamaJudge grades maps with the generate endpoint
type OllamaJudge struct {
	cfg    ClientConfig
	client *api.Client
	retry  retry.Retrier
}

// NewOllamaJudge returns a judge backed by a local Ollama model
func NewOllamaJudge(cfg ClientConfig) (*OllamaJudge, error) {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	cfg = withOllamaDefaults(cfg)
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OllamaJudge{cfg: cfg, client: client, retry: newRetrier(cfg)}, nil
}

// Name returns the judge name
func (j *OllamaJudge) Name() string {
	return ProviderOllama + ":" + j.cfg.Model
}

// Judge returns the raw reply text for a rendered map
func (j *OllamaJudge) Judge(ctx context.Context, prompt, rendering string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   j.cfg.Model,
		Prompt:  JudgePrompt(prompt, rendering),
		System:  JudgeSystemPrompt,
		Stream:  &stream,
		Options: ollamaOptions(j.cfg.Temperature, 0),
	}
	var out strings.Builder
	err := j.retry.Do(ctx, func(ctx context.Context) error {
		out.Reset()
		got := false
		err := j.client.Generate(ctx, req, func(r api.GenerateResponse) error {
			out.WriteString(r.Response)
			got = true
			return nil
		})
		if err != nil {
			return classify(ctx, ProviderOllama, err)
		}
		if !got {
			return emptyReply()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
