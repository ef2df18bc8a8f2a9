package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mapforge/pkg/engine/retry"
	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/protocol"
)

// Anthropic drives generation through the Messages API with tool use
type Anthropic struct {
	cfg    ClientConfig
	client anthropic.Client
	retry  retry.Retrier
	tools  []anthropic.ToolUnionParam
}

func withAnthropicDefaults(cfg ClientConfig) (ClientConfig, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAnthropicEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.APIKey == "" {
		return cfg, world.Errorf(world.KindExternalService, "anthropic backend needs an API key")
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return cfg, nil
}

func newAnthropicClient(cfg ClientConfig) anthropic.Client {
	return anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.Endpoint),
		option.WithHTTPClient(httpClient(cfg)),
		option.WithRequestTimeout(requestTimeout(cfg)),
		option.WithMaxRetries(0),
	)
}

// NewAnthropic returns an Anthropic generator; an API key is required
func NewAnthropic(cfg ClientConfig) (*Anthropic, error) {
	cfg, err := withAnthropicDefaults(cfg)
	if err != nil {
		return nil, err
	}
	return &Anthropic{
		cfg:    cfg,
		client: newAnthropicClient(cfg),
		retry:  newRetrier(cfg),
		tools:  anthropicTools(),
	}, nil
}

// Name returns the backend name
func (a *Anthropic) Name() string {
	return ProviderAnthropic + ":" + a.cfg.Model
}

// Step sends the whole conversation and returns the model's tool calls
func (a *Anthropic) Step(ctx context.Context, conv *Conversation) (Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   int64(a.cfg.MaxTokens),
		Temperature: anthropic.Float(a.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages:    anthropicMessages(conv),
		Tools:       a.tools,
	}
	msg, err := sendMessage(ctx, a.client, a.retry, params)
	if err != nil {
		return Reply{}, err
	}

	var reply Reply
	var text []string
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			text = append(text, b.Text)
		case "tool_use":
			reply.Calls = append(reply.Calls, protocol.Call{ID: b.ID, Name: b.Name, Args: b.Input})
		}
	}
	reply.Text = strings.Join(text, "\n")
	return reply, nil
}

func sendMessage(ctx context.Context, client anthropic.Client, r retry.Retrier, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var msg *anthropic.Message
	err := r.Do(ctx, func(ctx context.Context) error {
		m, err := client.Messages.New(ctx, params)
		if err != nil {
			return classify(ctx, ProviderAnthropic, err)
		}
		msg = m
		return nil
	})
	return msg, err
}

// anthropicTools converts the protocol tool specs into SDK tool params
func anthropicTools() []anthropic.ToolUnionParam {
	specs := protocol.Tools()
	out := make([]anthropic.ToolUnionParam, len(specs))
	for i, s := range specs {
		schema := anthropic.ToolInputSchemaParam{Properties: s.InputSchema["properties"]}
		if req, ok := s.InputSchema["required"].([]string); ok {
			schema.Required = req
		}
		for k, v := range s.InputSchema {
			switch k {
			case "type", "properties", "required":
			default:
				if schema.ExtraFields == nil {
					schema.ExtraFields = make(map[string]any)
				}
				schema.ExtraFields[k] = v
			}
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: schema,
		}}
	}
	return out
}

// toolInput decodes recorded call arguments; anything that is not an
// object is sent as an empty one
func toolInput(raw json.RawMessage) map[string]any {
	var in map[string]any
	if err := json.Unmarshal(raw, &in); err != nil || in == nil {
		return map[string]any{}
	}
	return in
}

// anthropicMessages replays the conversation as alternating turns. Tool
// results and runner feedback share the user turn that follows the calls.
func anthropicMessages(conv *Conversation) []anthropic.MessageParam {
	msgs := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(UserPrompt(conv.Prompt, conv.Width, conv.Height))),
	}
	for _, ex := range conv.Exchanges {
		var out []anthropic.ContentBlockParamUnion
		if ex.Text != "" {
			out = append(out, anthropic.NewTextBlock(ex.Text))
		}
		for _, c := range ex.Calls {
			out = append(out, anthropic.NewToolUseBlock(c.ID, toolInput(c.Args), c.Name))
		}
		if len(out) == 0 {
			out = append(out, anthropic.NewTextBlock("Done."))
		}
		msgs = append(msgs, anthropic.NewAssistantMessage(out...))

		var in []anthropic.ContentBlockParamUnion
		for i, res := range ex.Results {
			if i >= len(ex.Calls) {
				break
			}
			in = append(in, anthropic.NewToolResultBlock(ex.Calls[i].ID, res.JSON(), !res.OK))
		}
		if ex.Feedback != "" {
			in = append(in, anthropic.NewTextBlock(ex.Feedback))
		}
		if len(in) > 0 {
			msgs = append(msgs, anthropic.NewUserMessage(in...))
		}
	}
	return msgs
}

// AnthropicJudge grades maps with a single Messages API call
type AnthropicJudge struct {
	cfg    ClientConfig
	client anthropic.Client
	retry  retry.Retrier
}

// NewAnthropicJudge returns a judge backed by the Messages API
func NewAnthropicJudge(cfg ClientConfig) (*AnthropicJudge, error) {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	cfg, err := withAnthropicDefaults(cfg)
	if err != nil {
		return nil, err
	}
	return &AnthropicJudge{cfg: cfg, client: newAnthropicClient(cfg), retry: newRetrier(cfg)}, nil
}

// Name returns the judge name
func (j *AnthropicJudge) Name() string {
	return ProviderAnthropic + ":" + j.cfg.Model
}

// Judge returns the raw reply text for a rendered map
func (j *AnthropicJudge) Judge(ctx context.Context, prompt, rendering string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(j.cfg.Model),
		MaxTokens:   int64(j.cfg.MaxTokens),
		Temperature: anthropic.Float(j.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: JudgeSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(JudgePrompt(prompt, rendering))),
		},
	}
	msg, err := sendMessage(ctx, j.client, j.retry, params)
	if err != nil {
		return "", err
	}
	var text []string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text = append(text, b.Text)
		}
	}
	if len(text) == 0 {
		return "", world.Errorf(world.KindExternalService, "judge reply had no text")
	}
	return strings.Join(text, "\n"), nil
}
