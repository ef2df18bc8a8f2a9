package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapforge/pkg/engine/retry"
	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/protocol"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testClient(url string) ClientConfig {
	return ClientConfig{
		Endpoint: url,
		APIKey:   "test-key",
		Retry:    retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
		Sleep:    noSleep,
	}
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// wire shapes of the Messages API as the server sees them
type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	System   []wireBlock   `json:"system"`
	Messages []wireMessage `json:"messages"`
	Tools    []struct {
		Name        string         `json:"name"`
		InputSchema map[string]any `json:"input_schema"`
	} `json:"tools"`
}

func TestAnthropicStep(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, `{"id":"msg_1","type":"message","role":"assistant","stop_reason":"tool_use","content":[
			{"type":"text","text":"Starting with the grid."},
			{"type":"tool_use","id":"toolu_1","name":"create_grid","input":{"width":20,"height":15}}]}`)
	}))
	defer srv.Close()

	gen, err := NewAnthropic(testClient(srv.URL))
	require.NoError(t, err)
	reply, err := gen.Step(context.Background(), &Conversation{Prompt: "a goblin", Width: 20, Height: 15})
	require.NoError(t, err)

	assert.Equal(t, "Starting with the grid.", reply.Text)
	require.Len(t, reply.Calls, 1)
	assert.Equal(t, "toolu_1", reply.Calls[0].ID)
	assert.Equal(t, protocol.OpCreateGrid, reply.Calls[0].Name)
	assert.JSONEq(t, `{"width":20,"height":15}`, string(reply.Calls[0].Args))

	assert.Equal(t, DefaultAnthropicModel, got.Model)
	require.Len(t, got.System, 1)
	assert.Equal(t, SystemPrompt, got.System[0].Text)
	require.Len(t, got.Tools, len(protocol.Tools()))
	assert.Equal(t, protocol.OpCreateGrid, got.Tools[0].Name)
	assert.Equal(t, "object", got.Tools[0].InputSchema["type"])
	assert.Equal(t, false, got.Tools[0].InputSchema["additionalProperties"])
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content[0].Text, `"a goblin"`)
}

func TestAnthropicMessages(t *testing.T) {
	conv := &Conversation{Prompt: "p", Width: 20, Height: 15, Exchanges: []Exchange{
		{
			Calls:    []protocol.Call{{ID: "t1", Name: protocol.OpFinalize}},
			Results:  []protocol.Result{{CallID: "t1", Op: protocol.OpFinalize, OK: false, Message: "no player"}},
			Feedback: "place a player",
		},
		{},
	}}
	data, err := json.Marshal(anthropicMessages(conv))
	require.NoError(t, err)
	var msgs []wireMessage
	require.NoError(t, json.Unmarshal(data, &msgs))
	require.Len(t, msgs, 4)

	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "tool_use", msgs[1].Content[0].Type)
	assert.JSONEq(t, `{}`, string(msgs[1].Content[0].Input))

	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "tool_result", msgs[2].Content[0].Type)
	assert.Equal(t, "t1", msgs[2].Content[0].ToolUseID)
	assert.True(t, msgs[2].Content[0].IsError)
	assert.Equal(t, "place a player", msgs[2].Content[1].Text)

	assert.Equal(t, "assistant", msgs[3].Role)
	assert.Equal(t, "Done.", msgs[3].Content[0].Text)
}

func TestAnthropicRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`))
			return
		}
		writeJSON(w, `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"{\"confidence\":8}"}]}`)
	}))
	defer srv.Close()

	judge, err := NewAnthropicJudge(testClient(srv.URL))
	require.NoError(t, err)
	reply, err := judge.Judge(context.Background(), "p", "map")
	require.NoError(t, err)
	assert.Equal(t, `{"confidence":8}`, reply)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnthropicPermanentError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`))
	}))
	defer srv.Close()

	gen, err := NewAnthropic(testClient(srv.URL))
	require.NoError(t, err)
	_, err = gen.Step(context.Background(), &Conversation{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, world.ErrExternalService)
	assert.False(t, world.IsTransient(err))
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicNeedsKey(t *testing.T) {
	_, err := NewAnthropic(ClientConfig{})
	assert.ErrorIs(t, err, world.ErrExternalService)
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"busy"}` + "\n"))
	}))
	defer srv.Close()

	judge, err := NewOllamaJudge(testClient(srv.URL))
	require.NoError(t, err)
	_, err = judge.Judge(context.Background(), "p", "map")
	require.Error(t, err)
	assert.True(t, world.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmptyReplyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/x-ndjson")
			return
		}
		writeJSON(w, `{"model":"m","response":"{\"confidence\":6}","done":true}`+"\n")
	}))
	defer srv.Close()

	judge, err := NewOllamaJudge(testClient(srv.URL))
	require.NoError(t, err)
	reply, err := judge.Judge(context.Background(), "p", "map")
	require.NoError(t, err)
	assert.Equal(t, `{"confidence":6}`, reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaStep(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Stream   *bool  `json:"stream"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
		Tools   []json.RawMessage `json:"tools"`
		Options map[string]any    `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		// one line: the client reads newline-delimited JSON
		writeJSON(w, `{"model":"qwen2.5","done":true,"message":{"role":"assistant","content":"","tool_calls":[`+
			`{"function":{"name":"create_grid","arguments":{"width":20,"height":15}}},`+
			`{"function":{"name":"place_room","arguments":{"position":"center","width":6,"height":5}}}]}}`+"\n")
	}))
	defer srv.Close()

	gen, err := NewOllama(ClientConfig{Endpoint: srv.URL + "/", Model: "qwen2.5", MaxTokens: 500})
	require.NoError(t, err)
	conv := &Conversation{Prompt: "p", Width: 20, Height: 15, Exchanges: []Exchange{{
		Calls:    []protocol.Call{{ID: "x", Name: protocol.OpGetGridStatus}},
		Results:  []protocol.Result{{Op: protocol.OpGetGridStatus, OK: true}},
		Feedback: "keep going",
	}}}
	reply, err := gen.Step(context.Background(), conv)
	require.NoError(t, err)

	require.Len(t, reply.Calls, 2)
	assert.Equal(t, "ollama_2_1", reply.Calls[0].ID)
	assert.Equal(t, protocol.OpPlaceRoom, reply.Calls[1].Name)
	assert.JSONEq(t, `{"position":"center","width":6,"height":5}`, string(reply.Calls[1].Args))

	assert.Equal(t, "qwen2.5", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.Equal(t, 500.0, got.Options["num_predict"])
	assert.Len(t, got.Tools, len(protocol.Tools()))
	roles := make([]string, len(got.Messages))
	for i, m := range got.Messages {
		roles[i] = m.Role
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "user"}, roles)
}

func TestOllamaJudge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req struct {
			Prompt  string         `json:"prompt"`
			System  string         `json:"system"`
			Options map[string]any `json:"options"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Prompt, "Original request")
		assert.Equal(t, JudgeSystemPrompt, req.System)
		assert.Equal(t, 0.3, req.Options["temperature"])
		writeJSON(w, `{"model":"m","response":"{\"matches_request\":true,\"confidence\":7}","done":true}`+"\n")
	}))
	defer srv.Close()

	judge, err := NewOllamaJudge(ClientConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	reply, err := judge.Judge(context.Background(), "p", "map")
	require.NoError(t, err)
	assert.Contains(t, reply, `"confidence":7`)
}

func TestOllamaToolConversion(t *testing.T) {
	tools, err := ollamaTools()
	require.NoError(t, err)
	require.Len(t, tools, len(protocol.Tools()))
	for i, spec := range protocol.Tools() {
		assert.Equal(t, "function", tools[i].Type)
		assert.Equal(t, spec.Name, tools[i].Function.Name)
	}
}

func TestCancelledRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	gen, err := NewOllama(testClient(srv.URL))
	require.NoError(t, err)
	_, err = gen.Step(ctx, &Conversation{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
