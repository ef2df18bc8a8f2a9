package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/devtools"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/store"
	"mapforge/pkg/game/verify"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, store.Storage) {
	t.Helper()
	st, err := store.NewJSONStore(filepath.Join(t.TempDir(), "maps.json"))
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(st, opts).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msg any) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, ws.WriteJSON(msg))
	var out map[string]json.RawMessage
	require.NoError(t, ws.ReadJSON(&out))
	return out
}

func msgType(m map[string]json.RawMessage) string {
	var s string
	_ = json.Unmarshal(m["type"], &s)
	return s
}

func TestRemoteSession(t *testing.T) {
	engine, err := verify.NewEngine(verify.DefaultConfig())
	require.NoError(t, err)
	srv, st := newTestServer(t, Options{Verifier: verify.NewVerifier(engine, nil, nil, nil)})
	ws := dial(t, srv)

	started := send(t, ws, ClientMessage{Type: MessageTypeStart, Prompt: devtools.SamplePrompt})
	require.Equal(t, string(MessageTypeStarted), msgType(started))
	var tools []protocol.ToolSpec
	require.NoError(t, json.Unmarshal(started["tools"], &tools))
	assert.Len(t, tools, len(protocol.Tools()))

	calls := devtools.SampleCalls()
	var last ResultMessage
	for i, c := range calls {
		c := c
		require.NoError(t, ws.WriteJSON(ClientMessage{Type: MessageTypeCall, Call: &c}))
		var res ResultMessage
		require.NoError(t, ws.ReadJSON(&res))
		require.Equal(t, MessageTypeResult, res.Type)
		require.True(t, res.Result.OK, "call %s: %s", c.ID, res.Result.Message)
		assert.Equal(t, c.ID, res.Result.CallID)
		assert.Equal(t, i+1, res.OpsUsed)
		last = res
	}

	require.NotNil(t, last.Artifact)
	assert.True(t, last.Artifact.Connected)
	require.NotNil(t, last.Verification)
	assert.Equal(t, last.Artifact.ID, last.Verification.ArtifactID)

	stored, err := st.LoadArtifact(context.Background(), last.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, last.Artifact.Tiles, stored.Tiles)
	_, err = st.LoadVerification(context.Background(), last.Artifact.ID)
	assert.NoError(t, err)

	again := send(t, ws, ClientMessage{Type: MessageTypeCall, Call: &protocol.Call{ID: "late", Name: protocol.OpPlaceDoor,
		Args: json.RawMessage(`{"position":"(1,1)"}`)}})
	var res protocol.Result
	require.NoError(t, json.Unmarshal(again["result"], &res))
	assert.False(t, res.OK)
	assert.Equal(t, "SessionFinalizedError", res.Error.Kind)
}

func TestProtocolErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{MaxOperations: 1})
	ws := dial(t, srv)

	out := send(t, ws, ClientMessage{Type: MessageTypeCall, Call: &protocol.Call{Name: protocol.OpFinalize}})
	assert.Equal(t, string(MessageTypeError), msgType(out))
	assert.JSONEq(t, `"`+CodeNoSession+`"`, string(out["code"]))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{nope")))
	var em ErrorMessage
	require.NoError(t, ws.ReadJSON(&em))
	assert.Equal(t, CodeBadMessage, em.Code)

	out = send(t, ws, ClientMessage{Type: "dance"})
	assert.Equal(t, string(MessageTypeError), msgType(out))

	send(t, ws, ClientMessage{Type: MessageTypeStart, Prompt: "x"})
	out = send(t, ws, ClientMessage{Type: MessageTypeStatus})
	assert.Equal(t, string(MessageTypeStatus), msgType(out))
	var status builder.Status
	require.NoError(t, json.Unmarshal(out["status"], &status))
	assert.False(t, status.HasGrid)

	out = send(t, ws, ClientMessage{Type: MessageTypeCall, Call: &protocol.Call{Name: protocol.OpCreateGrid,
		Args: json.RawMessage(`{"width":10,"height":10}`)}})
	assert.Equal(t, string(MessageTypeResult), msgType(out))

	out = send(t, ws, ClientMessage{Type: MessageTypeCall, Call: &protocol.Call{Name: protocol.OpGetGridStatus}})
	require.NoError(t, json.Unmarshal(out["code"], new(string)))
	assert.JSONEq(t, `"`+CodeBudget+`"`, string(out["code"]))
}

func TestMapRoutes(t *testing.T) {
	srv, st := newTestServer(t, Options{})
	a, err := devtools.BuildSample()
	require.NoError(t, err)
	require.NoError(t, st.SaveArtifact(context.Background(), a))

	resp, err := http.Get(srv.URL + "/maps")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []store.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	resp2, err := http.Get(srv.URL + "/maps/" + a.ID)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/maps/nope")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

// lockedBuffer lets the server goroutine log while the test reads
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestRestartLogsOneSessionAttr(t *testing.T) {
	var out lockedBuffer
	log := slog.New(slog.NewJSONHandler(&out, nil))
	srv, _ := newTestServer(t, Options{Log: log})
	ws := dial(t, srv)

	first := send(t, ws, ClientMessage{Type: MessageTypeStart, Prompt: "one"})
	second := send(t, ws, ClientMessage{Type: MessageTypeStart, Prompt: "two"})
	require.NotEqual(t, string(first["session_id"]), string(second["session_id"]))

	var started []string
	for _, line := range out.Lines() {
		if strings.Contains(line, `"msg":"session started"`) {
			started = append(started, line)
		}
	}
	require.Len(t, started, 2)
	for _, line := range started {
		assert.Equal(t, 1, strings.Count(line, `"session":`), line)
	}
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(started[1]), &rec))
	var id string
	require.NoError(t, json.Unmarshal(second["session_id"], &id))
	assert.Equal(t, id, rec["session"])
}
