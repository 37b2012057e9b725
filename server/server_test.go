package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/model"
	"github.com/hupe1980/agentd/progress"
	"github.com/hupe1980/agentd/runner"
	"github.com/hupe1980/agentd/session"
	"github.com/hupe1980/agentd/tool"
)

type fixture struct {
	model    *model.ScriptedModel
	store    *session.InMemoryStore
	locker   *session.Locker
	registry *tool.Registry
	server   *Server
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()

	f := &fixture{
		model:  model.NewScriptedModel("scripted"),
		store:  session.NewInMemoryStore(),
		locker: session.NewLocker(),
	}

	registry := tool.NewRegistry()
	f.registry = registry
	registry.RegisterFunc("run_shell_command", "Run a shell command", map[string]any{
		"type":       "object",
		"properties": map[string]any{"command": map[string]any{"type": "string"}},
	}, func(_ *core.ToolContext, _ map[string]any) (any, error) { return "ok", nil })

	r := runner.New(f.model, registry, func(o *runner.Options) {
		o.SessionStore = f.store
	})

	base := func(o *Options) { o.Locker = f.locker }
	f.server = New(r, f.store, append([]func(o *Options){base}, optFns...)...)

	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func ndjson(t *testing.T, body []byte) []map[string]any {
	t.Helper()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}

	return out
}

func TestChat_NDJSON(t *testing.T) {
	f := newFixture(t)
	f.model.ReplyToolCalls(core.ToolCall{ID: "c1", Name: "run_shell_command", Arguments: `{"command":"ls"}`}).
		ReplyText("3 files")

	rec := f.do(t, http.MethodPost, "/api/chat", `{"session_id":"s1","message":"list files"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, "s1", rec.Header().Get("X-Session-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))

	events := ndjson(t, rec.Body.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, map[string]any{"type": "response", "content": "3 files"}, events[0])

	msgs, err := f.store.LoadMessages(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
	assert.False(t, f.locker.Busy("s1"))
}

func TestChat_SSE(t *testing.T) {
	f := newFixture(t)
	f.model.Fail(errors.New("model down"))

	rec := f.do(t, http.MethodPost, "/api/chat", `{"session_id":"s1","message":"hi"}`, "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `data: {"type":"error","message":"`), body)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, "model down")
}

func TestChat_GeneratesSessionID(t *testing.T) {
	f := newFixture(t)
	f.model.ReplyText("hello")

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"hi there"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	id := rec.Header().Get("X-Session-ID")
	require.NotEmpty(t, id)

	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hi there", sess.Title)
}

func TestChat_RequestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing message", `{"session_id":"s1"}`},
		{"blank message", `{"session_id":"s1","message":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec), "error")
			assert.Zero(t, f.model.Calls())
		})
	}
}

func TestChat_BusySession(t *testing.T) {
	f := newFixture(t)

	release, err := f.locker.TryLock("s1")
	require.NoError(t, err)
	defer release()

	rec := f.do(t, http.MethodPost, "/api/chat", `{"session_id":"s1","message":"hi"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, f.model.Calls())

	rec = f.do(t, http.MethodDelete, "/api/sessions/s1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelRun_Unknown(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/runs/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/sessions", `{"id":"c1","first_message":"summarize the logs"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "summarize the logs", decode[core.Session](t, rec).Title)

	rec = f.do(t, http.MethodPost, "/api/sessions", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	generated := decode[core.Session](t, rec)
	assert.NotEmpty(t, generated.ID)
	assert.Equal(t, core.DefaultSessionTitle, generated.Title)

	_, err := f.store.Create(ctx, "a1", core.TaskSessionPrefix+"backup")
	require.NoError(t, err)
	require.NoError(t, f.store.SaveMessages(ctx, "c1", []core.Message{core.NewHumanMessage("summarize the logs")}))

	list := decode[struct {
		Sessions []core.Session `json:"sessions"`
	}](t, f.do(t, http.MethodGet, "/api/sessions", ""))
	require.Len(t, list.Sessions, 3)
	assert.Equal(t, "c1", list.Sessions[0].ID)

	agents := decode[struct {
		Sessions []core.Session `json:"sessions"`
	}](t, f.do(t, http.MethodGet, "/api/sessions?type=agent", ""))
	require.Len(t, agents.Sessions, 1)
	assert.Equal(t, "a1", agents.Sessions[0].ID)

	chats := decode[struct {
		Sessions []core.Session `json:"sessions"`
	}](t, f.do(t, http.MethodGet, "/api/sessions?type=chat", ""))
	assert.Len(t, chats.Sessions, 2)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/sessions?type=other", "").Code)

	got := decode[struct {
		Session  core.Session   `json:"session"`
		Messages []core.Message `json:"messages"`
	}](t, f.do(t, http.MethodGet, "/api/sessions/c1", ""))
	assert.Equal(t, "c1", got.Session.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, core.RoleHuman, got.Messages[0].Role)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/api/sessions/c1", `{"title":" "}`).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/api/sessions/c1", `{"title":"Logs"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/sessions/missing", `{"title":"x"}`).Code)

	sess, err := f.store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Logs", sess.Title)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/sessions/c1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sessions/c1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/sessions/c1", "").Code)
}

func TestSummarize(t *testing.T) {
	titler := session.NewTitler(progress.StaticGenerator{Text: "Disk Usage Report"})
	f := newFixture(t, func(o *Options) { o.Titler = titler })

	rec := f.do(t, http.MethodPost, "/api/summarize", `{"messages":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.UntitledChat, decode[map[string]string](t, rec)["summary"])

	rec = f.do(t, http.MethodPost, "/api/summarize", `{"messages":[{"role":"user","content":"how full is the disk?"}]}`)
	assert.Equal(t, "Disk Usage Report", decode[map[string]string](t, rec)["summary"])

	require.NoError(t, f.store.SaveMessages(context.Background(), "s1", []core.Message{core.NewHumanMessage("df -h please")}))
	rec = f.do(t, http.MethodPost, "/api/sessions/s1/title", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Disk Usage Report", decode[map[string]string](t, rec)["title"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/sessions/missing/title", "").Code)
}

func TestTasks(t *testing.T) {
	f := newFixture(t)
	f.model.ReplyText("backup done").Fail(errors.New("model down"))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/tasks", `{"name":"backup"}`).Code)

	rec := f.do(t, http.MethodPost, "/api/tasks", `{"name":"backup","description":"nightly","task":"tar the home dir"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[core.Task](t, rec)
	assert.True(t, strings.HasPrefix(created.ID, "task_"))

	list := decode[struct {
		Tasks []core.Task `json:"tasks"`
	}](t, f.do(t, http.MethodGet, "/api/tasks", ""))
	require.Len(t, list.Tasks, 1)

	rec = f.do(t, http.MethodPut, "/api/tasks/"+created.ID, `{"name":"backup","task":"tar /home"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tar /home", decode[core.Task](t, rec).Task)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/api/tasks/nope", `{"name":"x","task":"y"}`).Code)

	rec = f.do(t, http.MethodPost, "/api/tasks/"+created.ID+"/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	events := ndjson(t, rec.Body.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "backup done", events[0]["content"])

	got := decode[core.Task](t, f.do(t, http.MethodGet, "/api/tasks/"+created.ID, ""))
	assert.Equal(t, "backup done", got.LastResult)

	sess, err := f.store.Get(context.Background(), rec.Header().Get("X-Session-ID"))
	require.NoError(t, err)
	assert.Equal(t, core.TaskSessionPrefix+"backup", sess.Title)

	f.do(t, http.MethodPost, "/api/tasks/"+created.ID+"/run", "")
	got = decode[core.Task](t, f.do(t, http.MethodGet, "/api/tasks/"+created.ID, ""))
	assert.True(t, strings.HasPrefix(got.LastResult, "Error: "), got.LastResult)

	rec = f.do(t, http.MethodDelete, "/api/tasks/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task "+created.ID+" deleted", decode[map[string]string](t, rec)["message"])
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/tasks/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/tasks/"+created.ID+"/run", "").Code)
}

func TestToolsAndHealth(t *testing.T) {
	f := newFixture(t)

	tools := decode[struct {
		Tools []tool.Descriptor `json:"tools"`
	}](t, f.do(t, http.MethodGet, "/api/tools", ""))
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "run_shell_command", tools.Tools[0].Name)

	health := decode[map[string]any](t, f.do(t, http.MethodGet, "/healthz", ""))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 0, health["active_runs"])
}

func TestChatWebSocket(t *testing.T) {
	f := newFixture(t)
	f.model.ReplyText("first").ReplyText("second")

	srv := httptest.NewServer(f.server)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	read := func() map[string]any {
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "no session"}))
	ev := read()
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "session_id is required", ev["message"])

	for _, want := range []string{"first", "second"} {
		require.NoError(t, conn.WriteJSON(chatRequest{SessionID: "ws1", Message: "go"}))
		ev := read()
		assert.Equal(t, "response", ev["type"])
		assert.Equal(t, want, ev["content"])
	}

	msgs, err := f.store.LoadMessages(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}
