package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
)

// scriptedExecutor plays back a fixed output or error, optionally blocking
// until its context is canceled. Each instance is good for one Execute call.
type scriptedExecutor struct {
	output  string
	err     error
	updates []string
	block   bool

	started  chan struct{}
	finished chan struct{}
	gotInput string
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		started:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (e *scriptedExecutor) Execute(ctx context.Context, input string, report func(string)) (string, error) {
	e.gotInput = input
	close(e.started)
	defer close(e.finished)

	for _, update := range e.updates {
		if report != nil {
			report(update)
		}
	}

	if e.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return e.output, e.err
}

func newTestServer(t *testing.T, exec Executor) (*Server, *httptest.Server) {
	t.Helper()

	srv, err := NewServer(exec, ServerConfig{})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postRPC(t *testing.T, baseURL, body string) *JSONRPCResponse {
	t.Helper()

	resp, err := http.Post(baseURL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return &rpcResp
}

func decodeTaskResult(result interface{}) (*Task, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func decodeTask(t *testing.T, result interface{}) *Task {
	t.Helper()

	task, err := decodeTaskResult(result)
	require.NoError(t, err)
	return task
}

func sendText(t *testing.T, baseURL, text string) *Task {
	t.Helper()

	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":"1","method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"type":"text","text":%q}]}}}`, text)
	resp := postRPC(t, baseURL, body)
	require.Nil(t, resp.Error)

	task := decodeTask(t, resp.Result)
	require.NotEmpty(t, task.ID)
	return task
}

func waitForTaskState(t *testing.T, baseURL, taskID string, state TaskState) *Task {
	t.Helper()

	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":"poll","method":"tasks/get","params":{"id":%q}}`, taskID)
	var task *Task
	require.Eventually(t, func() bool {
		resp, err := http.Post(baseURL+"/rpc", "application/json", strings.NewReader(body))
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		var rpcResp JSONRPCResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil || rpcResp.Error != nil {
			return false
		}
		decoded, err := decodeTaskResult(rpcResp.Result)
		if err != nil || decoded.Status.State != state {
			return false
		}
		task = decoded
		return true
	}, 2*time.Second, 10*time.Millisecond)
	return task
}

func historyText(task *Task) []string {
	texts := make([]string, 0, len(task.History))
	for i := range task.History {
		texts = append(texts, ExtractTextFromMessage(&task.History[i]))
	}
	return texts
}

func TestNewServerDefaults(t *testing.T) {
	srv, err := NewServer(newScriptedExecutor(), ServerConfig{})
	require.NoError(t, err)

	assert.Equal(t, "localhost", srv.config.Host)
	assert.Equal(t, 9999, srv.config.Port)
	assert.Equal(t, "prompt-optimizer", srv.config.Name)
	assert.Equal(t, time.Hour, srv.config.MaxTaskAge)

	assert.Equal(t, "http://localhost:9999/rpc", srv.agentCard.URL)
	assert.True(t, srv.agentCard.Capabilities.Streaming)
	require.Len(t, srv.agentCard.Skills, 1)
	assert.Equal(t, "prompt_optimization", srv.agentCard.Skills[0].ID)
}

func TestNewServerPublicURL(t *testing.T) {
	srv, err := NewServer(newScriptedExecutor(), ServerConfig{
		URL: "https://agents.example.com/",
	})
	require.NoError(t, err)

	// The advertised URL uses the public address, not the listen address.
	assert.Equal(t, "https://agents.example.com/rpc", srv.agentCard.URL)
	assert.Equal(t, "localhost", srv.config.Host)
}

func TestNewServerRequiresExecutor(t *testing.T) {
	_, err := NewServer(nil, ServerConfig{})

	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestAgentCardEndpoint(t *testing.T) {
	_, ts := newTestServer(t, newScriptedExecutor())

	resp, err := http.Get(ts.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "prompt-optimizer", card.Name)
	assert.True(t, card.Capabilities.Streaming)

	post, err := http.Post(ts.URL+"/.well-known/agent.json", "application/json", nil)
	require.NoError(t, err)
	defer post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, newScriptedExecutor())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "prompt-optimizer", health["agent"])
}

func TestRPCMalformedRequests(t *testing.T) {
	_, ts := newTestServer(t, newScriptedExecutor())

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "parse error",
			body:     `{not json`,
			wantCode: RPCErrorCodeParseError,
		},
		{
			name:     "wrong version",
			body:     `{"jsonrpc":"1.0","id":"1","method":"tasks/get","params":{"id":"x"}}`,
			wantCode: RPCErrorCodeInvalidRequest,
		},
		{
			name:     "unknown method",
			body:     `{"jsonrpc":"2.0","id":"1","method":"tasks/list"}`,
			wantCode: RPCErrorCodeMethodNotFound,
		},
		{
			name:     "missing message param",
			body:     `{"jsonrpc":"2.0","id":"1","method":"message/send","params":{}}`,
			wantCode: RPCErrorCodeInvalidParams,
		},
		{
			name:     "invalid message shape",
			body:     `{"jsonrpc":"2.0","id":"1","method":"message/send","params":{"message":"not an object"}}`,
			wantCode: RPCErrorCodeInvalidParams,
		},
		{
			name:     "missing task id",
			body:     `{"jsonrpc":"2.0","id":"1","method":"tasks/get","params":{}}`,
			wantCode: RPCErrorCodeInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRPC(t, ts.URL, tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestTasksGetNotFound(t *testing.T) {
	_, ts := newTestServer(t, newScriptedExecutor())

	resp := postRPC(t, ts.URL, `{"jsonrpc":"2.0","id":"1","method":"tasks/get","params":{"id":"no-such-task"}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, RPCErrorCodeTaskNotFound, resp.Error.Code)
}

func TestSendMessageCompletesTask(t *testing.T) {
	exec := newScriptedExecutor()
	exec.output = "# Optimized\nUse this prompt."
	exec.updates = []string{"Stage generate_prompt completed"}

	_, ts := newTestServer(t, exec)

	task := sendText(t, ts.URL, "optimize my prompt")
	final := waitForTaskState(t, ts.URL, task.ID, TaskStateCompleted)

	require.Len(t, final.Artifacts, 1)
	assert.Equal(t, exec.output, ExtractTextFromArtifact(final.Artifacts[0]))

	history := historyText(final)
	assert.Contains(t, history, "optimize my prompt")
	assert.Contains(t, history, "Stage generate_prompt completed")

	assert.Equal(t, "optimize my prompt", exec.gotInput)
}

func TestSendMessageFailsTask(t *testing.T) {
	exec := newScriptedExecutor()
	exec.err = errors.New(errors.ValidationFailed, "at least one example is required")

	_, ts := newTestServer(t, exec)

	task := sendText(t, ts.URL, `{"role": "x", "examples": []}`)
	final := waitForTaskState(t, ts.URL, task.ID, TaskStateFailed)

	require.NotNil(t, final.Status.Message)
	assert.Equal(t, "Input validation error: at least one example is required", ExtractTextFromMessage(final.Status.Message))
	assert.Empty(t, final.Artifacts)
}

func TestCancelTask(t *testing.T) {
	exec := newScriptedExecutor()
	exec.block = true

	srv, ts := newTestServer(t, exec)

	task := sendText(t, ts.URL, "optimize this")

	select {
	case <-exec.started:
	case <-time.After(time.Second):
		t.Fatal("executor never started")
	}

	resp := postRPC(t, ts.URL, fmt.Sprintf(`{"jsonrpc":"2.0","id":"1","method":"tasks/cancel","params":{"id":%q}}`, task.ID))
	require.Nil(t, resp.Error)

	canceled := decodeTask(t, resp.Result)
	assert.Equal(t, TaskStateCanceled, canceled.Status.State)
	require.NotNil(t, canceled.Status.Message)
	assert.Equal(t, "Prompt optimization task cancelled by user", ExtractTextFromMessage(canceled.Status.Message))

	select {
	case <-exec.finished:
	case <-time.After(time.Second):
		t.Fatal("cancel did not stop the executor")
	}

	// The canceled status must survive the executor unwinding.
	stored, ok := srv.tasks.get(task.ID)
	require.True(t, ok)
	assert.Equal(t, TaskStateCanceled, stored.GetStatus().State)

	again := postRPC(t, ts.URL, fmt.Sprintf(`{"jsonrpc":"2.0","id":"2","method":"tasks/cancel","params":{"id":%q}}`, task.ID))
	require.NotNil(t, again.Error)
	assert.Equal(t, RPCErrorCodeTaskNotCancelable, again.Error.Code)
}

func TestStreamReplaysCompletedTask(t *testing.T) {
	exec := newScriptedExecutor()
	exec.output = "final answer"

	_, ts := newTestServer(t, exec)

	task := sendText(t, ts.URL, "go")
	waitForTaskState(t, ts.URL, task.ID, TaskStateCompleted)

	resp, err := http.Get(ts.URL + "/stream/" + task.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "event: artifact")
	assert.Contains(t, text, "final answer")
	assert.Contains(t, text, "event: status")
	assert.Contains(t, text, `"final":true`)
}

func TestStreamUnknownTask(t *testing.T) {
	_, ts := newTestServer(t, newScriptedExecutor())

	resp, err := http.Get(ts.URL + "/stream/no-such-task")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	missing, err := http.Get(ts.URL + "/stream/")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
}

func TestSubscriberRegistry(t *testing.T) {
	reg := newSubscriberRegistry()

	sub := reg.subscribe("t1")
	reg.notify("t1", "hello")
	assert.Equal(t, "hello", <-sub.channel)

	reg.notify("other", "ignored")
	assert.Empty(t, sub.channel)

	// A full channel drops updates instead of blocking the notifier.
	for i := 0; i < 150; i++ {
		reg.notify("t1", i)
	}
	assert.Len(t, sub.channel, 100)

	reg.unsubscribe(sub)
	reg.notify("t1", "after close")

	drained := 0
	for range sub.channel {
		drained++
	}
	assert.Equal(t, 100, drained)
}

func TestCleanupOldTasks(t *testing.T) {
	srv, err := NewServer(newScriptedExecutor(), ServerConfig{MaxTaskAge: time.Hour})
	require.NoError(t, err)

	oldDone := srv.tasks.create()
	oldDone.Status = TaskStatus{
		State:     TaskStateCompleted,
		Timestamp: time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339),
	}

	freshDone := srv.tasks.create()
	freshDone.UpdateStatus(TaskStateCompleted)

	oldRunning := srv.tasks.create()
	oldRunning.Status = TaskStatus{
		State:     TaskStateWorking,
		Timestamp: time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339),
	}

	srv.cleanupOldTasks()

	_, ok := srv.tasks.get(oldDone.ID)
	assert.False(t, ok, "old terminal task should be evicted")

	_, ok = srv.tasks.get(freshDone.ID)
	assert.True(t, ok, "recent terminal task should be kept")

	_, ok = srv.tasks.get(oldRunning.ID)
	assert.True(t, ok, "running task should be kept regardless of age")
}

func TestOptimizerExecutorThroughServer(t *testing.T) {
	result := &optimizer.Result{
		Role:        "software developers",
		Provider:    "gemini",
		FinalPrompt: "Be precise and cite the code.",
		Step:        optimizer.StepCompleted,
	}
	svc := &stubOptimizeService{result: result}

	_, ts := newTestServer(t, NewOptimizerExecutor(svc))

	input := `{"role": "software developers", "examples": [{"input": "Write a function", "output": "def example_function():"}]}`
	task := sendText(t, ts.URL, input)
	final := waitForTaskState(t, ts.URL, task.ID, TaskStateCompleted)

	require.Len(t, final.Artifacts, 1)
	assert.Equal(t, optimizer.FormatResult(result), ExtractTextFromArtifact(final.Artifacts[0]))

	history := historyText(final)
	require.NotEmpty(t, history)
	assert.Contains(t, history[0], "software developers")

	foundStart := false
	for _, entry := range history {
		if strings.Contains(entry, "Starting prompt optimization") {
			foundStart = true
		}
	}
	assert.True(t, foundStart, "start message should be recorded in history")
}
