package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
)

const cleanupInterval = 15 * time.Minute

// ============================================================================
// Server Configuration
// ============================================================================

// ServerConfig holds configuration for the a2a server.
type ServerConfig struct {
	Host        string        // Host address (e.g., "localhost", "0.0.0.0")
	Port        int           // Port number
	Name        string        // Agent name for the AgentCard
	Description string        // Agent description for the AgentCard
	Version     string        // Agent version
	URL         string        // Public base URL for the AgentCard; derived from Host and Port when empty
	PathPrefix  string        // Optional path prefix (e.g., "/api/v1")
	MaxTaskAge  time.Duration // How long to keep terminal tasks (default: 1 hour)
}

// Server exposes an Executor via the a2a protocol over HTTP.
type Server struct {
	config      ServerConfig
	executor    Executor
	agentCard   AgentCard
	server      *http.Server
	tasks       *taskRegistry
	subscribers *subscriberRegistry

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// ============================================================================
// Task Registry
// ============================================================================

// taskRegistry tracks tasks and the cancel functions of the ones still
// running.
type taskRegistry struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	cancels map[string]context.CancelFunc
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{
		tasks:   make(map[string]*Task),
		cancels: make(map[string]context.CancelFunc),
	}
}

func (r *taskRegistry) create() *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := NewTask()
	r.tasks[task.ID] = task
	return task
}

func (r *taskRegistry) get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	return task, ok
}

func (r *taskRegistry) setCancel(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[id] = cancel
}

// cancel invokes and removes the cancel function for a running task. It
// reports whether the task was still running.
func (r *taskRegistry) cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

func (r *taskRegistry) clearCancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

// ============================================================================
// Subscriber Registry
// ============================================================================

// subscriber receives streaming updates for one task.
type subscriber struct {
	taskID  string
	channel chan interface{}
}

type subscriberRegistry struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
}

func newSubscriberRegistry() *subscriberRegistry {
	return &subscriberRegistry{
		subscribers: make(map[string][]*subscriber),
	}
}

func (r *subscriberRegistry) subscribe(taskID string) *subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &subscriber{
		taskID:  taskID,
		channel: make(chan interface{}, 100),
	}
	r.subscribers[taskID] = append(r.subscribers[taskID], sub)
	return sub
}

func (r *subscriberRegistry) unsubscribe(sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subscribers[sub.taskID]
	for i, s := range subs {
		if s == sub {
			r.subscribers[sub.taskID] = append(subs[:i], subs[i+1:]...)
			close(sub.channel)
			break
		}
	}
}

func (r *subscriberRegistry) notify(taskID string, event interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subscribers[taskID] {
		select {
		case sub.channel <- event:
		default:
			// Channel full, skip this update
		}
	}
}

// ============================================================================
// Server Creation and Lifecycle
// ============================================================================

// NewServer creates an a2a server that runs tasks through the given executor.
func NewServer(executor Executor, config ServerConfig) (*Server, error) {
	if executor == nil {
		return nil, errors.New(errors.InvalidInput, "executor cannot be nil")
	}

	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 9999
	}
	if config.Name == "" {
		config.Name = "prompt-optimizer"
	}
	if config.Description == "" {
		config.Description = "Optimizes prompts for a target audience through staged generation, evaluation, and improvement"
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}
	if config.MaxTaskAge == 0 {
		config.MaxTaskAge = time.Hour
	}

	baseURL := config.URL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", config.Host, config.Port)
	}
	baseURL = strings.TrimRight(baseURL, "/") + config.PathPrefix
	agentCard := AgentCard{
		Name:               config.Name,
		Description:        config.Description,
		URL:                baseURL + "/rpc",
		Version:            config.Version,
		Capabilities:       AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills: []AgentSkill{
			{
				ID:          "prompt_optimization",
				Name:        "Prompt optimization",
				Description: "Generates, evaluates, and improves prompts for a target audience",
				Tags:        []string{"prompt engineering", "optimization"},
			},
		},
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	s := &Server{
		config:      config,
		executor:    executor,
		agentCard:   agentCard,
		tasks:       newTaskRegistry(),
		subscribers: newSubscriberRegistry(),
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
	}

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: mux,
	}

	return s, nil
}

// registerHandlers sets up HTTP routes.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	prefix := s.config.PathPrefix

	// AgentCard discovery endpoint
	mux.HandleFunc(prefix+"/.well-known/agent.json", s.handleAgentCard)

	// JSON-RPC endpoint
	mux.HandleFunc(prefix+"/rpc", s.handleRPC)

	// SSE streaming endpoint
	mux.HandleFunc(prefix+"/stream/", s.handleStream)

	// Health check
	mux.HandleFunc(prefix+"/health", s.handleHealth)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving the a2a protocol. It blocks until ctx is canceled or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(errors.InvalidPipelineState, "server already running")
	}
	s.running = true
	s.mu.Unlock()

	go s.cleanupLoop(s.rootCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger := logging.GetLogger()
	logger.Info(ctx, "a2a server listening on %s", s.server.Addr)
	logger.Info(ctx, "AgentCard available at http://%s%s/.well-known/agent.json", s.server.Addr, s.config.PathPrefix)

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return errors.Wrap(err, errors.Unknown, "a2a server failed")
	}
}

// Shutdown gracefully stops the server and cancels running tasks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.rootCancel()
	return s.server.Shutdown(ctx)
}

// cleanupLoop periodically evicts old terminal tasks.
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOldTasks()
		}
	}
}

func (s *Server) cleanupOldTasks() {
	s.tasks.mu.Lock()
	defer s.tasks.mu.Unlock()

	now := time.Now()
	for id, task := range s.tasks.tasks {
		status := task.GetStatus()
		if !status.State.IsTerminal() {
			continue
		}

		ts, err := time.Parse(time.RFC3339, status.Timestamp)
		if err != nil {
			continue
		}

		if now.Sub(ts) > s.config.MaxTaskAge {
			delete(s.tasks.tasks, id)
			delete(s.tasks.cancels, id)
		}
	}
}

// ============================================================================
// HTTP Handlers
// ============================================================================

// handleAgentCard serves the agent discovery document.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.agentCard); err != nil {
		fmt.Fprintf(w, `{"error":"encoding failed"}`)
	}
}

// handleHealth is a simple liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"agent":  s.config.Name,
	}); err != nil {
		fmt.Fprintf(w, `{"error":"encoding failed"}`)
	}
}

// handleRPC processes JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONResponse(w, NewJSONRPCError(nil, RPCErrorCodeParseError, "Failed to parse request"))
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONResponse(w, NewJSONRPCError(req.ID, RPCErrorCodeInvalidRequest, "Invalid JSON-RPC version"))
		return
	}

	var resp *JSONRPCResponse
	switch req.Method {
	case "message/send":
		resp = s.handleSendMessage(&req)
	case "tasks/get":
		resp = s.handleGetTask(&req)
	case "tasks/cancel":
		resp = s.handleCancelTask(&req)
	default:
		resp = NewJSONRPCError(req.ID, RPCErrorCodeMethodNotFound, "Method not found")
	}

	s.sendJSONResponse(w, resp)
}

func (s *Server) sendJSONResponse(w http.ResponseWriter, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","error":{"code":-32603,"message":"encoding failed"},"id":null}`)
	}
}

// ============================================================================
// JSON-RPC Method Handlers
// ============================================================================

// handleSendMessage creates a task for an inbound message and starts
// processing it asynchronously.
func (s *Server) handleSendMessage(req *JSONRPCRequest) *JSONRPCResponse {
	msgData, ok := req.Params["message"]
	if !ok {
		return NewJSONRPCError(req.ID, RPCErrorCodeInvalidParams, "Missing 'message' parameter")
	}

	msgBytes, _ := json.Marshal(msgData)
	var msg Message
	if err := json.Unmarshal(msgBytes, &msg); err != nil {
		return NewJSONRPCError(req.ID, RPCErrorCodeInvalidParams, "Invalid message format")
	}

	task := s.tasks.create()
	task.ContextID = msg.ContextID
	task.AddMessage(msg)

	taskCtx, cancel := context.WithCancel(s.rootCtx)
	s.tasks.setCancel(task.ID, cancel)

	go s.processTask(taskCtx, task, &msg)

	return NewJSONRPCResponse(req.ID, task.Snapshot())
}

// handleGetTask retrieves task status.
func (s *Server) handleGetTask(req *JSONRPCRequest) *JSONRPCResponse {
	taskID, ok := req.Params["id"].(string)
	if !ok {
		return NewJSONRPCError(req.ID, RPCErrorCodeInvalidParams, "Missing or invalid 'id'")
	}

	task, ok := s.tasks.get(taskID)
	if !ok {
		return NewJSONRPCError(req.ID, RPCErrorCodeTaskNotFound, "Task not found")
	}

	return NewJSONRPCResponse(req.ID, task.Snapshot())
}

// handleCancelTask cancels a running task. Terminal tasks cannot be canceled.
func (s *Server) handleCancelTask(req *JSONRPCRequest) *JSONRPCResponse {
	taskID, ok := req.Params["id"].(string)
	if !ok {
		return NewJSONRPCError(req.ID, RPCErrorCodeInvalidParams, "Missing or invalid 'id'")
	}

	task, ok := s.tasks.get(taskID)
	if !ok {
		return NewJSONRPCError(req.ID, RPCErrorCodeTaskNotFound, "Task not found")
	}

	if task.GetStatus().State.IsTerminal() {
		return NewJSONRPCError(req.ID, RPCErrorCodeTaskNotCancelable, "Task is already in a terminal state")
	}

	s.tasks.cancel(task.ID)
	task.UpdateStatusMessage(TaskStateCanceled, NewAgentMessage("Prompt optimization task cancelled by user"))
	s.subscribers.notify(task.ID, NewTaskStatusUpdateEvent(task.ID, task.GetStatus(), true))

	return NewJSONRPCResponse(req.ID, task.Snapshot())
}

// ============================================================================
// Task Processing
// ============================================================================

// processTask runs the executor and publishes task updates.
func (s *Server) processTask(ctx context.Context, task *Task, msg *Message) {
	defer s.tasks.clearCancel(task.ID)

	task.UpdateStatus(TaskStateWorking)
	s.subscribers.notify(task.ID, NewTaskStatusUpdateEvent(task.ID, task.GetStatus(), false))

	input := ExtractTextFromMessage(msg)
	output, err := s.executor.Execute(ctx, input, func(update string) {
		progress := NewAgentMessage(update)
		task.AddMessage(*progress)
		task.UpdateStatusMessage(TaskStateWorking, progress)
		s.subscribers.notify(task.ID, NewTaskStatusUpdateEvent(task.ID, task.GetStatus(), false))
	})

	// tasks/cancel already published the canceled status
	if task.GetStatus().State == TaskStateCanceled {
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Code(err) == errors.Canceled {
			return
		}
		s.failTask(task, err)
		return
	}

	artifact := NewArtifact(NewTextPart(output))
	task.AddArtifact(artifact)
	task.UpdateStatus(TaskStateCompleted)

	s.subscribers.notify(task.ID, NewTaskArtifactUpdateEvent(task.ID, artifact, true))
	s.subscribers.notify(task.ID, NewTaskStatusUpdateEvent(task.ID, task.GetStatus(), true))
}

func (s *Server) failTask(task *Task, err error) {
	logging.GetLogger().Error(context.Background(), "Task %s failed: %v", task.ID, err)

	task.UpdateStatusMessage(TaskStateFailed, NewAgentMessage(errorText(err)))
	s.subscribers.notify(task.ID, NewTaskStatusUpdateEvent(task.ID, task.GetStatus(), true))
}

// ============================================================================
// SSE Streaming Handler
// ============================================================================

// handleStream streams task updates as Server-Sent Events.
// URL format: /stream/{taskID}.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	prefix := s.config.PathPrefix + "/stream/"
	if len(path) <= len(prefix) {
		http.Error(w, "Task ID required", http.StatusBadRequest)
		return
	}
	taskID := path[len(prefix):]

	task, ok := s.tasks.get(taskID)
	if !ok {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := s.subscribers.subscribe(taskID)
	defer s.subscribers.unsubscribe(sub)

	// Replay current state. A terminal task replays its artifacts followed by
	// the final status, then the stream closes.
	status := task.GetStatus()
	if status.State.IsTerminal() {
		for _, artifact := range task.GetArtifacts() {
			s.sendSSEEvent(w, flusher, "artifact", NewTaskArtifactUpdateEvent(taskID, artifact, true))
		}
		s.sendSSEEvent(w, flusher, "status", NewTaskStatusUpdateEvent(taskID, status, true))
		return
	}
	s.sendSSEEvent(w, flusher, "status", NewTaskStatusUpdateEvent(taskID, status, false))

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.channel:
			if !ok {
				return
			}

			switch e := event.(type) {
			case *TaskStatusUpdateEvent:
				s.sendSSEEvent(w, flusher, "status", e)
				if e.Final {
					return
				}
			case *TaskArtifactUpdateEvent:
				s.sendSSEEvent(w, flusher, "artifact", e)
			}
		}
	}
}

// sendSSEEvent writes a single Server-Sent Event.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
