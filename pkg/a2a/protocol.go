// Package a2a exposes prompt optimization over the Agent-to-Agent (a2a)
// protocol: JSON-RPC 2.0 over HTTP for task submission and retrieval, plus
// Server-Sent Events for streaming task updates to interoperable agents.
package a2a

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Part Types - Building blocks of messages
// ============================================================================

// Part represents a piece of content in a message.
// Parts can be text, files, or structured data.
type Part struct {
	Type     string                 `json:"type"` // "text", "file", or "data"
	Text     string                 `json:"text,omitempty"`
	File     *FilePart              `json:"file,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// FilePart represents a file attachment, referenced by URI or embedded as
// base64-encoded bytes.
type FilePart struct {
	URI      string `json:"uri,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	MimeType string `json:"mimeType"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{
		Type: "text",
		Text: text,
	}
}

// NewFilePart creates a file part from a URI.
func NewFilePart(uri, mimeType string) Part {
	return Part{
		Type: "file",
		File: &FilePart{
			URI:      uri,
			MimeType: mimeType,
		},
	}
}

// NewDataPart creates a structured data part.
func NewDataPart(data map[string]interface{}) Part {
	return Part{
		Type: "data",
		Data: data,
	}
}

// ============================================================================
// Message Types - Communication units
// ============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message represents a message in the a2a protocol. Messages contain one or
// more parts and can maintain context across multiple exchanges.
type Message struct {
	MessageID string                 `json:"messageId"`
	Role      Role                   `json:"role"`
	Parts     []Part                 `json:"parts"`
	ContextID string                 `json:"contextId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessage creates a new message with the given role and parts.
func NewMessage(role Role, parts ...Part) *Message {
	return &Message{
		MessageID: generateID(),
		Role:      role,
		Parts:     parts,
	}
}

// NewUserMessage creates a user message with text.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, NewTextPart(text))
}

// NewAgentMessage creates an agent message with text.
func NewAgentMessage(text string) *Message {
	return NewMessage(RoleAgent, NewTextPart(text))
}

// WithContext sets the context ID for this message.
func (m *Message) WithContext(contextID string) *Message {
	m.ContextID = contextID
	return m
}

// ExtractTextFromMessage returns the concatenated text content of a message.
// Non-text parts are skipped; text parts are joined with newlines.
func ExtractTextFromMessage(msg *Message) string {
	if msg == nil {
		return ""
	}

	var text string
	for _, part := range msg.Parts {
		if part.Type != "text" || part.Text == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += part.Text
	}
	return text
}

// ============================================================================
// Task Types - Execution tracking
// ============================================================================

// TaskState represents the current state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input_required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateUnknown       TaskState = "unknown"
)

// IsTerminal returns true if no further state transitions can occur.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateCanceled || s == TaskStateFailed
}

// TaskStatus represents the current status of a task.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp"` // RFC3339 format
}

// NewTaskStatus creates a task status with the current timestamp.
func NewTaskStatus(state TaskState) TaskStatus {
	return TaskStatus{
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Task represents a running or completed optimization task.
type Task struct {
	ID        string                 `json:"id"`
	ContextID string                 `json:"contextId,omitempty"`
	Status    TaskStatus             `json:"status"`
	History   []Message              `json:"history,omitempty"`
	Artifacts []Artifact             `json:"artifacts,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	mu sync.RWMutex
}

// NewTask creates a new task in the submitted state.
func NewTask() *Task {
	return &Task{
		ID:     generateID(),
		Status: NewTaskStatus(TaskStateSubmitted),
	}
}

// UpdateStatus sets the task state with a fresh timestamp.
func (t *Task) UpdateStatus(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = NewTaskStatus(state)
}

// UpdateStatusMessage sets the task state along with a status message.
func (t *Task) UpdateStatusMessage(state TaskState, msg *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status := NewTaskStatus(state)
	status.Message = msg
	t.Status = status
}

// AddMessage appends a message to the task history.
func (t *Task) AddMessage(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.History = append(t.History, msg)
}

// AddArtifact appends an artifact to the task.
func (t *Task) AddArtifact(artifact Artifact) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Artifacts = append(t.Artifacts, artifact)
}

// GetStatus returns a copy of the current status.
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// GetArtifacts returns a copy of the artifacts.
func (t *Task) GetArtifacts() []Artifact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Artifact(nil), t.Artifacts...)
}

// Snapshot returns a copy of the task that is safe to serialize while the
// task is still being processed.
func (t *Task) Snapshot() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Task{
		ID:        t.ID,
		ContextID: t.ContextID,
		Status:    t.Status,
		History:   append([]Message(nil), t.History...),
		Artifacts: append([]Artifact(nil), t.Artifacts...),
		Metadata:  t.Metadata,
	}
}

// ============================================================================
// Artifact Types - Task outputs
// ============================================================================

// Artifact represents output produced by a task.
type Artifact struct {
	ArtifactID string                 `json:"artifactId"`
	Parts      []Part                 `json:"parts"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewArtifact creates a new artifact with the given parts.
func NewArtifact(parts ...Part) Artifact {
	return Artifact{
		ArtifactID: generateID(),
		Parts:      parts,
	}
}

// ExtractTextFromArtifact returns the concatenated text content of an
// artifact, joining text parts with newlines.
func ExtractTextFromArtifact(artifact Artifact) string {
	var text string
	for _, part := range artifact.Parts {
		if part.Type != "text" || part.Text == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += part.Text
	}
	return text
}

// ============================================================================
// Event Types - Streaming updates
// ============================================================================

// TaskStatusUpdateEvent is sent when a task's status changes.
type TaskStatusUpdateEvent struct {
	TaskID    string                 `json:"taskId"`
	Status    TaskStatus             `json:"status"`
	ContextID string                 `json:"contextId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Final     bool                   `json:"final"`
}

// NewTaskStatusUpdateEvent creates a status update event.
func NewTaskStatusUpdateEvent(taskID string, status TaskStatus, final bool) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		TaskID: taskID,
		Status: status,
		Final:  final,
	}
}

// TaskArtifactUpdateEvent is sent when a task produces an artifact.
type TaskArtifactUpdateEvent struct {
	TaskID    string                 `json:"taskId"`
	Artifact  Artifact               `json:"artifact"`
	ContextID string                 `json:"contextId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	LastChunk bool                   `json:"lastChunk"`
	Append    bool                   `json:"append"`
}

// NewTaskArtifactUpdateEvent creates an artifact update event.
func NewTaskArtifactUpdateEvent(taskID string, artifact Artifact, lastChunk bool) *TaskArtifactUpdateEvent {
	return &TaskArtifactUpdateEvent{
		TaskID:    taskID,
		Artifact:  artifact,
		LastChunk: lastChunk,
	}
}

// ============================================================================
// AgentCard - Agent discovery
// ============================================================================

// AgentCard describes the agent and its endpoint. It is served at
// /.well-known/agent.json for discovery.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill      `json:"skills,omitempty"`
}

// AgentCapabilities advertises protocol-level features of the agent.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications,omitempty"`
}

// AgentSkill describes one capability of the agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// ============================================================================
// JSON-RPC Types - Transport protocol
// ============================================================================

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"` // Must be "2.0"
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	ID      interface{}            `json:"id"` // string, number, or null
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// NewJSONRPCResponse creates a successful JSON-RPC response.
func NewJSONRPCResponse(id interface{}, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewJSONRPCError creates an error JSON-RPC response.
func NewJSONRPCError(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// JSON-RPC error codes, including the a2a task extensions.
const (
	RPCErrorCodeParseError        = -32700
	RPCErrorCodeInvalidRequest    = -32600
	RPCErrorCodeMethodNotFound    = -32601
	RPCErrorCodeInvalidParams     = -32602
	RPCErrorCodeInternalError     = -32603
	RPCErrorCodeTaskNotFound      = -32001
	RPCErrorCodeTaskNotCancelable = -32002
)

// generateID generates a unique ID for messages, tasks, and artifacts.
func generateID() string {
	return uuid.New().String()
}
