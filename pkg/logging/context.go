package logging

import "context"

type contextKey int

const (
	modelIDKey contextKey = iota
	tokenInfoKey
	taskIDKey
	stageKey
)

// WithModelID annotates the context with the model handling the request.
func WithModelID(ctx context.Context, modelID string) context.Context {
	return context.WithValue(ctx, modelIDKey, modelID)
}

// GetModelID retrieves the model ID from the context.
func GetModelID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(modelIDKey).(string)
	return id, ok
}

// WithTokenInfo annotates the context with token usage for the current call.
func WithTokenInfo(ctx context.Context, info *TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey, info)
}

// GetTokenInfo retrieves token usage from the context.
func GetTokenInfo(ctx context.Context) (*TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey).(*TokenInfo)
	return info, ok
}

// WithTaskID annotates the context with the A2A task being served.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// GetTaskID retrieves the A2A task ID from the context.
func GetTaskID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey).(string)
	return id, ok
}

// WithStage annotates the context with the pipeline stage being executed.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// GetStage retrieves the pipeline stage from the context.
func GetStage(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey).(string)
	return stage, ok
}
