package types

import "context"

// Context keys are unexported to prevent collisions with other packages.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	chatIDKey    contextKey = "chat_id"
)

// WithRequestID stores the request correlation ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request correlation ID from the context.
// Returns the empty string if none has been set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithChatID stores the originating chat/user id in the context so that
// log lines emitted deep in the call chain can be correlated to a user.
func WithChatID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, chatIDKey, id)
}

// GetChatID retrieves the chat/user id from the context.
func GetChatID(ctx context.Context) string {
	id, _ := ctx.Value(chatIDKey).(string)
	return id
}
