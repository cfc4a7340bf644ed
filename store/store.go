// Package store persists conversation transcripts by chat ID.
package store

import (
	"context"

	"github.com/effective-security/mcphost/conversation"
)

// MessageStore keeps transcript messages per chat. Implementations also
// satisfy conversation.MessageStore, so the engine can mirror every
// transcript append into one.
type MessageStore interface {
	// Messages returns the stored transcript for the chat, oldest first.
	Messages(ctx context.Context, chatID string) ([]conversation.Message, error)
	// Add appends a message to the chat transcript.
	Add(ctx context.Context, chatID string, msg conversation.Message) error
	// Reset deletes the chat transcript.
	Reset(ctx context.Context, chatID string) error
	// Chats lists chats with stored messages, in sorted order.
	Chats(ctx context.Context) ([]string, error)
}
