package store

import (
	"context"
	"encoding/json"
	"path"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/conversation"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost", "store")

// maxStoredMessages bounds the transcript kept per chat; older messages
// are trimmed away on every append.
const maxStoredMessages = 200

var _ conversation.MessageStore = (*redisStore)(nil)

// The redis store keeps transcripts in Redis so conversations survive the
// host process. The keys namespace is organized as follows:
// - `<prefix>/chatstore/messages/<chatID>` holds the message list of a chat
// - `<prefix>/chatstore/chats` holds the set of chat IDs with messages
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over an initialized Redis client.
// All keys are placed under the given prefix.
func NewRedisStore(client *redis.Client, prefix string) MessageStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) messagesKey(chatID string) string {
	return path.Join(m.prefix, "chatstore", "messages", chatID)
}

func (m *redisStore) chatsKey() string {
	return path.Join(m.prefix, "chatstore", "chats")
}

func (m *redisStore) Messages(ctx context.Context, chatID string) ([]conversation.Message, error) {
	data, err := m.client.LRange(ctx, m.messagesKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read messages from Redis")
	}

	var messages []conversation.Message
	for _, item := range data {
		var msg conversation.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"chat_id", chatID,
				"reason", "unmarshal_message",
				"err", err.Error(),
			)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (m *redisStore) Add(ctx context.Context, chatID string, msg conversation.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	key := m.messagesKey(chatID)
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, key, data)
	// Keep only the most recent messages
	pipe.LTrim(ctx, key, -maxStoredMessages, -1)
	pipe.SAdd(ctx, m.chatsKey(), chatID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store message in Redis")
	}
	return nil
}

func (m *redisStore) Reset(ctx context.Context, chatID string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.messagesKey(chatID))
	pipe.SRem(ctx, m.chatsKey(), chatID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to reset chat in Redis")
	}
	return nil
}

func (m *redisStore) Chats(ctx context.Context) ([]string, error) {
	chatIDs, err := m.client.SMembers(ctx, m.chatsKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list chats from Redis")
	}
	sort.Strings(chatIDs)
	return chatIDs, nil
}
