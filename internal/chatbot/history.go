package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat history entry.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// History is an append-only conversation log. It is never trimmed.
type History struct {
	mu       sync.Mutex
	messages []Message
}

// NewHistory creates a history seeded with msgs.
func NewHistory(msgs ...Message) *History {
	return &History{messages: append([]Message(nil), msgs...)}
}

// Append adds a message and returns it.
func (h *History) Append(role Role, content string) Message {
	m := Message{Role: role, Content: content, Time: time.Now().UTC()}
	h.mu.Lock()
	h.messages = append(h.messages, m)
	h.mu.Unlock()
	return m
}

// Messages returns a copy of the log.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Last returns the most recent message.
func (h *History) Last() (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

var ErrSessionNotFound = errors.New("chat session not found")

// HistoryStore persists histories per session for the HTTP surface.
type HistoryStore interface {
	// Create starts an empty session and returns its id.
	Create(ctx context.Context) (string, error)
	// Load returns the session's messages, or ErrSessionNotFound.
	Load(ctx context.Context, session string) ([]Message, error)
	// Append adds messages to the end of the session.
	Append(ctx context.Context, session string, msgs ...Message) error
}

// MemoryHistoryStore keeps sessions in process memory.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

// NewMemoryHistoryStore creates an empty store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{sessions: make(map[string][]Message)}
}

func (s *MemoryHistoryStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = []Message{}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryHistoryStore) Load(ctx context.Context, session string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.sessions[session]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]Message{}, msgs...), nil
}

func (s *MemoryHistoryStore) Append(ctx context.Context, session string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session]; !ok {
		return ErrSessionNotFound
	}
	s.sessions[session] = append(s.sessions[session], msgs...)
	return nil
}

// RedisHistoryStore keeps each session as a Redis list of JSON messages.
type RedisHistoryStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHistoryStore wraps rdb. A zero ttl keeps sessions forever.
func NewRedisHistoryStore(rdb *redis.Client, ttl time.Duration) *RedisHistoryStore {
	return &RedisHistoryStore{rdb: rdb, prefix: "auditor:chat:", ttl: ttl}
}

// NewRedisClient parses a redis:// URL, or a bare host:port, and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	var opt *redis.Options
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: url}
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisHistoryStore) key(session string) string {
	return s.prefix + session
}

func (s *RedisHistoryStore) metaKey(session string) string {
	return s.prefix + session + ":meta"
}

func (s *RedisHistoryStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.rdb.Set(ctx, s.metaKey(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

func (s *RedisHistoryStore) Load(ctx context.Context, session string) ([]Message, error) {
	exists, err := s.rdb.Exists(ctx, s.metaKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	raw, err := s.rdb.LRange(ctx, s.key(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	msgs := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("corrupt message in session %s: %w", session, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisHistoryStore) Append(ctx context.Context, session string, msgs ...Message) error {
	exists, err := s.rdb.Exists(ctx, s.metaKey(session)).Result()
	if err != nil {
		return fmt.Errorf("failed to append to session: %w", err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}
	if len(msgs) == 0 {
		return nil
	}

	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, b)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.key(session), values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(session), s.ttl)
		pipe.Expire(ctx, s.metaKey(session), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to session: %w", err)
	}
	return nil
}
