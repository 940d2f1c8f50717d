package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/datachat-ai/datachat/internal/errors"
)

const (
	sessionKeyPrefix  = "transcript:session:"
	messagesKeyPrefix = "transcript:messages:"
	sessionSetKey     = "transcript:sessions"

	// DefaultMessageLimit bounds how much history a single read returns
	DefaultMessageLimit = 100
)

// Message types stored in a transcript
const (
	TypeText        = "text"
	TypeSQLResult   = "sql_result"
	TypeChartResult = "chart_result"
	TypeError       = "error"
)

// Message is a single transcript entry
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"` // user or assistant
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Session describes a stored conversation
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists conversation transcripts in Redis
type Store struct {
	redis *redis.Client
}

// NewStore creates a transcript store
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

// Ping tests the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// CreateSession registers a new conversation and returns its ID
func (s *Store) CreateSession(ctx context.Context, title string) (*Session, error) {
	if title == "" {
		title = "Nouvelle conversation"
	}

	session := Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID, data, 0)
	pipe.SAdd(ctx, sessionSetKey, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTranscript, "failed to store session")
	}

	return &session, nil
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrCodeTranscript, fmt.Sprintf("session not found: %s", sessionID))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTranscript, "failed to get session")
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions, newest first
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	ids, err := s.redis.SMembers(ctx, sessionSetKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTranscript, "failed to list sessions")
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if err != nil {
			continue
		}
		sessions = append(sessions, *session)
	}

	// Newest first
	for i := 0; i < len(sessions); i++ {
		for j := i + 1; j < len(sessions); j++ {
			if sessions[j].UpdatedAt.After(sessions[i].UpdatedAt) {
				sessions[i], sessions[j] = sessions[j], sessions[i]
			}
		}
	}

	return sessions, nil
}

// Append adds a message to a session's transcript. The session record is
// created implicitly when it does not exist yet.
func (s *Store) Append(ctx context.Context, sessionID string, msg Message) (*Message, error) {
	if msg.Role == "" || msg.Content == "" {
		return nil, errors.NewInvalidInputError("message", "role and content are required")
	}
	if msg.Type == "" {
		msg.Type = TypeText
	}
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now()

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		session := Session{
			ID:        sessionID,
			Title:     truncateTitle(msg.Content),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		sessionData, merr := json.Marshal(session)
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", merr)
		}
		pipe := s.redis.TxPipeline()
		pipe.Set(ctx, sessionKeyPrefix+sessionID, sessionData, 0)
		pipe.SAdd(ctx, sessionSetKey, sessionID)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return nil, errors.Wrap(perr, errors.ErrCodeTranscript, "failed to create session")
		}
	}

	if err := s.redis.RPush(ctx, messagesKeyPrefix+sessionID, data).Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTranscript, "failed to append message")
	}

	s.touchSession(ctx, sessionID)
	return &msg, nil
}

// Messages returns up to limit most recent messages in chronological order
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	raw, err := s.redis.LRange(ctx, messagesKeyPrefix+sessionID, int64(-limit), -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTranscript, "failed to read messages")
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// DeleteSession removes a session and its messages
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+sessionID)
	pipe.Del(ctx, messagesKeyPrefix+sessionID)
	pipe.SRem(ctx, sessionSetKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeTranscript, "failed to delete session")
	}
	return nil
}

// DeleteAll removes every session and transcript
func (s *Store) DeleteAll(ctx context.Context) error {
	ids, err := s.redis.SMembers(ctx, sessionSetKey).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeTranscript, "failed to list sessions")
	}

	pipe := s.redis.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, sessionKeyPrefix+id)
		pipe.Del(ctx, messagesKeyPrefix+id)
	}
	pipe.Del(ctx, sessionSetKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeTranscript, "failed to delete sessions")
	}
	return nil
}

// touchSession bumps the session's updated timestamp; failures are ignored
// since the message itself is already stored
func (s *Store) touchSession(ctx context.Context, sessionID string) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	session.UpdatedAt = time.Now()
	if data, err := json.Marshal(session); err == nil {
		s.redis.Set(ctx, sessionKeyPrefix+sessionID, data, 0)
	}
}

func truncateTitle(content string) string {
	const maxTitle = 60
	runes := []rune(content)
	if len(runes) <= maxTitle {
		return content
	}
	return string(runes[:maxTitle]) + "..."
}
