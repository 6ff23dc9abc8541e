package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aishwarymishra09/voice-chat-be/pkg/types"
)

const (
	// historyCap bounds the per-session turn history list.
	historyCap = 50

	// historyRetention keeps the transcript around after close for
	// follow-up handling before Redis expires it.
	historyRetention = 24 * time.Hour

	activeSetKey = "sessions:active"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSessionTTL sets the expiry applied to session and conversation keys
// while a session is live. It should exceed the maximum session duration so
// keys never vanish under an open call. Default: 11 minutes.
func WithSessionTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// Store persists sessions, dialogue state, and turn history in Redis.
// All methods are safe for concurrent use.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore wraps a Redis client.
func NewStore(client *redis.Client, opts ...StoreOption) *Store {
	s := &Store{
		client: client,
		ttl:    11 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func sessionKey(id string) string      { return "session:" + id }
func conversationKey(id string) string { return "conversation:" + id }
func historyKey(id string) string      { return "conversation:" + id + ":history" }

// Create persists a new session and registers it in the active set.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session: missing session ID")
	}

	fields := map[string]any{
		"status":      sess.Status,
		"created_at":  sess.CreatedAt.Format(time.RFC3339Nano),
		"last_active": sess.LastActive.Format(time.RFC3339Nano),
	}
	if len(sess.Metadata) > 0 {
		meta, err := json.Marshal(sess.Metadata)
		if err != nil {
			return fmt.Errorf("session: marshal metadata: %w", err)
		}
		fields["metadata"] = meta
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, sessionKey(sess.ID), fields)
	pipe.Expire(ctx, sessionKey(sess.ID), s.ttl)
	pipe.SAdd(ctx, activeSetKey, sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis pipeline: %w", err)
	}
	return nil
}

// Get loads a session by ID. Returns ErrNotFound when the session does not
// exist or has expired.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	fields, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	sess := &Session{
		ID:          id,
		Status:      fields["status"],
		CloseReason: fields["close_reason"],
	}
	if v := fields["created_at"]; v != "" {
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v := fields["last_active"]; v != "" {
		sess.LastActive, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v := fields["metadata"]; v != "" {
		if err := json.Unmarshal([]byte(v), &sess.Metadata); err != nil {
			return nil, fmt.Errorf("session: unmarshal metadata: %w", err)
		}
	}
	return sess, nil
}

// Touch records client activity: the session becomes ACTIVE, the activity
// timestamp moves forward, and the key TTLs are refreshed.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	status, err := s.client.HGet(ctx, sessionKey(id), "status").Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("session: redis hget: %w", err)
	}
	if status == StatusClosed {
		return ErrClosed
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, sessionKey(id),
		"status", StatusActive,
		"last_active", at.Format(time.RFC3339Nano))
	pipe.Expire(ctx, sessionKey(id), s.ttl)
	pipe.Expire(ctx, conversationKey(id), s.ttl)
	pipe.Expire(ctx, historyKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis pipeline: %w", err)
	}
	return nil
}

// Close marks the session closed, removes it from the active set, and keeps
// the turn history readable for 24 hours.
func (s *Store) Close(ctx context.Context, id, reason string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == StatusClosed {
		return ErrClosed
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, sessionKey(id), "status", StatusClosed, "close_reason", reason)
	pipe.SRem(ctx, activeSetKey, id)
	pipe.Expire(ctx, sessionKey(id), historyRetention)
	pipe.Expire(ctx, conversationKey(id), historyRetention)
	pipe.Expire(ctx, historyKey(id), historyRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis pipeline: %w", err)
	}
	return nil
}

// MarkIdle drops an open session to IDLE without touching its timestamps.
func (s *Store) MarkIdle(ctx context.Context, id string) error {
	if err := s.client.HSet(ctx, sessionKey(id), "status", StatusIdle).Err(); err != nil {
		return fmt.Errorf("session: redis hset: %w", err)
	}
	return nil
}

// ActiveIDs returns the IDs currently registered as active.
func (s *Store) ActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, activeSetKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session: redis smembers: %w", err)
	}
	return ids, nil
}

// Unregister removes an ID from the active set without touching the session
// hash. Used by the janitor when the hash has already expired.
func (s *Store) Unregister(ctx context.Context, id string) error {
	if err := s.client.SRem(ctx, activeSetKey, id).Err(); err != nil {
		return fmt.Errorf("session: redis srem: %w", err)
	}
	return nil
}

// ─── dialogue state ───

// LoadDialog reads the persisted conversation state. A session with no
// conversation yet returns the zero DialogState.
func (s *Store) LoadDialog(ctx context.Context, id string) (DialogState, error) {
	fields, err := s.client.HGetAll(ctx, conversationKey(id)).Result()
	if err != nil {
		return DialogState{}, fmt.Errorf("session: redis hgetall: %w", err)
	}

	var st DialogState
	st.Phase = fields["phase"]
	st.PendingText = fields["pending_text"]
	if v := fields["turn_count"]; v != "" {
		st.TurnCount, _ = strconv.Atoi(v)
	}
	if v := fields["clarification_count"]; v != "" {
		st.ClarificationCount, _ = strconv.Atoi(v)
	}
	if v := fields["silence_prompts"]; v != "" {
		st.SilencePrompts, _ = strconv.Atoi(v)
	}
	return st, nil
}

// SaveDialog writes the conversation state back, refreshing the key TTL.
func (s *Store) SaveDialog(ctx context.Context, id string, st DialogState) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, conversationKey(id),
		"phase", st.Phase,
		"turn_count", strconv.Itoa(st.TurnCount),
		"clarification_count", strconv.Itoa(st.ClarificationCount),
		"silence_prompts", strconv.Itoa(st.SilencePrompts),
		"pending_text", st.PendingText,
	)
	pipe.Expire(ctx, conversationKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis pipeline: %w", err)
	}
	return nil
}

// ─── turn history ───

// AppendHistory prepends a turn record to the session history, trimming the
// list to the newest entries.
func (s *Store) AppendHistory(ctx context.Context, id string, rec types.TurnRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal turn record: %w", err)
	}

	key := historyKey(id)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, historyCap-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis pipeline: %w", err)
	}
	return nil
}

// History returns up to n turn records, newest first. n <= 0 returns the
// whole retained history.
func (s *Store) History(ctx context.Context, id string, n int) ([]types.TurnRecord, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n) - 1
	}
	vals, err := s.client.LRange(ctx, historyKey(id), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis lrange: %w", err)
	}

	records := make([]types.TurnRecord, 0, len(vals))
	for _, v := range vals {
		var rec types.TurnRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("session: unmarshal turn record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
