// Package redis implements domain.SessionRepository on Redis. Users stay in
// the relational store; only sessions live here.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"accounts/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

var _ domain.SessionRepository = (*SessionRepo)(nil)

// record is the JSON value stored under a session key.
type record struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	ValidUntil time.Time `json:"valid_until"`
}

// SessionRepo stores each session as a JSON string under "session:<token>"
// and indexes tokens per user in the set "user_sessions:<id>". Session keys
// expire retention after the session's natural end; the index expires with
// the newest session it holds and DeleteInvalidBefore prunes it in between.
type SessionRepo struct {
	client    *goredis.Client
	prefix    string
	retention time.Duration
}

// NewSessionRepo creates a Redis-backed session repository.
func NewSessionRepo(client *goredis.Client, retention time.Duration) *SessionRepo {
	return &SessionRepo{
		client:    client,
		prefix:    "accounts:",
		retention: retention,
	}
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (r *SessionRepo) sessionKey(token string) string {
	return r.prefix + "session:" + token
}

func (r *SessionRepo) userKey(userID int64) string {
	return r.prefix + "user_sessions:" + strconv.FormatInt(userID, 10)
}

func (r *SessionRepo) seqKey() string {
	return r.prefix + "session_seq"
}

// Create stores a new session and assigns its ID.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	if s.Token == "" || s.UserID == 0 {
		return errors.New("session: missing token or user id")
	}

	id, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("session: allocate id: %w", err)
	}

	data, err := json.Marshal(record{ID: id, UserID: s.UserID, CreatedAt: s.CreatedAt.UTC(), ValidUntil: s.ValidUntil.UTC()})
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	ttl := s.ValidUntil.Sub(s.CreatedAt) + r.retention
	if ttl <= 0 {
		return errors.New("session: valid_until must be after created_at")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(s.Token), data, ttl)
		pipe.SAdd(ctx, r.userKey(s.UserID), s.Token)
		pipe.Expire(ctx, r.userKey(s.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: store: %w", err)
	}
	s.ID = id
	return nil
}

// getter is satisfied by both *goredis.Client and *goredis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (r *SessionRepo) get(ctx context.Context, c getter, token string) (*domain.Session, error) {
	val, err := c.Get(ctx, r.sessionKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &domain.Session{
		ID:         rec.ID,
		Token:      token,
		UserID:     rec.UserID,
		CreatedAt:  rec.CreatedAt,
		ValidUntil: rec.ValidUntil,
	}, nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	return r.get(ctx, r.client, token)
}

// Invalidate sets valid_until to now for a session that is still valid. The
// read and the write run under WATCH, so a concurrent change to the same
// session aborts this transaction instead of being overwritten.
func (r *SessionRepo) Invalidate(ctx context.Context, token string, now time.Time) (bool, error) {
	key := r.sessionKey(token)
	var changed bool

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		s, err := r.get(ctx, tx, token)
		if err != nil {
			return err
		}
		if s == nil || !s.ValidAt(now) {
			return nil
		}

		data, err := json.Marshal(record{ID: s.ID, UserID: s.UserID, CreatedAt: s.CreatedAt, ValidUntil: now.UTC()})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, goredis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	}, key)

	if errors.Is(err, goredis.TxFailedErr) {
		// Someone else modified the session in between; their write wins.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return changed, nil
}

// HasValid reports whether the user holds a session valid at now. Tokens
// whose keys have expired are pruned from the user's index.
func (r *SessionRepo) HasValid(ctx context.Context, userID int64, now time.Time) (bool, error) {
	tokens, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return false, err
	}
	for _, tok := range tokens {
		s, err := r.get(ctx, r.client, tok)
		if err != nil {
			return false, err
		}
		if s == nil {
			_ = r.client.SRem(ctx, r.userKey(userID), tok).Err()
			continue
		}
		if s.ValidAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteByUser deletes all sessions of a user.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID int64) error {
	tokens, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, tok := range tokens {
		keys = append(keys, r.sessionKey(tok))
	}
	keys = append(keys, r.userKey(userID))
	return r.client.Del(ctx, keys...).Err()
}

// DeleteInvalidBefore deletes sessions whose valid_until is before cutoff and
// drops tokens whose keys have already expired from the per-user indexes. It
// returns how many sessions were removed, counting both.
func (r *SessionRepo) DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, r.prefix+"user_sessions:*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		tokens, err := r.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return removed, err
		}
		for _, tok := range tokens {
			s, err := r.get(ctx, r.client, tok)
			if err != nil {
				return removed, err
			}
			if s != nil && !s.ValidUntil.Before(cutoff) {
				continue
			}
			if s != nil {
				if err := r.client.Del(ctx, r.sessionKey(tok)).Err(); err != nil {
					return removed, err
				}
			}
			if err := r.client.SRem(ctx, userKey, tok).Err(); err != nil {
				return removed, err
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}
