package sessions

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps sessions in Redis: one JSON value per refresh token
// under "<prefix><refreshToken>" with TTL = expiresAt - now, plus a per-user
// set "<prefix>user:<userID>" of that user's refresh tokens so sessions can
// be listed and revoked in bulk. Stale set members are pruned on read.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-backed session repository. Prefix may
// be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(refresh string) string {
	return r.prefix + refresh
}

func (r *RedisRepository) userKey(userID string) string {
	return r.prefix + "user:" + userID
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	exp := time.Until(s.ExpiresAt)
	if exp <= 0 {
		// ensure a minimal TTL so Redis won't store expired sessions
		exp = time.Second
	}
	if err := r.client.Set(ctx, r.key(s.RefreshToken), b, exp).Err(); err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, r.userKey(s.UserID), s.RefreshToken).Err(); err != nil {
		return err
	}
	// the index must outlive its longest-lived member
	return r.client.Expire(ctx, r.userKey(s.UserID), exp).Err()
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(refresh)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	// treat a stored-but-expired session as missing
	if time.Now().UTC().After(s.ExpiresAt) {
		_ = r.remove(ctx, &s)
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	s, err := r.GetByRefresh(ctx, refresh)
	if err != nil {
		return err
	}
	if s == nil {
		return r.client.Del(ctx, r.key(refresh)).Err()
	}
	return r.remove(ctx, s)
}

func (r *RedisRepository) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	tokens, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var out []*Session
	for _, tok := range tokens {
		s, err := r.GetByRefresh(ctx, tok)
		if err != nil {
			return nil, err
		}
		if s == nil {
			// value expired out from under the index
			_ = r.client.SRem(ctx, r.userKey(userID), tok).Err()
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RedisRepository) DeleteByID(ctx context.Context, userID, sessionID string) (bool, error) {
	list, err := r.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, s := range list {
		if s.ID == sessionID {
			return true, r.remove(ctx, s)
		}
	}
	return false, nil
}

func (r *RedisRepository) DeleteByUser(ctx context.Context, userID, exceptJTI string) (int, error) {
	list, err := r.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range list {
		if exceptJTI != "" && s.AccessJTI == exceptJTI {
			continue
		}
		if err := r.remove(ctx, s); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (r *RedisRepository) remove(ctx context.Context, s *Session) error {
	if err := r.client.SRem(ctx, r.userKey(s.UserID), s.RefreshToken).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, r.key(s.RefreshToken)).Err()
}
