package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix = "session:"
	redisOpTimeout     = 5 * time.Second
)

// RedisSessionStore keeps one key per session token, each expiring with its
// session.
type RedisSessionStore struct {
	client  redis.Cmdable
	prefix  string
	nowFunc func() time.Time
}

func NewRedisSessionStore(client redis.Cmdable) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisSessionStore{
		client:  client,
		prefix:  redisSessionPrefix,
		nowFunc: time.Now,
	}, nil
}

func (s *RedisSessionStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisSessionStore) keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan session keys: %w", err)
	}
	return out, nil
}

func (s *RedisSessionStore) Load() (map[string]Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Session, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", keys[i], err)
		}
		token := strings.TrimPrefix(keys[i], s.prefix)
		sess.Token = token
		out[token] = sess
	}
	return out, nil
}

func (s *RedisSessionStore) Save(sessions map[string]Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	existing, err := s.keys(ctx)
	if err != nil {
		return err
	}

	now := s.nowFunc()
	pipe := s.client.TxPipeline()
	for _, k := range existing {
		if _, keep := sessions[strings.TrimPrefix(k, s.prefix)]; !keep {
			pipe.Del(ctx, k)
		}
	}
	for token, sess := range sessions {
		ttl := sess.ExpiresAt.Sub(now)
		if ttl <= 0 {
			pipe.Del(ctx, s.key(token))
			continue
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		pipe.Set(ctx, s.key(token), data, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	return nil
}
