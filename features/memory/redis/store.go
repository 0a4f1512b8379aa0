// Package redis implements a Redis-backed memory.Store. Each user owns a
// bounded list of JSON-encoded facts; FetchContext joins the most recent
// facts into a prompt-ready block.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moneywise-vn/advisor/runtime/advisor/memory"
)

const (
	defaultKeyPrefix = "advisor:memory:"
	defaultMaxFacts  = 50
	defaultTTL       = 30 * 24 * time.Hour
)

type (
	// Options configures the Redis store.
	Options struct {
		// Client is the Redis client to use. Required.
		Client *redis.Client

		// KeyPrefix prefixes every user key. Defaults to "advisor:memory:".
		KeyPrefix string

		// MaxFacts bounds the number of facts retained per user. Older facts
		// are trimmed on write. Defaults to 50.
		MaxFacts int

		// TTL is the expiry applied to each user key on write. Defaults to
		// 30 days. Zero or negative disables expiry.
		TTL time.Duration
	}

	// Store persists user facts in Redis lists.
	Store struct {
		client   *redis.Client
		prefix   string
		maxFacts int
		ttl      time.Duration
	}
)

var _ memory.Store = (*Store)(nil)

// NewStore builds a Redis-backed memory store.
func NewStore(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	maxFacts := opts.MaxFacts
	if maxFacts <= 0 {
		maxFacts = defaultMaxFacts
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Store{
		client:   opts.Client,
		prefix:   prefix,
		maxFacts: maxFacts,
		ttl:      ttl,
	}, nil
}

// FetchContext returns the stored facts for userID joined into a single
// newline-separated block, oldest first. An unknown user yields an empty
// string with no error.
func (s *Store) FetchContext(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	raws, err := s.client.LRange(ctx, s.key(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis lrange: %w", err)
	}
	if len(raws) == 0 {
		return "", nil
	}
	lines := make([]string, 0, len(raws))
	for _, raw := range raws {
		var f memory.Fact
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			// Skip entries that predate the current encoding.
			continue
		}
		if f.Content == "" {
			continue
		}
		if f.Role != "" {
			lines = append(lines, f.Role+": "+f.Content)
		} else {
			lines = append(lines, f.Content)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// Persist appends facts to the user's list, trims it to the retention bound
// and refreshes the key expiry. Facts with empty content are skipped.
func (s *Store) Persist(ctx context.Context, userID string, facts []memory.Fact) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if len(facts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	payloads := make([]any, 0, len(facts))
	for _, f := range facts {
		if f.Content == "" {
			continue
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode fact: %w", err)
		}
		payloads = append(payloads, raw)
	}
	if len(payloads) == 0 {
		return nil
	}
	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payloads...)
	pipe.LTrim(ctx, key, int64(-s.maxFacts), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}
