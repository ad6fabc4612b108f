// internal/payment/idempotency.go
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ministrysite/internal/pricing"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "payment:idempotency:"

// IdempotencyEntry is a remembered intent together with the request it answered.
type IdempotencyEntry struct {
	Fingerprint string        `json:"fingerprint"`
	Result      *IntentResult `json:"result"`
}

// IdempotencyCache remembers intent results by client idempotency key.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (*IdempotencyEntry, bool, error)
	Put(ctx context.Context, key string, entry *IdempotencyEntry) error
}

// Fingerprint identifies the charge a request asks for. A key replayed with a different
// fingerprint is a different request.
func Fingerprint(req IntentRequest, currency string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(req.Purpose),
		fmt.Sprint(pricing.MinorUnits(req.Amount)),
		strings.ToLower(currency),
		req.EventID,
		strings.ToLower(strings.TrimSpace(req.Email)),
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// RedisIdempotency stores intent results in Redis with a TTL.
type RedisIdempotency struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisIdempotency(client redis.Cmdable, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

func (c *RedisIdempotency) Get(ctx context.Context, key string) (*IdempotencyEntry, bool, error) {
	raw, err := c.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	var entry IdempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode idempotency entry: %w", err)
	}
	if entry.Result == nil {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *RedisIdempotency) Put(ctx context.Context, key string, entry *IdempotencyEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency entry: %w", err)
	}
	if err := c.client.Set(ctx, idempotencyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency key: %w", err)
	}
	return nil
}
