package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "fintrack:code:"
	maxTxRetries   = 5
)

type redisRecord struct {
	Code      string  `json:"code"`
	ExpiresAt int64   `json:"expiresAt"` // unix millis
	Purpose   Purpose `json:"purpose"`
	Channel   Channel `json:"channel"`
}

// RedisStore keeps codes in Redis so every server instance sees them. Keys
// outlive the code by one TTL so late attempts still report expired.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// Issue generates and stores a new code for target
func (s *RedisStore) Issue(ctx context.Context, target string, purpose Purpose, channel Channel) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(redisRecord{
		Code:      code,
		ExpiresAt: s.now().Add(s.ttl).UnixMilli(),
		Purpose:   purpose,
		Channel:   channel,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode code: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+target, payload, 2*s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store code: %w", err)
	}
	return code, nil
}

// Validate consumes the code for target if it matches and has not expired.
// The read and the delete run under WATCH so a code is accepted at most once.
func (s *RedisStore) Validate(ctx context.Context, target, code string) (Result, error) {
	key := redisKeyPrefix + target

	var result Result
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			result = Result{Reason: ReasonNotFound}
			return nil
		}
		if err != nil {
			return err
		}

		var rec redisRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("corrupt code record: %w", err)
		}

		switch {
		case s.now().UnixMilli() > rec.ExpiresAt:
			result = Result{Reason: ReasonExpired}
		case !codesEqual(rec.Code, code):
			result = Result{Reason: ReasonMismatch}
			return nil
		default:
			result = Result{OK: true, Purpose: rec.Purpose, Channel: rec.Channel}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Result{}, fmt.Errorf("failed to validate code: %w", err)
	}
	return Result{}, fmt.Errorf("failed to validate code: %w", redis.TxFailedErr)
}
