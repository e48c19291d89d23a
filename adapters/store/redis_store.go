package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flywheel-fi/flywheel/adapters/ledger"
	"github.com/flywheel-fi/flywheel/core"
	"github.com/flywheel-fi/flywheel/ports"
	"github.com/redis/go-redis/v9"
)

const (
	challengeKeyPrefix  = "flywheel:challenge:"
	activationKeyPrefix = "flywheel:activation:"
	activationOpenSet   = "flywheel:activation:open"
	ratelimitKeyPrefix  = "flywheel:ratelimit:"
	depositKeyPrefix    = "flywheel:depositkey:"
)

// consumeScript flips the consumed flag atomically inside Redis, preserving
// the key's TTL. Returns -1 for missing, 0 for already consumed, 1 for
// consumed now.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local ch = cjson.decode(raw)
if ch.consumed then
  return 0
end
ch.consumed = true
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  ttl = 1000
end
redis.call('SET', KEYS[1], cjson.encode(ch), 'PX', ttl)
return 1
`)

// RedisChallengeStore is a Redis-backed ChallengeStore. Challenge TTLs map
// onto key TTLs, so expiry cleanup is Redis's problem.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore creates a new Redis challenge store.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) key(token string) string {
	return challengeKeyPrefix + token
}

// Put stores the challenge with a TTL slightly past its expiry so a late
// verification still reads the record and fails with the expired error
// rather than not-found.
func (s *RedisChallengeStore) Put(ctx context.Context, ch core.Challenge) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	ttl := time.Until(ch.ExpiresAt) + time.Minute
	if err := s.client.Set(ctx, s.key(ch.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Get returns the challenge for a token.
func (s *RedisChallengeStore) Get(ctx context.Context, token string) (core.Challenge, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return core.Challenge{}, core.ErrChallengeNotFound
		}
		return core.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}

	var ch core.Challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return core.Challenge{}, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return ch, nil
}

// Consume runs the CAS script.
func (s *RedisChallengeStore) Consume(ctx context.Context, token string) error {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(token)}).Int()
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return core.ErrChallengeAlreadyUsed
	default:
		return core.ErrChallengeNotFound
	}
}

// createScript claims the (owner, kind) slot and writes the record in one
// atomic step, so two concurrent creates can never both win. A slot pointing
// at a record that already went terminal, or at no record at all, is
// reclaimed. The open statuses listed here mirror ActivationStatus.Open.
// KEYS: slot, record, open set. ARGV: id, record JSON, record key prefix.
var createScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
  local raw = redis.call('GET', ARGV[3] .. existing)
  if raw then
    local rec = cjson.decode(raw)
    local s = rec.status
    if s == 'awaiting_deposit' or s == 'funded_pending_execution' or s == 'executing' or s == 'retry_pending' then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

// RedisActivationStore is a Redis-backed ActivationStore. Records live as
// JSON documents; the one-open-per-(owner, kind) invariant is an index key
// claimed atomically in a script, and Transition is an optimistic WATCH
// transaction.
type RedisActivationStore struct {
	client *redis.Client
}

// NewRedisActivationStore creates a new Redis activation store.
func NewRedisActivationStore(client *redis.Client) *RedisActivationStore {
	return &RedisActivationStore{client: client}
}

func (s *RedisActivationStore) recordKey(id string) string {
	return activationKeyPrefix + id
}

func (s *RedisActivationStore) openKey(owner string, kind core.ActivationKind) string {
	return fmt.Sprintf("%sopen:%s:%s", activationKeyPrefix, owner, kind)
}

// Create runs the atomic claim-and-write script.
func (s *RedisActivationStore) Create(ctx context.Context, rec core.ActivationRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal activation: %w", err)
	}

	res, err := createScript.Run(ctx, s.client,
		[]string{s.openKey(rec.OwnerAddress, rec.Kind), s.recordKey(rec.ID), activationOpenSet},
		rec.ID, string(raw), activationKeyPrefix,
	).Int()
	if err != nil {
		return fmt.Errorf("create activation: %w", err)
	}
	if res == 0 {
		return core.ErrActivationAlreadyOpen
	}
	return nil
}

// Get returns a record by id.
func (s *RedisActivationStore) Get(ctx context.Context, id string) (core.ActivationRecord, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return core.ActivationRecord{}, core.ErrActivationNotFound
		}
		return core.ActivationRecord{}, fmt.Errorf("load activation: %w", err)
	}

	var rec core.ActivationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return core.ActivationRecord{}, fmt.Errorf("unmarshal activation: %w", err)
	}
	return rec, nil
}

// ListOpen returns every record whose id is still in the open set.
func (s *RedisActivationStore) ListOpen(ctx context.Context) ([]core.ActivationRecord, error) {
	ids, err := s.client.SMembers(ctx, activationOpenSet).Result()
	if err != nil {
		return nil, fmt.Errorf("list open activations: %w", err)
	}

	var out []core.ActivationRecord
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			if err == core.ErrActivationNotFound {
				continue
			}
			return nil, err
		}
		if !rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Transition is an optimistic compare-and-swap: WATCH the record key, check
// the source status, write the mutated record in a MULTI. A concurrent write
// aborts the transaction and surfaces as a conflict the caller retries
// through the usual re-query path.
func (s *RedisActivationStore) Transition(ctx context.Context, id string, from []core.ActivationStatus, mutate func(*core.ActivationRecord)) (core.ActivationRecord, error) {
	var result core.ActivationRecord

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, s.recordKey(id)).Result()
		if err != nil {
			if err == redis.Nil {
				return core.ErrActivationNotFound
			}
			return fmt.Errorf("load activation: %w", err)
		}

		var rec core.ActivationRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("unmarshal activation: %w", err)
		}

		matched := false
		for _, f := range from {
			if rec.Status == f {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: %s is %s", core.ErrInvalidState, id, rec.Status)
		}

		prev := rec.Status
		mutate(&rec)
		if rec.Status != prev && !core.CanTransition(prev, rec.Status) {
			return fmt.Errorf("%w: %s -> %s", core.ErrInvalidState, prev, rec.Status)
		}
		rec.UpdatedAt = time.Now().UTC()

		updated, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal activation: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.recordKey(id), updated, 0)
			if rec.Status.Terminal() {
				pipe.SRem(ctx, activationOpenSet, id)
			}
			if !rec.Status.Open() {
				pipe.Del(ctx, s.openKey(rec.OwnerAddress, rec.Kind))
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = rec
		return nil
	}

	if err := s.client.Watch(ctx, txn, s.recordKey(id)); err != nil {
		return core.ActivationRecord{}, err
	}
	return result, nil
}

// RedisRateLimiter counts requests per key in a fixed window.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter creates a new Redis rate limiter.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// Allow admits up to limit requests per key within the window.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := ratelimitKeyPrefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// RedisKeyStore persists per-activation deposit private keys so custody of
// deposits survives a restart.
type RedisKeyStore struct {
	client *redis.Client
}

// NewRedisKeyStore creates a new Redis deposit key store.
func NewRedisKeyStore(client *redis.Client) *RedisKeyStore {
	return &RedisKeyStore{client: client}
}

// StoreDepositKey writes the key under its address.
func (s *RedisKeyStore) StoreDepositKey(ctx context.Context, address, privateKey string) error {
	if err := s.client.Set(ctx, depositKeyPrefix+address, privateKey, 0).Err(); err != nil {
		return fmt.Errorf("store deposit key: %w", err)
	}
	return nil
}

var (
	_ ports.ChallengeStore  = (*RedisChallengeStore)(nil)
	_ ports.ActivationStore = (*RedisActivationStore)(nil)
	_ ports.RateLimiter     = (*RedisRateLimiter)(nil)
	_ ledger.KeySink        = (*RedisKeyStore)(nil)
)
