package coord

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/coord"
)

const poolExhaustedReply = "POOL_EXHAUSTED"

// activateLua resolves the active pool: the current handle, else the head
// of the ready list, else a newly minted name. It returns nil when the
// namespace is exhausted.
// KEYS[1] CacheInfo, KEYS[2] ready list; ARGV[1] max pools, ARGV[2] pool prefix.
const activateLua = `
local function activate()
  local active = redis.call('HGET', KEYS[1], 'ActivePool')
  if active then
    return active
  end
  active = redis.call('LPOP', KEYS[2])
  if not active then
    local n = tonumber(redis.call('HGET', KEYS[1], 'PoolCounter') or '0')
    if n >= tonumber(ARGV[1]) then
      return nil
    end
    active = ARGV[2] .. redis.call('HINCRBY', KEYS[1], 'PoolCounter', 1)
  end
  redis.call('HSET', KEYS[1], 'ActivePool', active)
  return active
end
`

var (
	activateScript = redis.NewScript(activateLua + `
local active = activate()
if not active then
  return redis.error_reply('POOL_EXHAUSTED')
end
return active
`)

	// ARGV[3] key prefix, ARGV[4] payload.
	appendScript = redis.NewScript(activateLua + `
local active = activate()
if not active then
  return redis.error_reply('POOL_EXHAUSTED')
end
redis.call('RPUSH', ARGV[3] .. active, ARGV[4])
local used = redis.call('HINCRBY', KEYS[1], active .. 'Used', string.len(ARGV[4]))
return {active, used}
`)

	mintScript = redis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], 'PoolCounter') or '0')
if n >= tonumber(ARGV[1]) then
  return redis.error_reply('POOL_EXHAUSTED')
end
local name = ARGV[2] .. redis.call('HINCRBY', KEYS[1], 'PoolCounter', 1)
redis.call('RPUSH', KEYS[2], name)
return name
`)

	// KEYS[1] CacheInfo; ARGV[1] expected active pool or empty.
	claimScript = redis.NewScript(`
local active = redis.call('HGET', KEYS[1], 'ActivePool')
if not active then
  return false
end
if ARGV[1] ~= '' and ARGV[1] ~= active then
  return false
end
redis.call('HDEL', KEYS[1], 'ActivePool')
return active
`)

	// KEYS[1] CacheInfo, KEYS[2] ready, KEYS[3] stuck, KEYS[4] pool list; ARGV[1] pool.
	releaseScript = redis.NewScript(`
redis.call('DEL', KEYS[4])
redis.call('HSET', KEYS[1], ARGV[1] .. 'Used', 0)
redis.call('LREM', KEYS[2], 0, ARGV[1])
redis.call('LREM', KEYS[3], 0, ARGV[1])
if redis.call('HGET', KEYS[1], 'ActivePool') == ARGV[1] then
  redis.call('HDEL', KEYS[1], 'ActivePool')
end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

	// KEYS[1] CacheInfo, KEYS[2] ready, KEYS[3] stuck; ARGV[1] initial pools,
	// ARGV[2] pool prefix, ARGV[3] key prefix.
	resetScript = redis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], 'PoolCounter') or '0')
for i = 1, n do
  redis.call('DEL', ARGV[3] .. ARGV[2] .. i)
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3])
local initial = tonumber(ARGV[1])
for i = 1, initial do
  redis.call('RPUSH', KEYS[2], ARGV[2] .. i)
end
redis.call('HSET', KEYS[1], 'PoolCounter', initial)
return initial
`)
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLSEnabled   bool
	KeyPrefix    string
}

// RedisStore implements coord.Store on Redis.
type RedisStore struct {
	client redis.UniversalClient
	keys   coord.Keys
	logger *slog.Logger
}

var _ coord.Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	s := NewRedisStoreWithClient(redis.NewClient(opts), cfg.KeyPrefix, logger)
	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, err
	}

	logger.Info("connected to coordination store",
		"addr", cfg.Addr,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix)
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: client,
		keys:   coord.Keys{Prefix: keyPrefix},
		logger: logger,
	}
}

// Keys returns the key layout of this store.
func (s *RedisStore) Keys() coord.Keys {
	return s.keys
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := s.client.RPush(ctx, s.keys.Key(key), args...).Result()
	return n, s.wrap("rpush", key, err)
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	items, err := s.client.LRange(ctx, s.keys.Key(key), start, stop).Result()
	if err != nil {
		return nil, s.wrap("lrange", key, err)
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, s.keys.Key(key)).Result()
	return n, s.wrap("llen", key, err)
}

func (s *RedisStore) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	n, err := s.client.LRem(ctx, s.keys.Key(key), count, value).Result()
	return n, s.wrap("lrem", key, err)
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.keys.Key(k)
	}
	return s.wrap("del", strings.Join(keys, ","), s.client.Del(ctx, full...).Err())
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, s.keys.Key(key), field, delta).Result()
	return n, s.wrap("hincrby", key, err)
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.keys.Key(key), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap("hget", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.wrap("hset", key, s.client.HSet(ctx, s.keys.Key(key), field, value).Err())
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, s.keys.Key(key)).Result()
	return m, s.wrap("hgetall", key, err)
}

func (s *RedisStore) Mint(ctx context.Context, maxPools int) (string, error) {
	name, err := mintScript.Run(ctx, s.client,
		[]string{s.keys.CacheInfo(), s.keys.ReadyList()},
		maxPools, coord.PoolPrefix).Text()
	if err != nil {
		return "", s.scriptErr("mint", maxPools, err)
	}
	return name, nil
}

func (s *RedisStore) ActivateNext(ctx context.Context, maxPools int) (string, error) {
	name, err := activateScript.Run(ctx, s.client,
		[]string{s.keys.CacheInfo(), s.keys.ReadyList()},
		maxPools, coord.PoolPrefix).Text()
	if err != nil {
		return "", s.scriptErr("activate", maxPools, err)
	}
	return name, nil
}

func (s *RedisStore) AppendActive(ctx context.Context, maxPools int, payload []byte) (coord.AppendResult, error) {
	reply, err := appendScript.Run(ctx, s.client,
		[]string{s.keys.CacheInfo(), s.keys.ReadyList()},
		maxPools, coord.PoolPrefix, s.keys.Prefix, payload).Slice()
	if err != nil {
		return coord.AppendResult{}, s.scriptErr("append", maxPools, err)
	}
	if len(reply) != 2 {
		return coord.AppendResult{}, fmt.Errorf("append: unexpected script reply %v", reply)
	}

	pool, _ := reply[0].(string)
	used, _ := reply[1].(int64)
	return coord.AppendResult{Pool: pool, Used: used}, nil
}

func (s *RedisStore) ClaimActive(ctx context.Context, expected string) (string, bool, error) {
	name, err := claimScript.Run(ctx, s.client, []string{s.keys.CacheInfo()}, expected).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap("claim", expected, err)
	}
	return name, true, nil
}

func (s *RedisStore) Release(ctx context.Context, pool string) error {
	err := releaseScript.Run(ctx, s.client,
		[]string{s.keys.CacheInfo(), s.keys.ReadyList(), s.keys.StuckList(), s.keys.Pool(pool)},
		pool).Err()
	return s.wrap("release", pool, err)
}

func (s *RedisStore) MarkStuck(ctx context.Context, pool string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, s.keys.StuckList(), 0, pool)
		pipe.RPush(ctx, s.keys.StuckList(), pool)
		return nil
	})
	return s.wrap("mark_stuck", pool, err)
}

func (s *RedisStore) Reset(ctx context.Context, initialPools int) error {
	err := resetScript.Run(ctx, s.client,
		[]string{s.keys.CacheInfo(), s.keys.ReadyList(), s.keys.StuckList()},
		initialPools, coord.PoolPrefix, s.keys.Prefix).Err()
	if err != nil {
		return s.wrap("reset", s.keys.CacheInfo(), err)
	}

	s.logger.Info("coordination store reset", "initial_pools", initialPools)
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.wrap("ping", "", s.client.Ping(ctx).Err())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) scriptErr(op string, maxPools int, err error) error {
	if strings.Contains(err.Error(), poolExhaustedReply) {
		return &apperrors.PoolExhaustedError{MaxPools: maxPools}
	}
	return s.wrap(op, s.keys.CacheInfo(), err)
}

// wrap classifies err: replies from the server are returned as plain errors,
// anything else means the store could not be reached.
func (s *RedisStore) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return &apperrors.StoreUnavailableError{Operation: op, Key: key, Err: err}
}
