// Package kvstore is the uniform facade over the hot-tier key/value store
// every other component uses for cache data: current-season player
// snapshots, club catalogues, raw leaderboard JSON and the Flappy-Bird
// score leaderboard. It wraps github.com/redis/go-redis/v9 exactly as the
// teacher's internal/shared/database/redis.go wraps its Postgres-adjacent
// Redis client, extended with the hash/sorted-set/binary helpers this
// engine's keyspace requires.
package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/logging"
)

// Store is the process-wide KV facade. Construct one with New and share it;
// all methods are safe for concurrent use via the underlying pooled client.
type Store struct {
	client *redis.Client
}

// New dials the configured store and verifies connectivity before returning.
func New(cfg config.KVStoreConfig) (*Store, error) {
	log := logging.ForComponent("kvstore")

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperr.ServiceUnavailable("kvstore", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("kvstore connection established")
	return &Store{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health pings the store with a short deadline.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Get returns the string value for key, and ok=false on a cache miss.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Cache("get", err)
	}
	return val, true, nil
}

// Set writes a string value with an optional TTL (ttl<=0 means no expiry).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperr.Cache("set", err)
	}
	return nil
}

// GetBytes returns a raw value without string decoding, for binary payloads
// such as rendered image blobs cached ahead of disk persistence.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Cache("get_bytes", err)
	}
	return val, true, nil
}

// SetBytes writes a raw binary value with an optional TTL.
func (s *Store) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperr.Cache("set_bytes", err)
	}
	return nil
}

// Delete removes one or more keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return apperr.Cache("delete", err)
	}
	return nil
}

// ScanKeys returns every key matching pattern, used to clear prior
// player:* entries for a season before writing a fresh snapshot.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, apperr.Cache("scan", err)
	}
	return keys, nil
}

// HGet reads one field of a hash.
func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Cache("hget", err)
	}
	return val, true, nil
}

// HSet writes one or more field/value pairs into a hash.
func (s *Store) HSet(ctx context.Context, key string, fieldValues map[string]string) error {
	if len(fieldValues) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fieldValues)*2)
	for f, v := range fieldValues {
		args = append(args, f, v)
	}
	if err := s.client.HSet(ctx, key, args...).Err(); err != nil {
		return apperr.Cache("hset", err)
	}
	return nil
}

// HGetAll returns every field/value pair of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	val, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apperr.Cache("hgetall", err)
	}
	return val, nil
}

// HScanBest walks a hash via HSCAN page by page, stopping after the page
// that brings the scanned field/value count to maxScan or more, and returns the single best-scoring pair according to
// scorer. It bounds the work done per call instead of loading the whole hash
// (HGetAll) — used as the fuzzy-lookup fallback for the window before an
// in-memory index has finished its first build.
func (s *Store) HScanBest(ctx context.Context, key string, maxScan int64, scorer func(field, value string) float64) (field, value string, score float64, found bool, err error) {
	var cursor uint64
	var scanned int64
	best := 0.0

	for {
		var page []string
		page, cursor, err = s.client.HScan(ctx, key, cursor, "*", 100).Result()
		if err != nil {
			return "", "", 0, false, apperr.Cache("hscan", err)
		}
		for i := 0; i+1 < len(page); i += 2 {
			f, v := page[i], page[i+1]
			if sc := scorer(f, v); !found || sc > best {
				field, value, best, found = f, v, sc, true
			}
		}
		scanned += int64(len(page) / 2)
		if cursor == 0 || scanned >= maxScan {
			break
		}
	}
	return field, value, best, found, nil
}

// HDel removes one or more fields from a hash.
func (s *Store) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, key, fields...).Err(); err != nil {
		return apperr.Cache("hdel", err)
	}
	return nil
}

// SAdd adds one or more members to a plain (unscored) set, used for the
// club-tag set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return apperr.Cache("sadd", err)
	}
	return nil
}

// SMembers returns every member of a plain set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, apperr.Cache("smembers", err)
	}
	return members, nil
}

// ZAdd adds or updates a member's score in a sorted set, used for the
// Flappy-Bird leaderboard.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return apperr.Cache("zadd", err)
	}
	return nil
}

// ZRevRange returns the top `count` members by descending score, with scores.
func (s *Store) ZRevRange(ctx context.Context, key string, count int64) ([]ScoredMember, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, apperr.Cache("zrevrange", err)
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, apperr.Internal(fmt.Sprintf("unexpected sorted set member type %T", z.Member), nil)
		}
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

// ZRank returns the 0-based descending rank of member in key, and ok=false
// if the member is absent.
func (s *Store) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.client.ZRevRank(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperr.Cache("zrank", err)
	}
	return rank, true, nil
}

// ScoredMember is one entry of a sorted-set range query.
type ScoredMember struct {
	Member string
	Score  float64
}

// BatchSetter accumulates string writes for a single pipelined round trip,
// used by the season pipeline to write player snapshots in batches of 100.
type BatchSetter struct {
	pipe redis.Pipeliner
}

// NewBatch starts a pipelined batch of writes.
func (s *Store) NewBatch() *BatchSetter {
	return &BatchSetter{pipe: s.client.TxPipeline()}
}

// Set queues a string write with an optional TTL into the batch.
func (b *BatchSetter) Set(ctx context.Context, key, value string, ttl time.Duration) {
	b.pipe.Set(ctx, key, value, ttl)
}

// Exec flushes the queued batch atomically as a single pipeline.
func (b *BatchSetter) Exec(ctx context.Context) error {
	if _, err := b.pipe.Exec(ctx); err != nil {
		return apperr.Cache("batch_exec", err)
	}
	return nil
}
