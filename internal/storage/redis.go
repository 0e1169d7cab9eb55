package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	redisIDsKey     = "mentions:ids"
	redisCreatedKey = "mentions:created"
)

// upsertScript writes one mention hash. An existing hash only gets its score
// refreshed, and its sentiment when the incoming one is non-empty.
//
// KEYS: mention hash, ids set, per-id key set, created zset
// ARGV: json data, sentiment, score, id, hash key, created unix
var upsertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'data', ARGV[1], 'sentiment', ARGV[2], 'score', ARGV[3])
else
  redis.call('HSET', KEYS[1], 'score', ARGV[3])
  if ARGV[2] ~= '' then
    redis.call('HSET', KEYS[1], 'sentiment', ARGV[2])
  end
end
redis.call('SADD', KEYS[2], ARGV[4])
redis.call('SADD', KEYS[3], ARGV[5])
redis.call('ZADD', KEYS[4], ARGV[6], ARGV[5])
return 1
`)

// RedisStore keeps each (id, brand) mention in a hash, with an id index and a
// creation-time sorted set for paging
type RedisStore struct {
	rdb *redis.Client
}

var _ MentionStore = (*RedisStore)(nil)

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	logrus.Infof("Connected to Redis mention store at %s", addr)
	return &RedisStore{rdb: rdb}, nil
}

func mentionKey(id, brand string) string {
	return fmt.Sprintf("mention:%s:%s", id, brand)
}

func idKeysKey(id string) string {
	return fmt.Sprintf("mentions:byid:%s", id)
}

func (s *RedisStore) UpsertBatch(ctx context.Context, mentions []models.Mention) error {
	for _, m := range mentions {
		stored := m
		stored.Sentiment = ""
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal mention %s: %w", m.Key(), err)
		}

		key := mentionKey(m.ID, m.Brand)
		err = upsertScript.Run(ctx, s.rdb,
			[]string{key, redisIDsKey, idKeysKey(m.ID), redisCreatedKey},
			data, string(m.Sentiment), m.Score, m.ID, key, m.CreatedAt.Unix(),
		).Err()
		if err != nil {
			return fmt.Errorf("upsert mention %s: %w", m.Key(), err)
		}
	}
	return nil
}

func (s *RedisStore) GetAllIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	iter := s.rdb.SScan(ctx, redisIDsKey, 0, "", 1000).Iterator()
	for iter.Next(ctx) {
		ids[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan ids: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	keys, err := s.rdb.SMembers(ctx, idKeysKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("lookup mention %s: %w", id, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var deleted *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		members := make([]interface{}, len(keys))
		for i, k := range keys {
			members[i] = k
		}
		pipe.ZRem(ctx, redisCreatedKey, members...)
		pipe.Del(ctx, idKeysKey(id))
		pipe.SRem(ctx, redisIDsKey, id)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete mention %s: %w", id, err)
	}
	return deleted.Val(), nil
}

func (s *RedisStore) QueryMentions(ctx context.Context, filter models.MentionFilter, page models.Page) (*models.MentionPage, error) {
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !filter.Since.IsZero() {
		rangeBy.Min = strconv.FormatInt(filter.Since.Unix(), 10)
	}
	if !filter.Until.IsZero() {
		rangeBy.Max = "(" + strconv.FormatInt(filter.Until.Unix(), 10)
	}

	keys, err := s.rdb.ZRevRangeByScore(ctx, redisCreatedKey, rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("range mentions: %w", err)
	}

	mentions, err := s.load(ctx, keys)
	if err != nil {
		return nil, err
	}

	var matched []models.Mention
	for _, m := range mentions {
		if matchesFilter(m, filter) {
			matched = append(matched, m)
		}
	}

	sortNewestFirst(matched)
	return paginate(matched, page), nil
}

func (s *RedisStore) load(ctx context.Context, keys []string) ([]models.Mention, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load mentions: %w", err)
	}

	out := make([]models.Mention, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}

		var m models.Mention
		if err := json.Unmarshal([]byte(fields["data"]), &m); err != nil {
			logrus.Warnf("Skipping unreadable mention %s: %v", keys[i], err)
			continue
		}
		m.Sentiment = models.Sentiment(fields["sentiment"])
		if score, err := strconv.Atoi(fields["score"]); err == nil {
			m.Score = score
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
