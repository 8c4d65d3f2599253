package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Redis key layout
const (
	backupTable  = "ctrlcfg|backup"
	historyTable = "ctrlcfg|history"
)

// BackupKey returns the hash holding the latest backup of device.
func BackupKey(device string) string { return backupTable + "|" + device }

// HistoryKey returns the list holding past backups of device, newest first.
func HistoryKey(device string) string { return historyTable + "|" + device }

// RedisConfig selects the Redis instance.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	History  int
}

// RedisStore keeps the latest record of each device in a hash and a
// capped history list alongside it.
type RedisStore struct {
	client  *redis.Client
	history int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address: %w", util.ErrInvalidConfig)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	history := cfg.History
	if history <= 0 {
		history = DefaultHistory
	}
	return &RedisStore{client: client, history: history}, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	if rec.Taken.IsZero() {
		rec.Taken = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	skipped, _ := json.Marshal(rec.Skipped)

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, BackupKey(rec.Device),
			"platform", rec.Platform,
			"taken", rec.Taken.UTC().Format(time.RFC3339Nano),
			"config", rec.Config,
			"skipped", string(skipped),
		)
		p.LPush(ctx, HistoryKey(rec.Device), data)
		p.LTrim(ctx, HistoryKey(rec.Device), 0, int64(s.history-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing backup of %s: %w", rec.Device, err)
	}
	return nil
}

// Latest implements Store.
func (s *RedisStore) Latest(ctx context.Context, device string) (*Record, error) {
	vals, err := s.client.HGetAll(ctx, BackupKey(device)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: %w", device, ErrNotFound)
	}
	rec := &Record{Device: device, Platform: vals["platform"], Config: vals["config"]}
	if taken, err := time.Parse(time.RFC3339Nano, vals["taken"]); err == nil {
		rec.Taken = taken
	}
	if raw := vals["skipped"]; raw != "" && raw != "null" {
		json.Unmarshal([]byte(raw), &rec.Skipped)
	}
	return rec, nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, device string, n int) ([]*Record, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	items, err := s.client.LRange(ctx, HistoryKey(device), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(items))
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			util.WithDevice(device).Warnf("store: skipping unreadable history entry: %v", err)
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Devices implements Store.
func (s *RedisStore) Devices(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, backupTable+"|*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), backupTable+"|"))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
