// Package cache keeps ready document summaries in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/metrics"
	"gwi.com/legal-rag/internal/model"
)

const defaultKeyPrefix = "legal-rag:summary:"

type Summary struct {
	DocumentID string            `json:"doc_id"`
	Corpus     string            `json:"corpus"`
	Text       string            `json:"summary"`
	Sources    []model.SourceRef `json:"sources,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SummaryCache is a no-op when constructed with a nil client.
type SummaryCache struct {
	redis     *goredis.Client
	ttl       time.Duration
	keyPrefix string
	log       *slog.Logger
}

func NewSummaryCache(client *goredis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SummaryCache{
		redis:     client,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
		log:       logging.New("cache"),
	}
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, addr, password string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *SummaryCache) Enabled() bool {
	return c != nil && c.redis != nil
}

// key includes the corpus so a re-ingested document never serves a stale summary.
func (c *SummaryCache) key(docID, corpus string) string {
	sum := sha256.Sum256([]byte(docID + "\x00" + corpus))
	return c.keyPrefix + docID + ":" + hex.EncodeToString(sum[:8])
}

// Get returns nil, nil on a miss or when the cache is disabled.
func (c *SummaryCache) Get(ctx context.Context, docID, corpus string) (*Summary, error) {
	if !c.Enabled() {
		return nil, nil
	}
	key := c.key(docID, corpus)
	m := metrics.Get()

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			m.CacheLookups.WithLabelValues("miss").Inc()
			return nil, nil
		}
		m.CacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("failed to read summary cache", "key", key, "error", err)
		return nil, err
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		c.log.Warn("dropping corrupt cached summary", "key", key, "error", err)
		_ = c.redis.Del(ctx, key).Err()
		m.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
	return &s, nil
}

func (c *SummaryCache) Set(ctx context.Context, s *Summary) error {
	if !c.Enabled() || s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	key := c.key(s.DocumentID, s.Corpus)
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("failed to write summary cache", "key", key, "error", err)
		return err
	}
	return nil
}
