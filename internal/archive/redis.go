package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"realtalk/internal/domain"
)

const transcriptKeyPrefix = "realtalk:transcript:"

// RedisStore appends completed items to one list per session.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

type archivedItem struct {
	ItemID     string    `json:"item_id"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Append pushes item and refreshes the session TTL in one transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, item domain.TranscriptItem) error {
	val, err := json.Marshal(archivedItem{
		ItemID:     item.ItemID,
		Role:       string(item.Role),
		Text:       item.Text,
		ArchivedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, val)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive transcript item %s: %w", item.ItemID, err)
	}
	return nil
}

// List returns the archived items in completion order. Entries that fail to
// decode are skipped.
func (s *RedisStore) List(ctx context.Context, sessionID string) ([]domain.TranscriptItem, error) {
	key := s.key(sessionID)
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list archived transcript: %w", err)
	}

	items := make([]domain.TranscriptItem, 0, len(values))
	for _, value := range values {
		item, err := decodeItem(value)
		if err != nil {
			s.logger.Warnw("skipping undecodable archived item", "session", sessionID, "error", err)
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}

func decodeItem(value string) (domain.TranscriptItem, error) {
	var stored archivedItem
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return domain.TranscriptItem{}, err
	}
	return domain.TranscriptItem{
		ItemID:   stored.ItemID,
		Role:     domain.Role(stored.Role),
		Text:     stored.Text,
		Complete: true,
	}, nil
}
