package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xaenox/herald-bot/internal/models"
)

const defaultAdminsKey = "herald:admins"

// RedisStorage keeps the admin directory in a single hash: field is the admin
// ID, value is the JSON document body.
type RedisStorage struct {
	client *redis.Client
	key    string
}

type adminBody struct {
	Role string `json:"role"`
}

// NewRedisStorage connects to redisURL and verifies the connection.
func NewRedisStorage(ctx context.Context, redisURL, key string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	if key == "" {
		key = defaultAdminsKey
	}
	return &RedisStorage{client: client, key: key}, nil
}

func (s *RedisStorage) ListAdmins(ctx context.Context) ([]models.AdminDocument, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading admins: %w", err)
	}

	docs := make([]models.AdminDocument, 0, len(fields))
	for id, raw := range fields {
		var body adminBody
		// Undecodable bodies keep an empty role and are skipped on load.
		_ = json.Unmarshal([]byte(raw), &body)
		docs = append(docs, models.AdminDocument{ID: id, Role: body.Role})
	}
	return docs, nil
}

func (s *RedisStorage) ReplaceAdmins(ctx context.Context, docs []models.AdminDocument) error {
	values := make([]interface{}, 0, len(docs)*2)
	for _, doc := range docs {
		body, err := json.Marshal(adminBody{Role: doc.Role})
		if err != nil {
			return fmt.Errorf("error encoding admin %s: %w", doc.ID, err)
		}
		values = append(values, doc.ID, string(body))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error writing admins: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
