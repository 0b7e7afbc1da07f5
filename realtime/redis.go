package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrFailedToParseRedisConnString is returned for a malformed Redis URL.
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")

	// ErrRedisNotReady is returned when Redis is unreachable after all retries.
	ErrRedisNotReady = errors.New("redis is not ready")
)

// RedisConfig represents the configuration for the Redis publisher.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// ConnectRedis establishes a Redis connection with retries.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	for range cfg.RetryAttempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		default:
			time.Sleep(cfg.RetryInterval)
		}
	}

	return nil, ErrRedisNotReady
}

// RedisPublisher implements Publisher over Redis pub/sub, so socket servers
// in other processes can fan events out to their connected clients.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher over an established Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// UserChannel returns the pub/sub channel name carrying a user's events.
func UserChannel(userID string) string {
	return "notifications:user:" + userID
}

type redisEnvelope struct {
	Event   string `json:"event"`
	Payload Event  `json:"payload"`
}

// Publish implements Publisher. The event is wrapped in an envelope naming
// the event type and published to the user's channel.
func (p *RedisPublisher) Publish(ctx context.Context, userID, eventName string, event Event) error {
	payload, err := json.Marshal(redisEnvelope{Event: eventName, Payload: event})
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	return p.client.Publish(ctx, UserChannel(userID), payload).Err()
}
