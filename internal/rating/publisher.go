package rating

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/config"
)

// Publisher appends game-completion events to a Redis stream consumed by
// the external rating service. It is safe for concurrent use.
type Publisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewPublisher connects to Redis and verifies the connection.
//
// Postcondition: Returns a ready Publisher or a non-nil error; the caller
// must Close it when done.
func NewPublisher(cfg config.RedisConfig, logger *zap.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rating: parsing redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("rating: connecting to redis: %w", err)
	}

	return &Publisher{client: client, stream: cfg.Stream, logger: logger}, nil
}

// NewPublisherWithClient wraps an existing client (for testing).
func NewPublisherWithClient(client *redis.Client, stream string, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, stream: stream, logger: logger}
}

// Publish appends one completion record to the stream.
func (p *Publisher) Publish(ctx context.Context, c Completion) error {
	values := map[string]interface{}{
		"game_id":      strconv.FormatUint(uint64(c.GameID), 10),
		"white":        string(c.White),
		"black":        string(c.Black),
		"size":         strconv.Itoa(c.Size),
		"result":       string(c.Result),
		"reason":       c.Reason,
		"rated":        strconv.FormatBool(c.Rated),
		"white_rating": strconv.Itoa(c.WhiteRating),
		"black_rating": strconv.Itoa(c.BlackRating),
		"completed_at": c.CompletedAt.UTC().Format(time.RFC3339Nano),
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("rating: publishing completion for game %d: %w", c.GameID, err)
	}

	p.logger.Info("completion published",
		zap.Uint32("game_id", uint32(c.GameID)),
		zap.String("result", string(c.Result)),
		zap.Bool("rated", c.Rated),
	)
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
