package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus 以 Redis PUBLISH/SUBSCRIBE 實作的匯流排
//
// Redis Pub/Sub 是 at-most-once：訂閱者離線期間的訊息不會補送，
// 對即時指標事件而言可以接受。
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
	owned   bool

	mu     sync.Mutex
	pubsub *redis.PubSub
}

// DialRedis 連接 Redis（URL 格式 redis://[:password@]host:port/db）
func DialRedis(ctx context.Context, url, prefix string, logger *slog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("解析 Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("連接 Redis 失敗: %w", err)
	}

	bus := NewRedisBus(client, prefix, logger)
	bus.owned = true
	return bus, nil
}

// NewRedisBus 使用既有的 Redis 連線；Close 不會關閉該連線。
func NewRedisBus(client *redis.Client, prefix string, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: prefix + ":broadcast",
		logger:  logger,
	}
}

// Channel 使用的 Redis 頻道
func (b *RedisBus) Channel() string { return b.channel }

// Publish 發布一個廣播
func (b *RedisBus) Publish(ctx context.Context, f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("Redis PUBLISH: %w", err)
	}
	return nil
}

// Subscribe 訂閱廣播頻道
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Frame)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// 等待訂閱確認，確保返回後發布的訊息都能收到
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("Redis SUBSCRIBE: %w", err)
	}

	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				f, err := decodeFrame([]byte(msg.Payload))
				if err != nil {
					b.logger.Warn("忽略無法解析的廣播", "channel", msg.Channel, "error", err)
					continue
				}
				handler(f)
			}
		}
	}()
	return nil
}

// Close 取消訂閱；由 DialRedis 建立的連線一併關閉。
func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub != nil {
		// ctx 取消時可能已經關閉過
		_ = pubsub.Close()
	}
	if b.owned {
		return b.client.Close()
	}
	return nil
}
