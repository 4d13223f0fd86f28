package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus 以 NATS core subject 實作的匯流排（不使用 JetStream，不保留歷史）
type NATSBus struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// DialNATS 連接 NATS Server
//
// 選項：
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
func DialNATS(url, prefix string, logger *slog.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("pairing-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS 連線中斷", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	return &NATSBus{
		conn:    conn,
		subject: prefix + ".broadcast",
		logger:  logger,
	}, nil
}

// Subject 使用的 NATS subject
func (b *NATSBus) Subject() string { return b.subject }

// Publish 發布一個廣播
func (b *NATSBus) Publish(_ context.Context, f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("NATS 發布: %w", err)
	}
	return nil
}

// Subscribe 訂閱廣播 subject
func (b *NATSBus) Subscribe(ctx context.Context, handler func(Frame)) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		f, err := decodeFrame(msg.Data)
		if err != nil {
			b.logger.Warn("忽略無法解析的廣播", "subject", msg.Subject, "error", err)
			return
		}
		handler(f)
	})
	if err != nil {
		return fmt.Errorf("NATS 訂閱: %w", err)
	}

	// 確保伺服器已處理訂閱，返回後發布的訊息都能收到
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("NATS flush: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close 先 drain 訂閱再關閉連線
func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("NATS drain: %w", err)
	}
	return nil
}
