package testutils

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// SetupRedisContainer 啟動真正的 Redis 容器並回傳連線 URL（redis://host:port）
//
// 需要 Docker；-short 模式或容器無法啟動時跳過測試。
// 容器在測試結束時自動清理。
func SetupRedisContainer(t testing.TB) string {
	t.Helper()

	if testing.Short() {
		t.Skip("跳過需要 Docker 的整合測試（-short 模式）")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("無法啟動 Redis 容器: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	return url
}
