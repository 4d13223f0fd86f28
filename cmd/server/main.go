package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/koopa0/system-design/remote-pairing/internal/cluster"
	"github.com/koopa0/system-design/remote-pairing/internal/config"
	"github.com/koopa0/system-design/remote-pairing/internal/handler"
	"github.com/koopa0/system-design/remote-pairing/internal/logger"
	"github.com/koopa0/system-design/remote-pairing/internal/session"
	"github.com/koopa0/system-design/remote-pairing/internal/static"
	"github.com/koopa0/system-design/remote-pairing/internal/transport"
)

// version 由建置時的 -ldflags 注入
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       int
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:           "pairing-server",
		Short:         "主畫面與遙控器配對、轉發指標事件的 WebSocket 伺服器",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// 命令列參數優先於設定檔與環境變數
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML 設定檔路徑")
	cmd.Flags().IntVarP(&port, "port", "p", 5000, "HTTP 監聽埠")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "日誌級別 (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "日誌格式 (text, json)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "顯示版本",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return cmd
}

// app 組裝完成的伺服器元件
type app struct {
	handler http.Handler
	hub     *transport.Hub
	node    *cluster.Node
	assets  *static.Server
	logger  *slog.Logger
}

// newApp 依設定組裝服務、傳輸層、叢集匯流排與 HTTP 路由
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	service := session.New(session.Options{
		Logger:                 log,
		NotifyPeerOnDisconnect: cfg.Session.NotifyPeerOnDisconnect,
		ControllerOnlyRelay:    cfg.Relay.ControllerOnly,
		MaxRoomIDLength:        cfg.Protocol.MaxRoomIDLength,
	})

	a := &app{logger: log}

	bus, err := cluster.Open(ctx, cfg.ClusterOptions(), log)
	if err != nil {
		return nil, fmt.Errorf("open cluster bus: %w", err)
	}
	if bus != nil {
		a.node = cluster.NewNode(bus, service.Rooms(), log)
		if err := a.node.Start(ctx); err != nil {
			_ = bus.Close()
			return nil, err
		}
		service.Rooms().SetPublisher(a.node)
	}

	a.hub, err = transport.NewHub(service, transport.Config{
		ReadLimit:       cfg.WebSocket.ReadLimit,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		PingPeriod:      cfg.WebSocket.PingPeriod,
		PongWait:        cfg.WebSocket.PongWait,
		WriteWait:       cfg.WebSocket.WriteWait,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		Dialect:         cfg.Protocol.Dialect,
		MaxRoomIDLength: cfg.Protocol.MaxRoomIDLength,
	}, log)
	if err != nil {
		a.close()
		return nil, err
	}

	var assets http.Handler
	if cfg.Static.Dir != "" {
		a.assets, err = static.New(cfg.Static.Dir, cfg.Static.Index, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open static dir: %w", err)
		}
		assets = a.assets
	}

	a.handler = handler.NewHandler(service, a.hub.ServeWS, assets, log).Routes()
	return a, nil
}

// close 依序停止 WebSocket、離開叢集、釋放靜態檔案目錄
func (a *app) close() {
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.node != nil {
		if err := a.node.Close(); err != nil {
			a.logger.Error("failed to close cluster bus", "error", err)
		}
	}
	if a.assets != nil {
		_ = a.assets.Close()
	}
}

// run 啟動 HTTP 伺服器，直到 ctx 取消後優雅關閉
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"port", cfg.Server.Port,
			"dialect", cfg.Protocol.Dialect,
			"cluster", cfg.Cluster.Kind,
			"version", version)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		a.close()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// WebSocket 連接已被 hijack，Shutdown 不會等待它們
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("failed to force close server", "error", closeErr)
		}
	}
	a.close()

	log.Info("server stopped")
	return nil
}
