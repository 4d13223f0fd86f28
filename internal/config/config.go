// Package config 載入伺服器設定：預設值、YAML 檔案、環境變數依序覆蓋。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koopa0/system-design/remote-pairing/internal/cluster"
	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WebSocket struct {
		ReadLimit      int64         `yaml:"read_limit"`  // 單一 frame 上限（bytes）
		SendBuffer     int           `yaml:"send_buffer"` // 每個連接的發送緩衝
		PingPeriod     time.Duration `yaml:"ping_period"`
		PongWait       time.Duration `yaml:"pong_wait"`
		WriteWait      time.Duration `yaml:"write_wait"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"websocket"`

	Session struct {
		NotifyPeerOnDisconnect bool `yaml:"notify_peer_on_disconnect"`
	} `yaml:"session"`

	Relay struct {
		ControllerOnly bool `yaml:"controller_only"`
	} `yaml:"relay"`

	Protocol struct {
		Dialect         string `yaml:"dialect"` // standard 或 legacy
		MaxRoomIDLength int    `yaml:"max_room_id_length"`
	} `yaml:"protocol"`

	Static struct {
		Dir   string `yaml:"dir"`   // 空字串表示不提供靜態檔案
		Index string `yaml:"index"` // 預設文件
	} `yaml:"static"`

	Cluster struct {
		Kind     string `yaml:"kind"` // none、redis 或 nats
		RedisURL string `yaml:"redis_url"`
		NATSURL  string `yaml:"nats_url"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"cluster"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default 預設配置
func Default() *Config {
	var c Config

	c.Server.Port = 5000
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.ShutdownTimeout = 30 * time.Second

	c.WebSocket.ReadLimit = 4096
	c.WebSocket.SendBuffer = 256
	c.WebSocket.PingPeriod = 54 * time.Second
	c.WebSocket.PongWait = 60 * time.Second
	c.WebSocket.WriteWait = 10 * time.Second

	c.Session.NotifyPeerOnDisconnect = true
	c.Relay.ControllerOnly = true

	c.Protocol.Dialect = protocol.Standard.Name()
	c.Protocol.MaxRoomIDLength = protocol.DefaultMaxRoomIDLength

	c.Static.Index = "index.html"

	c.Cluster.Kind = cluster.KindNone
	c.Cluster.Prefix = "pairing"

	c.Log.Level = "info"
	c.Log.Format = "text"

	return &c
}

// Load 載入配置；path 為空時只使用預設值與環境變數。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋（部署平台常用 PORT）
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Cluster.RedisURL = v
		if c.Cluster.Kind == cluster.KindNone {
			c.Cluster.Kind = cluster.KindRedis
		}
	}
	if v := getenv("NATS_URL"); v != "" {
		c.Cluster.NATSURL = v
		if c.Cluster.Kind == cluster.KindNone {
			c.Cluster.Kind = cluster.KindNATS
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}
	if c.WebSocket.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("websocket.read_limit 必須大於 0: %d", c.WebSocket.ReadLimit))
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("websocket.send_buffer 必須大於 0: %d", c.WebSocket.SendBuffer))
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		errs = append(errs, fmt.Errorf("websocket.ping_period (%s) 必須小於 pong_wait (%s)",
			c.WebSocket.PingPeriod, c.WebSocket.PongWait))
	}
	if _, err := protocol.DialectByName(c.Protocol.Dialect); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Cluster.Kind) {
	case "", cluster.KindNone:
	case cluster.KindRedis:
		if c.Cluster.RedisURL == "" {
			errs = append(errs, errors.New("cluster.kind=redis 需要 cluster.redis_url"))
		}
	case cluster.KindNATS:
		if c.Cluster.NATSURL == "" {
			errs = append(errs, errors.New("cluster.kind=nats 需要 cluster.nats_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", cluster.ErrUnknownKind, c.Cluster.Kind))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format 必須是 text 或 json: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Addr HTTP 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// ClusterOptions 匯流排設定
func (c *Config) ClusterOptions() cluster.Options {
	return cluster.Options{
		Kind:     c.Cluster.Kind,
		RedisURL: c.Cluster.RedisURL,
		NATSURL:  c.Cluster.NATSURL,
		Prefix:   c.Cluster.Prefix,
	}
}
