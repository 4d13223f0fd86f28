// Package handler 提供 HTTP API：健康檢查、統計、房間查詢，以及靜態檔案。
package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/remote-pairing/internal/logger"
)

// Sessions 配對服務的查詢介面
type Sessions interface {
	Stats() map[string]any
	RoomInfo(roomID string) (members int, exists bool)
}

// Handler HTTP 請求處理器
type Handler struct {
	sessions  Sessions
	websocket http.HandlerFunc
	assets    http.Handler
	logger    *slog.Logger
}

// NewHandler 創建 HTTP 處理器
//
// websocket 掛在 /ws；assets 為 nil 時不提供靜態檔案。
func NewHandler(sessions Sessions, websocket http.HandlerFunc, assets http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		websocket: websocket,
		assets:    assets,
		logger:    logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈（panic 也會帶著請求 ID 記錄）
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.loggerMiddleware(h.recoverer(handler))
	}

	// 房間查詢 API
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoom))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	// WebSocket 連接
	if h.websocket != nil {
		mux.HandleFunc("GET /ws", wrap(h.websocket))
	}

	// 靜態檔案（瀏覽器客戶端）
	if h.assets != nil {
		mux.HandleFunc("GET /", wrap(h.assets.ServeHTTP))
	}

	return mux
}

// getRoom 查詢房間是否存在
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")

	members, exists := h.sessions.RoomInfo(roomID)
	if !exists {
		h.errorResponse(w, r, "房間不存在", http.StatusNotFound)
		return
	}

	h.jsonResponse(w, map[string]any{
		"room_id": roomID,
		"exists":  true,
		"members": members,
	}, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.sessions.Stats(), http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應，附帶請求 ID 方便對照日誌
func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	body := map[string]any{
		"error": message,
	}
	if id := logger.RequestID(r.Context()); id != "" {
		body["request_id"] = id
	}
	h.jsonResponse(w, body, status)
}

// loggerMiddleware 日誌中間件（同時產生請求 ID）
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r.WithContext(ctx))

		h.logger.InfoContext(ctx, "HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.ErrorContext(r.Context(), "處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, r, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack 讓被包裝的路由仍然可以升級為 WebSocket
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("ResponseWriter 不支援 Hijack")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
