// Package static 提供瀏覽器客戶端的靜態檔案。
//
// 只提供已知副檔名的檔案，其他路徑一律回傳預設文件（index.html），
// 讓客戶端的路由可以直接重新整理。
package static

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
)

// contentTypes 支援的副檔名
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".ts":   "text/javascript; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".gif":  "image/gif",
}

// Server 靜態檔案伺服器
type Server struct {
	root   *os.Root
	index  string
	logger *slog.Logger
}

// New 以 dir 為根目錄建立伺服器；路徑無法離開根目錄。
func New(dir, index string, logger *slog.Logger) (*Server, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	if index == "" {
		index = "index.html"
	}
	return &Server{root: root, index: index, logger: logger}, nil
}

// Close 釋放根目錄
func (s *Server) Close() error {
	return s.root.Close()
}

// ServeHTTP 依副檔名回傳檔案
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")

	contentType, ok := contentTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		name = s.index
		contentType = contentTypes[".html"]
	}

	data, err := s.read(name)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		http.NotFound(w, r)
		return
	default:
		s.logger.Error("讀取靜態檔案失敗", "file", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) read(name string) ([]byte, error) {
	f, err := s.root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
