package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/storage"
	"github.com/zhouzirui/chobits/backend/pkg/utils"
)

// maxBackupBytes 导入请求体上限
const maxBackupBytes = 64 << 20

// Store 备份依赖的存储接口，*storage.DB 实现了它。
type Store interface {
	Export(ctx context.Context) (*storage.Backup, error)
	Import(ctx context.Context, b *storage.Backup) error
}

// Handler 整库导出与导入
type Handler struct {
	store    Store
	onImport func()
	logger   zerolog.Logger
}

// New 创建备份处理器，onImport 在导入成功后调用，用于丢弃缓存。
func New(store Store, onImport func(), logger zerolog.Logger) *Handler {
	return &Handler{store: store, onImport: onImport, logger: logger}
}

// RegisterRoutes 注册备份路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/backup", h.handleExport)
	r.Post("/backup", h.handleImport)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.Export(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("export failed")
		utils.RespondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	name := fmt.Sprintf("chobits-backup-%s.json", time.UnixMilli(b.Timestamp).Format("20060102-150405"))
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	utils.RespondJSON(w, http.StatusOK, b)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var b storage.Backup
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBackupBytes)).Decode(&b); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid backup file")
		return
	}
	if b.Version == 0 || len(b.Stores) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "backup has no version or stores")
		return
	}

	if err := h.store.Import(r.Context(), &b); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrUnknownStore) {
			status = http.StatusBadRequest
		}
		h.logger.Warn().Err(err).Msg("import failed")
		utils.RespondError(w, status, err.Error())
		return
	}
	if h.onImport != nil {
		h.onImport()
	}

	counts := make(map[storage.Store]int, len(b.Stores))
	for s, records := range b.Stores {
		counts[s] = len(records)
	}
	h.logger.Info().Float64("version", b.Version).Interface("records", counts).Msg("backup imported")
	utils.RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "imported": counts})
}
