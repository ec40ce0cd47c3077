package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/preview"
	"github.com/BaSui01/arpublish/types"
)

// PreviewHandler 本地 AR 预览
type PreviewHandler struct {
	previewer *preview.Previewer
	logger    *zap.Logger
}

// NewPreviewHandler 创建预览处理器
func NewPreviewHandler(previewer *preview.Previewer, logger *zap.Logger) *PreviewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewHandler{
		previewer: previewer,
		logger:    logger.With(zap.String("handler", "preview")),
	}
}

// HandleCreate 处理 POST /api/v1/preview
// 能力按请求方设备判断，不支持时返回 422
func (h *PreviewHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	handle, err := h.previewer.PreviewFor(r.Context(), ClientCapability(r))
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      handle,
		Timestamp: time.Now(),
	})
}

// HandleServe 处理 GET /preview/{handle}
func (h *PreviewHandler) HandleServe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("handle")
	blob, ok := h.previewer.Store().Get(id)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "preview handle not found or released", h.logger)
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Content-Disposition", `inline; filename="`+blob.Handle+"."+blob.Format.Extension()+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(blob.Data); err != nil {
		h.logger.Debug("preview write failed", zap.Error(err))
	}
}
