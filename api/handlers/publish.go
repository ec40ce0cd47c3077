package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/preview"
	"github.com/BaSui01/arpublish/types"
	"github.com/BaSui01/arpublish/workflow"
)

// =============================================================================
// 🚀 发布 Handler
// =============================================================================

// PublishHandler 触发导出发布周期并查询状态
type PublishHandler struct {
	controller *workflow.Controller
	subjects   *workflow.SubjectRegistry
	logger     *zap.Logger
}

// StatusResponse 状态响应
type StatusResponse struct {
	State    workflow.State `json:"state"`
	Strategy string         `json:"strategy"`
	// Capability 服务端（控制器）探测到的本地 AR 能力
	Capability preview.Capability `json:"capability"`
	// Client 依据请求头判断的客户端 AR 能力
	Client   preview.Capability `json:"client"`
	Subjects int                `json:"subjects"`
}

// SubjectsRequest 更新已加载主体
type SubjectsRequest struct {
	Subjects []types.Subject `json:"subjects"`
}

// NewPublishHandler 创建发布处理器。subjects 为 nil 时不提供主体管理接口。
func NewPublishHandler(controller *workflow.Controller, subjects *workflow.SubjectRegistry, logger *zap.Logger) *PublishHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishHandler{
		controller: controller,
		subjects:   subjects,
		logger:     logger.With(zap.String("handler", "publish")),
	}
}

// HandlePublish 处理 POST /api/v1/publish
// 周期在后台执行，结果通过 /api/v1/events 推送
func (h *PublishHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if _, err := h.controller.Start(context.WithoutCancel(r.Context())); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	h.logger.Info("publish cycle started")
	WriteJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data: map[string]any{
			"state":    workflow.StateBusy,
			"strategy": h.controller.Strategy(),
		},
		Timestamp: time.Now(),
	})
}

// HandleStatus 处理 GET /api/v1/status
func (h *PublishHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusResponse{
		State:      h.controller.State(),
		Strategy:   h.controller.Strategy(),
		Capability: h.controller.Capability(),
		Client:     ClientCapability(r),
	}
	if h.subjects != nil {
		loaded, _ := h.subjects.Subjects(r.Context())
		status.Subjects = len(loaded)
	}
	WriteSuccess(w, status)
}

// HandleGetSubjects 处理 GET /api/v1/subjects
func (h *PublishHandler) HandleGetSubjects(w http.ResponseWriter, r *http.Request) {
	if h.subjects == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "subject registry not enabled", h.logger)
		return
	}
	loaded, _ := h.subjects.Subjects(r.Context())
	WriteSuccess(w, SubjectsRequest{Subjects: loaded})
}

// HandlePutSubjects 处理 PUT /api/v1/subjects
func (h *PublishHandler) HandlePutSubjects(w http.ResponseWriter, r *http.Request) {
	if h.subjects == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "subject registry not enabled", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req SubjectsRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	for _, s := range req.Subjects {
		if s.ID == "" && s.Title == "" {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "subject needs an id or title", h.logger)
			return
		}
	}
	h.subjects.Set(req.Subjects)
	h.logger.Info("subjects loaded", zap.Int("count", len(req.Subjects)))
	WriteSuccess(w, req)
}

// HandleDeleteSubjects 处理 DELETE /api/v1/subjects
func (h *PublishHandler) HandleDeleteSubjects(w http.ResponseWriter, r *http.Request) {
	if h.subjects == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "subject registry not enabled", h.logger)
		return
	}
	h.subjects.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// MaxTouchPointsHeader 客户端上报 navigator.maxTouchPoints 的请求头
const MaxTouchPointsHeader = "X-Max-Touch-Points"

// ClientCapability 根据 User-Agent 与触点提示判断客户端 AR 能力
func ClientCapability(r *http.Request) preview.Capability {
	touch, _ := strconv.Atoi(r.Header.Get(MaxTouchPointsHeader))
	return preview.UserAgentProber{UserAgent: r.UserAgent(), MaxTouchPoints: touch}.Probe()
}
