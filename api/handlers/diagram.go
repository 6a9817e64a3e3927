package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/diagramgate/api"
	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/internal/artifactstore"
	"github.com/BaSui01/diagramgate/types"
)

// =============================================================================
// 🖼️ 图表 Handler
// =============================================================================

// DiagramService 图表流水线，*pipeline.Pipeline 实现了该接口
type DiagramService interface {
	Process(ctx context.Context, sub types.CodeSubmission) types.ExecutionResult
	Scan(ctx context.Context, sub types.CodeSubmission) (types.ScanVerdict, error)
}

// DiagramHandler 图表生成、扫描与图标查询
type DiagramHandler struct {
	service      DiagramService
	catalog      *diagram.Catalog
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewDiagramHandler 创建图表处理器；catalog 为 nil 时使用内置目录
func NewDiagramHandler(service DiagramService, catalog *diagram.Catalog, maxBodyBytes int64, logger *zap.Logger) *DiagramHandler {
	if catalog == nil {
		catalog = diagram.DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagramHandler{
		service:      service,
		catalog:      catalog,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With(zap.String("handler", "diagram")),
	}
}

// HandleGenerate 扫描并执行脚本
// @Summary 生成图表
// @Tags 图表
// @Accept json
// @Produce json
// @Param request body api.GenerateRequest true "图表脚本"
// @Param download query bool false "成功时直接返回产物字节"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 422 {object} Response "scan_rejected / runtime_failure"
// @Failure 504 {object} Response "timeout"
// @Router /api/v1/diagrams/generate [post]
func (h *DiagramHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.maxBodyBytes, h.logger); err != nil {
		return
	}
	sub := req.Submission()
	if err := sub.Validate(); err != nil {
		if apiErr, ok := types.AsError(err); ok {
			WriteError(w, apiErr, h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}

	result := h.service.Process(r.Context(), sub)
	fileName := ""
	if result.ArtifactPath != "" {
		fileName = filepath.Base(result.ArtifactPath)
	}

	if result.Succeeded() && wantsDownload(r) {
		w.Header().Set("Content-Type", artifactstore.ContentType(result.ArtifactFormat))
		w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.ArtifactBytes)))
		w.Header().Set("X-Artifact-Digest", result.ArtifactDigest)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.ArtifactBytes)
		return
	}

	status := StatusForResult(result)
	resp := Response{
		Success:   result.Succeeded(),
		Data:      api.NewGenerateResponse(result, fileName),
		Timestamp: time.Now(),
		RequestID: w.Header().Get(RequestIDHeader),
	}
	if !result.Succeeded() {
		resp.Error = &ErrorInfo{
			Code:       string(result.ErrorCode()),
			Message:    failureMessage(result),
			HTTPStatus: status,
		}
	}
	WriteJSON(w, status, resp)
}

// HandleScan 只做静态扫描
// @Summary 扫描脚本
// @Tags 图表
// @Accept json
// @Produce json
// @Param request body api.ScanRequest true "图表脚本"
// @Success 200 {object} Response
// @Router /api/v1/diagrams/scan [post]
func (h *DiagramHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ScanRequest
	if err := DecodeJSONBody(w, r, &req, h.maxBodyBytes, h.logger); err != nil {
		return
	}
	verdict, err := h.service.Scan(r.Context(), types.CodeSubmission{Source: req.Code})
	if err != nil {
		apiErr, ok := types.AsError(err)
		if !ok {
			apiErr = types.NewError(types.ErrInternalError, "scan failed").WithCause(err)
		}
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, api.NewScanResponse(verdict))
}

// HandleIcons 列出节点类
// @Summary 图标目录
// @Tags 图表
// @Produce json
// @Param provider query string false "provider 子串过滤"
// @Param service query string false "service 子串过滤"
// @Success 200 {object} Response
// @Router /api/v1/diagrams/icons [get]
func (h *DiagramHandler) HandleIcons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	WriteSuccess(w, api.NewIconsResponse(h.catalog.ListIcons(q.Get("provider"), q.Get("service"))))
}

func wantsDownload(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("download"))
	return ok
}

func failureMessage(result types.ExecutionResult) string {
	switch result.Status {
	case types.StatusScanRejected:
		return "submission rejected by static analysis"
	case types.StatusTimeout:
		return "diagram generation timed out"
	case types.StatusRuntimeFailure:
		return "diagram script failed"
	default:
		return "diagram tooling failed"
	}
}
