package api

import (
	"time"

	"github.com/BaSui01/diagramgate/diagram"
	"github.com/BaSui01/diagramgate/types"
)

// =============================================================================
// 图表生成类型
// =============================================================================

// GenerateRequest 图表生成请求。
// @Description 图表脚本提交
type GenerateRequest struct {
	// 图表脚本源码
	Code string `json:"code" example:"with Diagram('web'):\n    EC2('a') >> RDS('b')" binding:"required"`
	// 期望的输出文件名，服务端会加随机前缀
	OutputName string `json:"output_name,omitempty" example:"architecture"`
	// 输出格式：png、svg、dot
	Format string `json:"format,omitempty" example:"png"`
	// 执行超时（秒），1-300
	TimeoutSeconds int `json:"timeout_seconds,omitempty" example:"90"`
}

// Submission 转换为流水线输入
func (r GenerateRequest) Submission() types.CodeSubmission {
	return types.CodeSubmission{
		Source:             r.Code,
		DeclaredOutputName: r.OutputName,
		Format:             r.Format,
		Timeout:            time.Duration(r.TimeoutSeconds) * time.Second,
	}
}

// GenerateResponse 图表生成结果。
// @Description 执行结果，artifact 为 base64 编码的产物
type GenerateResponse struct {
	Status           types.ExecutionStatus `json:"status" example:"success"`
	Artifact         []byte                `json:"artifact,omitempty"`
	FileName         string                `json:"file_name,omitempty" example:"a1b2c3d4e5f6_architecture.png"`
	Format           string                `json:"format,omitempty" example:"png"`
	Digest           string                `json:"digest,omitempty"`
	ArtifactLocation string                `json:"artifact_location,omitempty" example:"s3://diagrams/artifacts/ab/ab12.png"`
	StderrSummary    string                `json:"stderr_summary,omitempty"`
	Issues           []types.Issue         `json:"issues,omitempty"`
	DurationMs       int64                 `json:"duration_ms"`
}

// NewGenerateResponse 由执行结果构造响应，不暴露服务端路径
func NewGenerateResponse(result types.ExecutionResult, fileName string) GenerateResponse {
	return GenerateResponse{
		Status:           result.Status,
		Artifact:         result.ArtifactBytes,
		FileName:         fileName,
		Format:           result.ArtifactFormat,
		Digest:           result.ArtifactDigest,
		ArtifactLocation: result.ArtifactLocation,
		StderrSummary:    result.StderrSummary,
		Issues:           result.Issues,
		DurationMs:       result.DurationMs,
	}
}

// =============================================================================
// 扫描类型
// =============================================================================

// ScanRequest 只扫描不执行
// @Description 静态扫描请求
type ScanRequest struct {
	Code string `json:"code" binding:"required"`
}

// ScanResponse 扫描结论
// @Description 静态扫描结论，accepted 为 false 时 issues 中至少有一条 block 级问题
type ScanResponse struct {
	Accepted    bool              `json:"accepted"`
	Issues      []types.Issue     `json:"issues"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Metrics     types.CodeMetrics `json:"metrics"`
}

// NewScanResponse 由扫描结论构造响应
func NewScanResponse(v types.ScanVerdict) ScanResponse {
	issues := v.Issues
	if issues == nil {
		issues = []types.Issue{}
	}
	return ScanResponse{
		Accepted:    v.Accepted,
		Issues:      issues,
		Diagnostics: v.Diagnostics,
		Metrics:     v.Metrics,
	}
}

// =============================================================================
// 图标类型
// =============================================================================

// IconsResponse 图标目录
// @Description provider → service → 节点类名
type IconsResponse struct {
	Providers  map[string]map[string][]string `json:"providers"`
	Filtered   bool                           `json:"filtered"`
	FilterInfo map[string]string              `json:"filter_info,omitempty"`
	Total      int                            `json:"total"`
}

// NewIconsResponse 由目录查询结果构造响应
func NewIconsResponse(listing diagram.IconListing) IconsResponse {
	total := 0
	for _, services := range listing.Providers {
		for _, icons := range services {
			total += len(icons)
		}
	}
	return IconsResponse{
		Providers:  listing.Providers,
		Filtered:   listing.Filtered,
		FilterInfo: listing.FilterInfo,
		Total:      total,
	}
}
