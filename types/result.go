package types

// ExecutionStatus 流水线执行状态
type ExecutionStatus string

const (
	StatusSuccess        ExecutionStatus = "success"
	StatusScanRejected   ExecutionStatus = "scan_rejected"
	StatusTimeout        ExecutionStatus = "timeout"
	StatusRuntimeFailure ExecutionStatus = "runtime_failure"
	StatusToolError      ExecutionStatus = "tool_error"
)

// ExecutionResult 每次流水线调用返回一个结果，核心层不持久化
type ExecutionResult struct {
	Status         ExecutionStatus `json:"status"`
	ArtifactBytes  []byte          `json:"artifact_bytes,omitempty"`
	ArtifactPath   string          `json:"artifact_path,omitempty"`
	ArtifactFormat string          `json:"artifact_format,omitempty"`
	ArtifactDigest string          `json:"artifact_digest,omitempty"`
	StderrSummary  string          `json:"stderr_summary,omitempty"`
	Issues         []Issue         `json:"issues,omitempty"`
	DurationMs     int64           `json:"duration_ms"`

	// ArtifactLocation 产物发布到对象存储后的位置，未发布时为空
	ArtifactLocation string `json:"artifact_location,omitempty"`
}

// Succeeded 是否成功产出制品
func (r ExecutionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// ErrorCode 将非成功状态映射为错误码
func (r ExecutionResult) ErrorCode() ErrorCode {
	switch r.Status {
	case StatusScanRejected:
		return ErrScanRejected
	case StatusTimeout:
		return ErrTimeout
	case StatusRuntimeFailure:
		return ErrRuntimeFailure
	case StatusToolError:
		return ErrToolError
	default:
		return ""
	}
}
