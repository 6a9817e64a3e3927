// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 DiagramGate HTTP API 的请求处理器实现。

# 核心类型

  - DiagramHandler — 图表生成、静态扫描与图标目录
  - HealthHandler  — /health、/ready、/version
  - Response       — 统一 JSON 信封（success + data + error + timestamp）
  - ResponseWriter — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - ExecutionResult 状态到 HTTP 状态码的映射：StatusForResult
  - 请求验证：DecodeJSONBody（大小限制 + 严格模式）、ValidateContentType
  - 可扩展就绪检查：RegisterCheck 注册 HealthCheck
*/
package handlers
