// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

// Package api 定义 DiagramGate HTTP API 的请求与响应类型。
//
// # API Overview
//
//   - POST /api/v1/diagrams/generate  扫描并执行图表脚本，返回产物
//   - POST /api/v1/diagrams/scan      只做静态扫描
//   - GET  /api/v1/diagrams/icons     列出可用的节点类，支持 provider / service 过滤
//   - GET  /health /healthz /ready /version
//
// # Authentication
//
// 配置了 API Key 时通过 X-API-Key 头认证；启用 JWT 时使用
//
//	Authorization: Bearer <token>
//
// # Status mapping
//
// success → 200，scan_rejected / runtime_failure → 422，timeout → 504，
// tool_error → 500。响应体始终是统一的 JSON 信封。
package api
