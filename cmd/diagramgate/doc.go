// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package main 提供 DiagramGate 的服务端程序与本地命令行入口。

# 概述

cmd/diagramgate 装配 Scanner、Harness 与 Pipeline，对外提供 HTTP API，
同时提供不依赖服务端的 scan / render 本地命令。程序支持 YAML 配置、
环境变量覆盖、结构化日志（zap）、Prometheus 指标、OpenTelemetry 链路追踪
以及日志级别与限流参数的热更新。

# 核心类型

  - Server       — 主服务器，管理 API、Metrics 双端口及优雅关闭
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - RateLimiter  — 按调用方（subject 或 IP）限流，支持运行时调整速率

# 主要能力

  - 子命令：serve、scan、render、icons、config、version、health
  - 中间件链：RequestID、Recovery、SecurityHeaders、CORS、OTelTracing、
    Metrics、RequestLogger、JWTAuth 或 APIKeyAuth、RateLimiter
  - 就绪检查：graphviz 可用性、产物目录、对象存储连通性
  - 优雅关闭：信号监听 → 停止热更新 → 关闭 API → 关闭 Metrics → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
