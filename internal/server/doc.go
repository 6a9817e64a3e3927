// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/WaitForShutdown 等生命周期方法。
  - Config：监听地址、读写超时、最大请求头、优雅关闭超时与可选的 TLS 配置。

DiagramGate 用两个 Manager 分别承载 API 与 Prometheus 指标端口。
WriteTimeout 需要覆盖最长的脚本执行时间，否则长时间渲染的响应会被截断。
*/
package server
