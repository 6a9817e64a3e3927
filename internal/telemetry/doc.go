// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 DiagramGate 提供集中式的 TracerProvider 和可选的 MeterProvider，
// 以及流水线使用的 span 辅助函数。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
