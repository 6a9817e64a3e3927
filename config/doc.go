// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

// Package config 提供 DiagramGate 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → DIAGRAMGATE_ 前缀环境变量 的顺序叠加，
// 分为 server、log、telemetry、scanner、harness、renderer、
// artifact_store、jwt 八个部分。Reloader 监听配置文件，
// 把可热更新的字段（日志级别、限流参数）推送给回调。
package config
