// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package types 提供 DiagramGate 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 scanner、sandbox、pipeline、
api 等上层模块提供统一的类型契约。

# 核心类型

  - CodeSubmission    — 一次请求提交的脚本、输出名、格式与超时
  - Issue / Severity  — 扫描发现的问题，Block 级阻断执行
  - ScanVerdict       — 扫描结论，Accepted 与 Block 级问题互斥
  - CodeMetrics       — 源码行统计
  - ExecutionResult   — 流水线的最终结果与状态
  - Error / ErrorCode — 面向 API 的结构化错误

# 主要能力

  - 提交校验：CodeSubmission.Validate / NormalizeFormat
  - 错误工具链：AsError / GetErrorCode / IsErrorCode
  - Context 传播：WithTraceID / WithRequestID / WithSubject / WithSubmissionID
*/
package types
