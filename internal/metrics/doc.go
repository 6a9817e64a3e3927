// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
脚本扫描、脚本执行与产物发布四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等向量指标。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 扫描指标：按结论计数与耗时、按 kind/severity 的问题计数、
    linter 失败计数。
  - 执行指标：按状态与格式的结果计数、执行耗时、执行中数量、产物大小。
  - 发布指标：产物上传成功与失败计数。
*/
package metrics
