// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package sandbox 在能力命名空间中执行已通过扫描的图表脚本。

# 概述

  - Builder：根据节点目录与纯函数内置集合构建每次执行独立的 Namespace
  - AssignOutput：由服务端分配产物名称，声明名称只作为清理后的前缀
  - RewriteDiagramCalls：强制 Diagram(...) 使用 show=False、分配的文件名与格式
  - DeadlineEnforcer：signal（Linux ITIMER_REAL）与 thread 两种截止时间策略
  - Harness：执行脚本、读取产物、计算 BLAKE3 摘要，失败一律转换为结果状态

# 截止时间策略

signal 策略中脚本在调用方 goroutine 上运行，定时器触发后解释器在下一个检查点
返回，Enforce 返回时工作已经停止。thread 策略只保证调用方在截止时间被释放，
被放弃的 worker 之后的副作用不会被结果引用。
*/
package sandbox
