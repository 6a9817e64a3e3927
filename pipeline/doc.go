// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package pipeline 串联扫描与执行，是 DiagramGate 的准入入口。

# 流程

	CodeSubmission → Validate → Scanner.Evaluate → 拒绝
	                                             ↘ 执行槽位 → Harness.Run → 可选发布

被拒绝的提交直接返回 ScanRejected 与问题列表，Harness 不会被调用。
执行槽位由 semaphore 限制并发，等待槽位同样受请求 context 约束。

# 可观测性

每个阶段创建一个 OTel span（pipeline.process / scan / execute / publish），
并通过 metrics.Collector 记录扫描结论、问题计数、执行状态与产物大小。
*/
package pipeline
