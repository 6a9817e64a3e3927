// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的扫描结论缓存。

# 概述

同一段脚本在相同的禁用清单与 linter 组合下总是得到相同的扫描结论。
VerdictCache 以源码摘要为键把结论写入 Redis，让重复提交跳过
语法分析与外部 linter 调用。缓存故障只会退化为重新扫描，不影响结论。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Get/Set/Delete/Ping/Close，
    以及 GetJSON/SetJSON 便捷序列化方法。
  - VerdictCache：面向流水线的结论缓存，键为
    前缀 + 扫描器指纹 + ":" + blake3(源码)。

# 错误语义

未命中返回 ErrCacheMiss，使用 IsCacheMiss 或 errors.Is 判断。
*/
package cache
