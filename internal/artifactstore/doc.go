// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

// Package artifactstore 把成功渲染的图表发布到 MinIO / S3 兼容存储。
//
// 对象键由 BLAKE3 内容摘要决定（<prefix>/<digest[:2]>/<digest>.<format>），
// 相同内容的产物只占用一个对象。发布失败只记录日志，不影响执行结果。
package artifactstore
