// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package diagram 提供图表脚本可用的 DSL 能力：节点目录、Diagram / Cluster /
Edge / Custom 构造函数、DOT 输出以及渲染器。

# 目录

节点类来自内嵌的 catalog.yaml，按 ProviderOrder 绑定，后出现的 provider
覆盖先出现的同名类。图标文件位于 renderer.icon_dir 下，缺失时节点渲染为
普通方框。

# 会话

Session 保存一次执行中的全部图表状态。Diagram 在 with 块退出时渲染，
输出路径与格式由服务端指定，脚本传入的 filename / outformat 只能与之
一致。不在任何 Diagram 中创建的节点归入隐式图，在脚本结束且没有显式图
被渲染时由 Finish 渲染。

# 渲染

  - GraphvizRenderer 调用 dot -T<fmt> -o <path>
  - SourceRenderer 直接写出 DOT 源码
  - Router 按格式在两者之间选择

SVG 产物中的本地图片由 InlineSVGImages 内联为 data URI。
*/
package diagram
