// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 exporter 协调几何导出器，把每种请求格式的二进制结果收集为 Artifact。

# 概述

真正的几何字节由外部导出器生成（渲染平台、文件、HTTP 渲染服务），本包只负责
按格式调度：同一请求内的导出器并发执行，任一失败即取消其余并返回
EXPORT_FAILURE；全部完成后才返回。

# 占位产物

当某格式没有专用导出器时，调用方可以显式声明占位策略（例如 usdz 由 glb 派生）。
占位产物带有 Placeholder 与 DerivedFrom 标记，绝不静默替换。

# 核心类型

  - Exporter / ExporterFunc - 单格式导出器
  - FileExporter / HTTPExporter - 内置导出器适配
  - Coordinator - 多格式导出协调器
  - Artifact - 单次导出的二进制结果
*/
package exporter
